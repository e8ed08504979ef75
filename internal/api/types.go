// Package api provides HTTP API server implementation for the logtier service.
package api

type (
	// TenantSummary echoes the authenticated tenant back to the caller.
	TenantSummary struct {
		AppID    string `json:"app_id"`    //nolint: tagliatelle
		ServerID string `json:"server_id"` //nolint: tagliatelle
	}

	// IngestResponse is the acknowledgement returned for an accepted record.
	// LogObject is the record as admitted, after normalization and tenant
	// stamping, so callers can see exactly what was queued.
	IngestResponse struct {
		Message   string         `json:"message"`
		Tenant    TenantSummary  `json:"tenant"`
		LogObject map[string]any `json:"log_object"` //nolint: tagliatelle
	}

	// LogsResponse is the merged staging-plus-cold view of a tenant's logs.
	LogsResponse struct {
		Count int              `json:"count"`
		Logs  []map[string]any `json:"logs"`
	}
)
