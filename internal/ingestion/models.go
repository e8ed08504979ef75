// Package ingestion implements the tiered log pipeline: records accumulate
// in a process-local batch, drain into a shared staging cache under fresh
// record ids, and commit in batches to the durable cold store.
package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type (
	// LogRecord is the structured event a tenant submits for ingestion - Domain Model.
	//
	// Every field other than Timestamp is optional. Nested sections use
	// omitempty so serialization drops absent fields; the cold store's
	// literal encoder depends on missing keys becoming SQL NULLs.
	LogRecord struct {
		// Timestamp is the moment of the event. Normalize fills it with
		// the wall clock when the caller omits it.
		Timestamp time.Time `json:"timestamp"`

		// Version, EventType, EventName and EventCategory are free-form
		// classification strings.
		Version       string `json:"version,omitempty"`
		EventType     string `json:"event_type,omitempty"`
		EventName     string `json:"event_name,omitempty"`
		EventCategory string `json:"event_category,omitempty"`

		ServerInfo  *ServerInfo  `json:"server_info,omitempty"`
		RequestInfo *RequestInfo `json:"request_info,omitempty"`
		MessageInfo *MessageInfo `json:"message_info,omitempty"`
		SourceInfo  *SourceInfo  `json:"source_info,omitempty"`

		// Extra carries forward-compatible fields the schema does not model.
		Extra map[string]any `json:"extra,omitempty"`
	}

	// ServerInfo describes the host that emitted the record.
	ServerInfo struct {
		Hostname   string `json:"hostname,omitempty"`
		PortNumber int    `json:"portnumber,omitempty"`
		APIKey     string `json:"api_key,omitempty"`
	}

	// RequestInfo describes the request the record was emitted for.
	// RequestID is a unique identifier; Normalize autofills it when the
	// section is present without one.
	RequestInfo struct {
		SeverityLevel string `json:"severity_level,omitempty"`
		StatusCode    int    `json:"status_code,omitempty"`
		SessionID     string `json:"session_id,omitempty"`
		RequestID     string `json:"request_id,omitempty"`
		RequestType   string `json:"request_type,omitempty"`

		// SuccessFlag is a pointer so an explicit false survives omitempty.
		SuccessFlag *bool `json:"success_flag,omitempty"`
	}

	// MessageInfo carries the human-readable payload.
	MessageInfo struct {
		Message     string `json:"message,omitempty"`
		Description string `json:"description,omitempty"`
	}

	// SourceInfo carries open-ended origin metadata. Source accepts any
	// JSON value from callers; Stamp coerces it into a mapping before
	// attaching tenant identity.
	SourceInfo struct {
		Diagnostics map[string]any `json:"diagnostics,omitempty"`
		Source      any            `json:"source,omitempty"`
	}
)

// Normalize fills admission defaults: the event timestamp when absent, and
// a fresh unique request id when request_info is present without one.
func (r *LogRecord) Normalize() {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	if r.RequestInfo != nil && r.RequestInfo.RequestID == "" {
		r.RequestInfo.RequestID = uuid.NewString()
	}
}

// Stamp attaches the authenticated tenant to the record.
//
// It guarantees source_info.source is a mapping (scalar values are wrapped
// as {"_source": <value>}) and sets source.tenant = {app_id, server_id}.
// Host and request identifiers are additionally copied into source.server
// and diagnostics.request; the duplication is intentional so downstream
// flattening never has to reach back into the typed sections.
func (r *LogRecord) Stamp(appID, serverID string) {
	if r.SourceInfo == nil {
		r.SourceInfo = &SourceInfo{}
	}

	source := asSourceMap(r.SourceInfo.Source)
	source["tenant"] = map[string]any{
		"app_id":    appID,
		"server_id": serverID,
	}

	if r.ServerInfo != nil {
		source["server"] = map[string]any{
			"hostname":   r.ServerInfo.Hostname,
			"portnumber": r.ServerInfo.PortNumber,
		}
	}

	r.SourceInfo.Source = source

	if r.RequestInfo != nil {
		if r.SourceInfo.Diagnostics == nil {
			r.SourceInfo.Diagnostics = make(map[string]any)
		}

		r.SourceInfo.Diagnostics["request"] = map[string]any{
			"request_id":   r.RequestInfo.RequestID,
			"request_type": r.RequestInfo.RequestType,
			"session_id":   r.RequestInfo.SessionID,
		}
	}
}

// AsMap renders the record as the JSON object shape it is staged with.
func (r *LogRecord) AsMap() (map[string]any, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal log record: %w", err)
	}

	var staged map[string]any
	if err := json.Unmarshal(raw, &staged); err != nil {
		return nil, fmt.Errorf("decode log record: %w", err)
	}

	return staged, nil
}

// asSourceMap coerces the free-form source value into a mapping so tenant
// stamping always has an object to land in.
func asSourceMap(v any) map[string]any {
	switch src := v.(type) {
	case nil:
		return make(map[string]any)
	case map[string]any:
		return src
	default:
		return map[string]any{"_source": src}
	}
}
