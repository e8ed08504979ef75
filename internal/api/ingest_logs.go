// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/logtier-io/logtier/internal/api/middleware"
	"github.com/logtier-io/logtier/internal/ingestion"
)

// handleIngestLogs accepts a single structured log record and admits it into
// the tiered pipeline.
//
// The record is normalized (timestamp and request id defaults), stamped with
// the authenticated tenant, and handed to a fresh pipeline instance. The
// pipeline never surfaces downstream failures, so a well-formed request is
// always acknowledged with 200 and the record as admitted.
//
// Response codes:
//   - 200 OK: record admitted
//   - 400 Bad Request: malformed JSON body
//   - 401/403: handled by the authentication middleware
//   - 413 Payload Too Large: body exceeds the configured request size limit
//   - 415 Unsupported Media Type: non-JSON content type
func (s *Server) handleIngestLogs(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if contentType := r.Header.Get("Content-Type"); contentType != "" &&
		!strings.HasPrefix(contentType, "application/json") {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType(
			"Content-Type must be application/json, got: "+contentType,
		))

		return
	}

	tenant, authenticated := middleware.GetTenantContext(r.Context())
	if !authenticated {
		// Only reachable if the route is misconfigured as public.
		WriteErrorResponse(w, r, s.logger, NewProblemDetail(
			http.StatusUnauthorized, "Unauthorized", "Authentication required",
		))

		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var record ingestion.LogRecord

	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger, NewProblemDetail(
				http.StatusRequestEntityTooLarge,
				"Payload Too Large",
				"Request body exceeds the maximum allowed size",
			))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON payload: "+err.Error()))

		return
	}

	record.Normalize()
	record.Stamp(tenant.AppID, tenant.ServerID)

	// A fresh pipeline per request keeps the local batch request-local; the
	// staging cache behind it is shared, so batching still accumulates
	// across requests.
	pipeline := ingestion.NewPipeline(s.deps.Pipeline, s.deps.Staging, s.deps.Cold, s.logger)
	pipeline.Ingest(r.Context(), &record)

	logObject, err := record.AsMap()
	if err != nil {
		s.logger.Error("Failed to render admitted record",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to render admitted record"))

		return
	}

	s.logger.Info("Log record admitted",
		slog.String("app_id", tenant.AppID),
		slog.String("server_id", tenant.ServerID),
		slog.String("event_type", record.EventType),
		slog.String("correlation_id", correlationID),
	)

	s.writeJSON(w, correlationID, http.StatusOK, IngestResponse{
		Message: "Log entry accepted.",
		Tenant: TenantSummary{
			AppID:    tenant.AppID,
			ServerID: tenant.ServerID,
		},
		LogObject: logObject,
	})
}

// writeJSON writes a JSON response body, logging encode failures after the
// headers are already committed.
func (s *Server) writeJSON(w http.ResponseWriter, correlationID string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}
