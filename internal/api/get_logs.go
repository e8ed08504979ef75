// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"

	"github.com/logtier-io/logtier/internal/api/middleware"
)

// handleGetLogs returns the merged view of staged and committed logs,
// flattened to one level and sorted by timestamp ascending.
//
// Response codes:
//   - 200 OK: at least one log entry exists
//   - 404 Not Found: both tiers are empty
//   - 503 Service Unavailable: a storage tier is unreachable
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	logs, problem := s.mergedLogView(r.Context(), correlationID)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if len(logs) == 0 {
		WriteErrorResponse(w, r, s.logger, NotFound("No logs found."))

		return
	}

	s.writeJSON(w, correlationID, http.StatusOK, LogsResponse{
		Count: len(logs),
		Logs:  logs,
	})
}

// mergedLogView assembles the flattened union of both storage tiers: entries
// still sitting in the staging cache plus rows already committed to the cold
// store. Staged entries carry their staging key as log_id; cold rows carry
// the store-generated one. The result is sorted by timestamp ascending, so
// the view reads oldest first regardless of which tier an entry lives in.
func (s *Server) mergedLogView(ctx context.Context, correlationID string) ([]map[string]any, *ProblemDetail) {
	staged, err := s.deps.Staging.GetAll(ctx)
	if err != nil {
		s.logger.Error("Staging cache read failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return nil, ServiceUnavailable("Staging cache is unavailable")
	}

	logs := make([]map[string]any, 0, len(staged))

	for _, entry := range staged {
		record, ok := entryObject(entry.Value)
		if !ok {
			s.logger.Warn("Skipping non-object staged entry",
				slog.String("key", entry.Key),
				slog.String("correlation_id", correlationID),
			)

			continue
		}

		flat := flattenEntry(record)
		flat["log_id"] = entry.Key
		logs = append(logs, flat)
	}

	committed, err := s.deps.Cold.Fetch(ctx)
	if err != nil {
		s.logger.Error("Cold store read failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return nil, ServiceUnavailable("Cold store is unavailable")
	}

	for _, row := range committed {
		logs = append(logs, flattenEntry(row))
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return timestampKey(logs[i]) < timestampKey(logs[j])
	})

	return logs, nil
}

// timestampKey extracts the sortable timestamp text from a flattened entry.
// The view layout is lexicographically ordered, so string comparison sorts
// chronologically; entries without a timestamp sort first.
func timestampKey(entry map[string]any) string {
	ts, ok := entry["timestamp"].(string)
	if !ok {
		return ""
	}

	return ts
}
