// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/logtier-io/logtier/internal/api/middleware"
)

// handleExportLogs streams the merged log view as a CSV attachment.
//
// The column set is the sorted union of keys across all exported entries;
// cells an entry lacks are left empty. An optional log_id query parameter
// narrows the export to a single entry, matched against the staging key or
// the cold store row id.
//
// Response codes:
//   - 200 OK: CSV attachment
//   - 404 Not Found: nothing to export
//   - 503 Service Unavailable: a storage tier is unreachable
func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	logs, problem := s.mergedLogView(r.Context(), correlationID)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	if logID := r.URL.Query().Get("log_id"); logID != "" {
		logs = filterByLogID(logs, logID)
	}

	if len(logs) == 0 {
		WriteErrorResponse(w, r, s.logger, NotFound("No logs found."))

		return
	}

	columns := unionColumns(logs)
	filename := fmt.Sprintf("logs_export_%s.csv", time.Now().UTC().Format("20060102_150405"))

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)

	writer := csv.NewWriter(w)

	if err := writer.Write(columns); err != nil {
		s.logger.Error("Failed to write CSV header",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	row := make([]string, len(columns))

	for _, entry := range logs {
		for i, column := range columns {
			row[i] = csvCell(entry[column])
		}

		if err := writer.Write(row); err != nil {
			s.logger.Error("Failed to write CSV row",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)

			return
		}
	}

	writer.Flush()

	if err := writer.Error(); err != nil {
		s.logger.Error("Failed to flush CSV export",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Info("Logs exported",
		slog.Int("rows", len(logs)),
		slog.String("filename", filename),
		slog.String("correlation_id", correlationID),
	)
}

// filterByLogID keeps only the entries whose log_id matches.
func filterByLogID(logs []map[string]any, logID string) []map[string]any {
	filtered := logs[:0]

	for _, entry := range logs {
		if id, ok := entry["log_id"].(string); ok && id == logID {
			filtered = append(filtered, entry)
		}
	}

	return filtered
}

// unionColumns returns the sorted union of keys across all entries.
func unionColumns(logs []map[string]any) []string {
	seen := make(map[string]bool)

	for _, entry := range logs {
		for key := range entry {
			seen[key] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}

	sort.Strings(columns)

	return columns
}

// csvCell renders a flattened value as CSV cell text. Flattening already
// stringified composite values, so everything here is scalar.
func csvCell(v any) string {
	switch cell := v.(type) {
	case nil:
		return ""
	case string:
		return cell
	case bool:
		if cell {
			return "true"
		}

		return "false"
	case float64:
		// JSON numbers decode as float64; render integral values without
		// a trailing ".0" so status codes and ports stay readable.
		if cell == float64(int64(cell)) {
			return fmt.Sprintf("%d", int64(cell))
		}

		return fmt.Sprintf("%g", cell)
	default:
		return fmt.Sprintf("%v", cell)
	}
}
