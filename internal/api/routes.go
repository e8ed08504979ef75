// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logtier-io/logtier/internal/api/middleware"
)

const (
	healthCheckTimeout     = 2 * time.Second
	expectedURLParts       = 2
	contentTypeProblemJSON = "application/problem+json"

	serviceName    = "logtier"
	serviceVersion = "v1.0.0"
)

// Route represents an HTTP route configuration with a path and handler.
// Used for declarative route registration with middleware bypass support.
type Route struct {
	Path    string           // The URL path for this route (e.g., "/ping", "/logs/get")
	Handler http.HandlerFunc // The HTTP handler function for this route
}

// Routes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public health and monitoring endpoints
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},   // K8s liveness probe
		Route{"GET /ready", s.handleReady}, // K8s readiness probe
		Route{"GET /health_check", s.handleHealthCheck},     // Basic health check
		Route{"GET /metrics", promhttp.Handler().ServeHTTP}, // Prometheus scrape endpoint
		Route{"/", s.handleNotFound},                        // Catch-all handler for 404 responses
	)

	// Tenant-scoped endpoints (require a valid API key)
	mux.HandleFunc("POST /logging/ingest", s.handleIngestLogs)
	mux.HandleFunc("GET /logs/get", s.handleGetLogs)
	mux.HandleFunc("GET /logs/export", s.handleExportLogs)
}

// registerPublicRoutes registers HTTP routes that bypass authentication and rate limiting.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses auth middleware)
//
// Public routes should only be used for health check and monitoring endpoints that need
// to be accessible without authentication (e.g., K8s liveness/readiness probes).
//
// Security Warning: Never register business logic endpoints as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Strip method prefix for public endpoint bypass registration
		// Go 1.22+ method-based routing uses "GET /path" format
		// But r.URL.Path is just "/path" (no method prefix)
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests with the service identity and version.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Logtier-Version", serviceVersion)
	w.WriteHeader(http.StatusOK)

	payload := map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleHealthCheck responds with the minimal liveness payload used by
// client SDKs to verify the service is up before shipping logs.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(map[string]string{"server": "ok"}); err != nil {
		s.logger.Error("Failed to write health check response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend health checks.
//
// Response codes:
//   - 200 OK: All storage backends are healthy and ready to accept traffic
//   - 503 Service Unavailable: At least one backend is unhealthy or unreachable
//
// If this endpoint returns 503, K8s will stop routing requests to the pod until it recovers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// No backends configured means degraded local mode; report ready.
	if len(s.deps.Backends) == 0 {
		s.logger.Warn("No storage backends configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		s.writeReady(w, correlationID)

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	for name, backend := range s.deps.Backends {
		if err := backend.HealthCheck(ctx); err != nil {
			s.logger.Error("Storage health check failed",
				slog.String("backend", name),
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)

			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)

			if _, writeErr := w.Write([]byte(name + " unavailable")); writeErr != nil {
				s.logger.Error("Failed to write unavailable response",
					slog.String("correlation_id", correlationID),
					slog.String("error", writeErr.Error()),
				)
			}

			return
		}
	}

	s.writeReady(w, correlationID)
}

func (s *Server) writeReady(w http.ResponseWriter, correlationID string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write([]byte("ready")); err != nil {
		s.logger.Error("Failed to write ready response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleNotFound returns a 404 problem for any unregistered path.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found."))
}
