// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/logtier-io/logtier/internal/api/middleware"
	"github.com/logtier-io/logtier/internal/ingestion"
)

// HealthChecker reports whether a storage backend is reachable. The Postgres
// registry, Redis staging cache and ClickHouse cold store all satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies bundles the runtime collaborators injected into the server.
// Configuration (what) stays in ServerConfig; dependencies (how) live here.
type Dependencies struct {
	// Validator resolves API keys to tenants. Nil disables authentication,
	// which is only acceptable in local development.
	Validator middleware.TenantValidator

	// Staging and Cold are the shared pipeline tiers. A fresh Pipeline is
	// built over them for every ingest request.
	Staging ingestion.StagingCache
	Cold    ingestion.ColdStore

	// Pipeline holds the batching thresholds. Nil uses the environment.
	Pipeline *ingestion.Config

	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter middleware.RateLimiter

	// Backends are the named storage backends probed by the readiness
	// endpoint and closed on shutdown.
	Backends map[string]HealthChecker
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	deps       *Dependencies
	startTime  time.Time
}

// NewServer creates a new HTTP server instance with structured logging and
// the full middleware stack.
func NewServer(cfg *ServerConfig, deps *Dependencies) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if deps == nil {
		deps = &Dependencies{}
	}

	mux := http.NewServeMux()

	server := &Server{
		logger: logger,
		config: cfg,
		deps:   deps,
	}

	server.setupRoutes(mux)

	if deps.Validator != nil {
		logger.Info("Tenant authentication middleware enabled")
	} else {
		logger.Warn("TenantValidator not configured - authentication middleware disabled")
	}

	if deps.RateLimiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. CorrelationID - generate correlation ID for all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. TenantAuth - resolve the API key to a tenant (optional)
	//   4. RateLimit - block requests before expensive operations (optional)
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   6. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithTenantAuth(deps.Validator, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("Starting logtier API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and releases backend connections.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close storage backends to release connections. Each backend appears
	// once in the map, so nothing is closed twice.
	for name, backend := range s.deps.Backends {
		closer, ok := backend.(io.Closer)
		if !ok {
			continue
		}

		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close backend",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Info("Backend closed", slog.String("backend", name))
		}
	}

	// Close rate limiter to stop (InMemoryRateLimiter) background cleanup goroutines
	if s.deps.RateLimiter != nil {
		if limiter, ok := s.deps.RateLimiter.(io.Closer); ok {
			if err := limiter.Close(); err != nil {
				s.logger.Error("Failed to close rate limiter", slog.String("error", err.Error()))
			} else {
				s.logger.Info("Rate limiter closed successfully")
			}
		}
	}

	s.logger.Info("Server shutdown completed successfully")

	return nil
}
