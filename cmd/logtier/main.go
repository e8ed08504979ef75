// Package main provides the logtier log ingestion service.
//
// The service accepts structured log records over HTTP, authenticates the
// submitting tenant with encrypted API keys, and moves records through the
// tiered pipeline: local batch, shared staging cache, durable cold store.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/logtier-io/logtier/internal/api"
	"github.com/logtier-io/logtier/internal/api/middleware"
	"github.com/logtier-io/logtier/internal/auth"
	"github.com/logtier-io/logtier/internal/config"
	"github.com/logtier-io/logtier/internal/ingestion"
	"github.com/logtier-io/logtier/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "logtier"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting logtier service",
		slog.String("service", name),
		slog.String("version", version),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Load rate limiter configuration
	middlewareConfig := middleware.LoadConfig()

	// Create rate limiter instance (graceful shutdown handled by server.shutdown())
	rateLimiter := middleware.NewInMemoryRateLimiter(middlewareConfig)

	logger.Info("Rate limiter initialized",
		slog.Int("global_rps", middlewareConfig.GlobalRPS),
		slog.Int("global_burst", middlewareConfig.GlobalBurst),
		slog.Int("app_rps", middlewareConfig.AppRPS),
		slog.Int("app_burst", middlewareConfig.AppBurst),
		slog.Int("unauth_rps", middlewareConfig.UnAuthRPS),
		slog.Int("unauth_burst", middlewareConfig.UnAuthBurst),
	)

	// Tenant registry (PostgreSQL)
	relationalConfig := storage.LoadRelationalConfig()

	dbConn, err := storage.NewConnection(relationalConfig, logger)
	if err != nil {
		logger.Error("Failed to connect to tenant registry database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := storage.NewPersistentTenantRegistry(dbConn, logger)

	var validator middleware.TenantValidator

	authEnabled := config.GetEnvBool("LOGTIER_AUTH_ENABLED", true)
	if authEnabled {
		cipher, err := auth.NewCipherFromEnv()
		if err != nil {
			logger.Error("Failed to initialize API key cipher", slog.String("error", err.Error()))

			_ = dbConn.Close()
			//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
			os.Exit(1)
		}

		validator = auth.NewAuthenticator(registry, cipher, logger)

		logger.Info("Tenant authentication enabled",
			slog.String("database_url", relationalConfig.Redacted()),
		)
	} else {
		logger.Warn("Tenant authentication disabled",
			slog.String("security", "Only use in trusted networks (localhost, VPN, internal)"),
			slog.String("note", "Set LOGTIER_AUTH_ENABLED=true to enable API key authentication"),
		)
	}

	// Staging cache (Redis)
	staging, err := storage.NewRedisStagingCache(storage.LoadStagingConfig(), logger)
	if err != nil {
		logger.Error("Failed to connect to staging cache", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

	// Cold store (ClickHouse)
	cold, err := storage.NewClickHouseColdStore(storage.LoadColdConfig(), logger)
	if err != nil {
		logger.Error("Failed to connect to cold store", slog.String("error", err.Error()))

		_ = staging.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	pipelineConfig := ingestion.LoadConfig()
	if err := pipelineConfig.Validate(); err != nil {
		logger.Error("Invalid pipeline configuration", slog.String("error", err.Error()))

		_ = cold.Close()
		_ = staging.Close()
		_ = dbConn.Close()
		os.Exit(1)
	}

	logger.Info("Pipeline configured",
		slog.Int("local_threshold", pipelineConfig.LocalThreshold),
		slog.Int("stage_threshold", pipelineConfig.StageThreshold),
	)

	server := api.NewServer(serverConfig, &api.Dependencies{
		Validator:   validator,
		Staging:     staging,
		Cold:        cold,
		Pipeline:    pipelineConfig,
		RateLimiter: rateLimiter,
		Backends: map[string]api.HealthChecker{
			"registry": registry,
			"staging":  staging,
			"cold":     cold,
		},
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("logtier service stopped")
}
