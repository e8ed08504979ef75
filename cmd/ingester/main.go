// Package main provides the Kafka ingestion worker for logtier.
//
// The worker consumes structured log records from a Kafka topic, validates
// the tenant API key carried in message headers, and feeds records into the
// same tiered pipeline the HTTP surface uses. Unlike the HTTP server it runs
// one long-lived pipeline, so the local batch accumulates across messages.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/segmentio/kafka-go"

	"github.com/logtier-io/logtier/internal/auth"
	"github.com/logtier-io/logtier/internal/config"
	"github.com/logtier-io/logtier/internal/ingestion"
	"github.com/logtier-io/logtier/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "ingester"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOGTIER_LOG_LEVEL", slog.LevelInfo),
	}))

	consumerConfig := LoadConsumerConfig()
	if err := consumerConfig.Validate(); err != nil {
		logger.Error("Invalid consumer configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Starting logtier ingestion worker",
		slog.String("service", name),
		slog.String("version", version),
		slog.Any("brokers", consumerConfig.Brokers),
		slog.String("topic", consumerConfig.Topic),
		slog.String("group_id", consumerConfig.GroupID),
	)

	dbConn, err := storage.NewConnection(storage.LoadRelationalConfig(), logger)
	if err != nil {
		logger.Error("Failed to connect to tenant registry database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := storage.NewPersistentTenantRegistry(dbConn, logger)

	cipher, err := auth.NewCipherFromEnv()
	if err != nil {
		logger.Error("Failed to initialize API key cipher", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	validator := auth.NewAuthenticator(registry, cipher, logger)

	staging, err := storage.NewRedisStagingCache(storage.LoadStagingConfig(), logger)
	if err != nil {
		logger.Error("Failed to connect to staging cache", slog.String("error", err.Error()))

		_ = dbConn.Close()
		os.Exit(1)
	}

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

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: consumerConfig.Brokers,
		Topic:   consumerConfig.Topic,
		GroupID: consumerConfig.GroupID,
	})

	consumer := NewConsumer(
		reader,
		validator,
		ingestion.NewPipeline(pipelineConfig, staging, cold, logger),
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := consumer.Run(ctx)

	_ = reader.Close()
	_ = cold.Close()
	_ = staging.Close()
	_ = dbConn.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Ingestion worker failed", slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("Ingestion worker stopped")
}
