package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/logtier-io/logtier/internal/auth"
	"github.com/logtier-io/logtier/internal/config"
	"github.com/logtier-io/logtier/internal/ingestion"
)

// apiKeyHeader is the Kafka message header carrying the tenant API key,
// mirroring the X-API-Key HTTP header.
const apiKeyHeader = "x-api-key"

// ErrNoBrokers indicates KAFKA_BROKERS is not set.
var ErrNoBrokers = errors.New("at least one Kafka broker is required")

type (
	// ConsumerConfig holds the Kafka consumer settings.
	ConsumerConfig struct {
		Brokers []string
		Topic   string
		GroupID string
	}

	// messageReader is the slice of kafka.Reader the consumer depends on.
	messageReader interface {
		FetchMessage(ctx context.Context) (kafka.Message, error)
		CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	}

	// tenantValidator resolves an API key to its tenant. *auth.Authenticator
	// satisfies it.
	tenantValidator interface {
		Validate(ctx context.Context, token string) (auth.Tenant, bool)
	}

	// Consumer pulls records off the topic and admits them into the
	// pipeline. Every fetched message is committed, valid or not: a record
	// that fails authentication or decoding is logged and dropped rather
	// than wedging the partition.
	Consumer struct {
		reader    messageReader
		validator tenantValidator
		pipeline  *ingestion.Pipeline
		logger    *slog.Logger
	}
)

// LoadConsumerConfig reads the Kafka settings from the environment.
func LoadConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		Topic:   config.GetEnvStr("KAFKA_TOPIC", "logtier.logs"),
		GroupID: config.GetEnvStr("KAFKA_GROUP_ID", "logtier-ingester"),
	}
}

// Validate checks the consumer configuration.
func (c *ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	return nil
}

// NewConsumer creates a consumer over the given reader and pipeline.
// A nil logger uses slog.Default().
func NewConsumer(reader messageReader, validator tenantValidator, pipeline *ingestion.Pipeline, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		reader:    reader,
		validator: validator,
		pipeline:  pipeline,
		logger:    logger,
	}
}

// Run consumes messages until the context is canceled. Offsets commit after
// each message is handled, so an uncommitted crash redelivers at-least-once;
// the pipeline's staging tier absorbs the resulting duplicates.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}

			return fmt.Errorf("fetch message: %w", err)
		}

		c.handleMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return fmt.Errorf("commit offset: %w", err)
		}
	}
}

// handleMessage authenticates, decodes and admits a single message. Invalid
// messages are logged and dropped; the caller commits the offset either way.
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) {
	token := headerValue(msg, apiKeyHeader)
	if token == "" {
		c.logger.Warn("Dropping message without API key header",
			slog.String("topic", msg.Topic),
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
		)

		return
	}

	tenant, ok := c.validator.Validate(ctx, token)
	if !ok {
		c.logger.Warn("Dropping message with invalid API key",
			slog.String("key", auth.MaskToken(token)),
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
		)

		return
	}

	var record ingestion.LogRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		c.logger.Warn("Dropping malformed record",
			slog.String("app_id", tenant.AppID),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)

		return
	}

	record.Normalize()
	record.Stamp(tenant.AppID, tenant.ServerID)

	c.pipeline.Ingest(ctx, &record)

	c.logger.Debug("Record admitted from topic",
		slog.String("app_id", tenant.AppID),
		slog.String("event_type", record.EventType),
		slog.Int64("offset", msg.Offset),
	)
}

// headerValue returns the named message header, or "" when absent.
func headerValue(msg kafka.Message, key string) string {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}

	return ""
}
