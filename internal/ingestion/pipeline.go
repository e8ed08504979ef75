package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/logtier-io/logtier/internal/config"
)

// Pipeline configuration errors (static sentinel errors for errors.Is() checks).
var (
	// ErrInvalidLocalThreshold indicates the local drain threshold is below 1.
	ErrInvalidLocalThreshold = errors.New("local threshold must be at least 1")

	// ErrInvalidStageThreshold indicates the cold commit threshold is below 1.
	ErrInvalidStageThreshold = errors.New("stage threshold must be at least 1")
)

type (
	// Config holds the pipeline's batching thresholds.
	Config struct {
		// LocalThreshold is the LocalBatch size that triggers a drain to
		// the staging cache. The default of 1 drains on every record.
		LocalThreshold int

		// StageThreshold is the staging cache size that triggers a commit
		// to the cold store after a drain.
		StageThreshold int
	}

	// Pipeline orchestrates a record's path through the tiers:
	// admit -> local batch -> stage -> commit -> evict.
	//
	// Adapter failures never propagate to the ingest caller; the record
	// simply remains in its current tier and is retried on a later ingest.
	// A fresh Pipeline per HTTP request keeps the local batch request-local;
	// long-lived callers (the Kafka worker) may reuse one instance because
	// LocalBatch serializes access.
	Pipeline struct {
		config  *Config
		batch   *LocalBatch
		staging StagingCache
		cold    ColdStore
		logger  *slog.Logger
	}
)

// LoadConfig reads the pipeline thresholds from the environment.
func LoadConfig() *Config {
	return &Config{
		LocalThreshold: config.GetEnvInt("LOGTIER_LOCAL_THRESHOLD", 1),
		StageThreshold: config.GetEnvInt("LOGTIER_STAGE_THRESHOLD", 10),
	}
}

// Validate checks the configuration for values that would stall the
// pipeline.
func (c *Config) Validate() error {
	if c.LocalThreshold < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLocalThreshold, c.LocalThreshold)
	}

	if c.StageThreshold < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidStageThreshold, c.StageThreshold)
	}

	return nil
}

// NewPipeline creates a pipeline over the given tiers. A nil cfg uses the
// environment configuration; a nil logger uses slog.Default().
func NewPipeline(cfg *Config, staging StagingCache, cold ColdStore, logger *slog.Logger) *Pipeline {
	if cfg == nil {
		cfg = LoadConfig()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		config:  cfg,
		batch:   NewLocalBatch(),
		staging: staging,
		cold:    cold,
		logger:  logger,
	}
}

// Ingest admits a record into the pipeline and returns it.
//
// The record is appended to the local batch; when the batch reaches the
// local threshold it drains into the staging cache. The staging size check
// runs on every ingest, drain or not, so a pipeline whose batch is still
// filling commits entries staged by its peers once the cache reaches the
// stage threshold. Downstream failures are logged, never surfaced: the
// caller learns only that the record was admitted, which is a weaker
// guarantee than durability.
func (p *Pipeline) Ingest(ctx context.Context, record *LogRecord) *LogRecord {
	p.batch.Append(record)
	recordsIngested.Inc()

	if p.batch.Len() >= p.config.LocalThreshold && !p.drainLocalToStage(ctx) {
		return record
	}

	entries, err := p.staging.GetAll(ctx)
	if err != nil {
		p.logger.Error("staging size check failed",
			slog.String("error", err.Error()),
		)

		return record
	}

	if len(entries) == 0 || len(entries) < p.config.StageThreshold {
		return record
	}

	p.commitStageToCold(ctx)

	return record
}

// drainLocalToStage moves every pending local record into the staging cache
// under a freshly minted record id, in FIFO order.
//
// The local batch is cleared only after every put succeeds. On the first
// failure it returns false with the whole batch intact, so the next ingest
// retries all of it; records already staged before the failure will be
// staged again under new ids, which the at-least-once contract accepts.
func (p *Pipeline) drainLocalToStage(ctx context.Context) bool {
	records := p.batch.Snapshot()
	if len(records) == 0 {
		return true
	}

	for _, record := range records {
		staged, err := record.AsMap()
		if err != nil {
			p.logger.Error("record serialization failed, batch retained",
				slog.String("error", err.Error()),
			)
			drainsTotal.WithLabelValues(statusFailure).Inc()

			return false
		}

		if err := p.staging.Put(ctx, uuid.NewString(), staged); err != nil {
			p.logger.Error("staging put failed, batch retained",
				slog.String("error", err.Error()),
			)
			drainsTotal.WithLabelValues(statusFailure).Inc()

			return false
		}
	}

	p.batch.Clear()
	drainsTotal.WithLabelValues(statusSuccess).Inc()

	return true
}

// commitStageToCold writes the staging cache's current contents to the cold
// store as one batch and, only on full success, evicts the committed keys.
//
// A partial insert (fewer rows accepted than staged) leaves the staging
// cache untouched so the next ingest retries the whole batch: durability
// over deduplication. An eviction failure after a full insert also returns
// false; those entries will be re-inserted later and the resulting duplicate
// cold rows are accepted.
func (p *Pipeline) commitStageToCold(ctx context.Context) bool {
	entries, err := p.staging.GetAll(ctx)
	if err != nil {
		p.logger.Error("staging snapshot failed",
			slog.String("error", err.Error()),
		)
		commitsTotal.WithLabelValues(statusFailure).Inc()

		return false
	}

	if len(entries) == 0 {
		return true
	}

	batch := make([]ColdRow, 0, len(entries))
	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		staged, ok := stagedObject(entry.Value)
		if !ok {
			p.logger.Error("staged entry is not a record object, commit aborted",
				slog.String("key", entry.Key),
			)
			commitsTotal.WithLabelValues(statusFailure).Inc()

			return false
		}

		batch = append(batch, FlattenRecord(staged))
		keys = append(keys, entry.Key)
	}

	inserted, err := p.cold.Insert(ctx, batch)
	if err != nil {
		p.logger.Error("cold insert failed, staging retained",
			slog.Int("staged", len(entries)),
			slog.String("error", err.Error()),
		)
		commitsTotal.WithLabelValues(statusFailure).Inc()

		return false
	}

	if inserted < len(entries) {
		p.logger.Warn("partial cold insert, staging retained",
			slog.Int("inserted", inserted),
			slog.Int("staged", len(entries)),
		)
		commitsTotal.WithLabelValues(statusPartial).Inc()

		return false
	}

	rowsCommitted.Add(float64(inserted))

	evicted, err := p.staging.Delete(ctx, keys...)
	if err != nil {
		p.logger.Error("staging eviction failed after commit, duplicates possible on retry",
			slog.Int("committed", inserted),
			slog.String("error", err.Error()),
		)
		commitsTotal.WithLabelValues(statusEvictFailure).Inc()

		return false
	}

	entriesEvicted.Add(float64(evicted))
	commitsTotal.WithLabelValues(statusSuccess).Inc()
	p.logger.Info("staging committed to cold store",
		slog.Int("rows", inserted),
		slog.Int64("evicted", evicted),
	)

	return true
}

// stagedObject coerces a staged value into the record object shape. Values
// arrive as maps when the staging adapter decodes JSON on read, or as raw
// JSON text when decoding is disabled.
func stagedObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, false
		}

		return decoded, true
	default:
		return nil, false
	}
}
