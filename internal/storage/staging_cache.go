package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/redis/go-redis/v9"

	"github.com/logtier-io/logtier/internal/ingestion"
)

// ErrStagingUnavailable is returned when the staging cache cannot be
// reached.
var ErrStagingUnavailable = errors.New("staging cache unavailable")

// RedisStagingCache implements ingestion.StagingCache on Redis. The cache is
// shared process-wide: every service instance converges on the same staged
// entries, which is what lets records survive instance death between drain
// and commit.
type RedisStagingCache struct {
	client *redis.Client
	decode bool
	logger *slog.Logger
}

// Compile-time check that the adapter satisfies the domain interface.
var _ ingestion.StagingCache = (*RedisStagingCache)(nil)

// NewRedisStagingCache connects to Redis and verifies connectivity before
// returning. A nil logger uses slog.Default().
func NewRedisStagingCache(cfg *StagingConfig, logger *slog.Logger) (*RedisStagingCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("%w: %v", ErrStagingUnavailable, err)
	}

	logger.Info("staging cache connected", slog.String("addr", cfg.Addr()))

	return &RedisStagingCache{
		client: client,
		decode: cfg.DecodeResponse,
		logger: logger,
	}, nil
}

// Put stores a value under key as JSON text. Scalars are wrapped as
// {"_source": <value>} so every staged value is a JSON object or array.
// Overwrites are idempotent.
func (s *RedisStagingCache) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(stagingValue(value))
	if err != nil {
		return fmt.Errorf("encode staged value: %w", err)
	}

	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("%w: put %s: %v", ErrStagingUnavailable, key, err)
	}

	return nil
}

// Get returns the value stored under key and whether it existed. Values are
// JSON-decoded when decoding is enabled and the payload parses; otherwise
// the raw string comes back.
func (s *RedisStagingCache) Get(ctx context.Context, key string) (any, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: get %s: %v", ErrStagingUnavailable, key, err)
	}

	return s.decodeValue(raw), true, nil
}

// GetAll returns every staged entry, including entries staged by other
// processes.
func (s *RedisStagingCache) GetAll(ctx context.Context) ([]ingestion.StagedEntry, error) {
	keys, err := s.client.Keys(ctx, "*").Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list keys: %v", ErrStagingUnavailable, err)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget %d keys: %v", ErrStagingUnavailable, len(keys), err)
	}

	entries := make([]ingestion.StagedEntry, 0, len(keys))

	for i, key := range keys {
		// Entries deleted between KEYS and MGET come back nil.
		raw, ok := values[i].(string)
		if !ok {
			continue
		}

		entries = append(entries, ingestion.StagedEntry{Key: key, Value: s.decodeValue(raw)})
	}

	return entries, nil
}

// Delete evicts the named keys, or every staged entry when no keys are
// given, and returns the number evicted.
func (s *RedisStagingCache) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		all, err := s.client.Keys(ctx, "*").Result()
		if err != nil {
			return 0, fmt.Errorf("%w: list keys: %v", ErrStagingUnavailable, err)
		}

		if len(all) == 0 {
			return 0, nil
		}

		keys = all
	}

	evicted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: delete %d keys: %v", ErrStagingUnavailable, len(keys), err)
	}

	return evicted, nil
}

// HealthCheck verifies the cache is reachable.
func (s *RedisStagingCache) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStagingUnavailable, err)
	}

	return nil
}

// Close closes the Redis client.
func (s *RedisStagingCache) Close() error {
	return s.client.Close()
}

// decodeValue applies the configured read decoding: JSON when it parses,
// raw string otherwise.
func (s *RedisStagingCache) decodeValue(raw string) any {
	if !s.decode {
		return raw
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}

	return decoded
}

// stagingValue coerces a value into the object-or-array shape staged values
// must have; scalars are wrapped under "_source".
func stagingValue(value any) any {
	if value == nil {
		return map[string]any{"_source": nil}
	}

	v := reflect.ValueOf(value)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{"_source": nil}
		}

		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return value
	default:
		return map[string]any{"_source": value}
	}
}
