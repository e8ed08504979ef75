package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStagingCache(t *testing.T, decode bool) (*RedisStagingCache, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return &RedisStagingCache{
		client: client,
		decode: decode,
		logger: testLogger(),
	}, srv
}

func TestPutGetRoundTrip(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	staged := map[string]any{
		"event_type":   "http",
		"message_info": map[string]any{"message": "hello"},
	}

	require.NoError(t, cache.Put(ctx, "rec-1", staged))

	value, ok, err := cache.Get(ctx, "rec-1")
	require.NoError(t, err)
	require.True(t, ok)

	decoded, ok := value.(map[string]any)
	require.True(t, ok, "staged value not decoded as JSON object")
	assert.Equal(t, "http", decoded["event_type"])
}

func TestPutWrapsScalars(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "scalar", "just text"))

	value, ok, err := cache.Get(ctx, "scalar")
	require.NoError(t, err)
	require.True(t, ok)

	decoded, ok := value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "just text", decoded["_source"])
}

func TestPutIsIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	payload := map[string]any{"message": "same"}

	require.NoError(t, cache.Put(ctx, "rec-1", payload))
	require.NoError(t, cache.Put(ctx, "rec-1", payload))

	entries, err := cache.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1, "repeated put must not create a second entry")
}

func TestGetMissingKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)

	value, ok, err := cache.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, value)
}

func TestGetRawWhenDecodingDisabled(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, false)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "rec-1", map[string]any{"message": "raw"}))

	value, ok, err := cache.Get(ctx, "rec-1")
	require.NoError(t, err)
	require.True(t, ok)

	raw, ok := value.(string)
	require.True(t, ok, "decoding disabled should return the raw string")
	assert.JSONEq(t, `{"message":"raw"}`, raw)
}

func TestGetRawFallbackForNonJSON(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, srv := newTestStagingCache(t, true)

	// A value written by something other than this adapter.
	srv.Set("legacy", "not json at all")

	value, ok, err := cache.Get(context.Background(), "legacy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "not json at all", value)
}

func TestGetAllSeesEveryEntry(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Put(ctx, key, map[string]any{"key": key}))
	}

	entries, err := cache.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		seen[entry.Key] = true
	}

	for _, key := range []string{"a", "b", "c"} {
		assert.True(t, seen[key], "entry %q missing from GetAll", key)
	}
}

func TestGetAllEmpty(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)

	entries, err := cache.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDeleteNamedKeys(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Put(ctx, key, map[string]any{"key": key}))
	}

	evicted, err := cache.Delete(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(2), evicted)

	entries, err := cache.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Key)
}

func TestDeleteAll(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, _ := newTestStagingCache(t, true)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, cache.Put(ctx, key, map[string]any{"key": key}))
	}

	evicted, err := cache.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), evicted)

	entries, err := cache.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Mass eviction of an already-empty cache is a no-op.
	evicted, err = cache.Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), evicted)
}

func TestStagingUnavailable(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cache, srv := newTestStagingCache(t, true)
	srv.Close()

	ctx := context.Background()

	err := cache.Put(ctx, "rec-1", map[string]any{"message": "doomed"})
	require.ErrorIs(t, err, ErrStagingUnavailable)

	_, err = cache.GetAll(ctx)
	require.ErrorIs(t, err, ErrStagingUnavailable)

	require.ErrorIs(t, cache.HealthCheck(ctx), ErrStagingUnavailable)
}
