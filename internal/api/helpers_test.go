package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/logtier-io/logtier/internal/ingestion"
)

var errStagingDown = errors.New("staging down")

// fakeStaging is an in-memory ingestion.StagingCache with injectable
// failures.
type fakeStaging struct {
	entries   []ingestion.StagedEntry
	putErr    error
	getAllErr error
	deleted   []string
}

func (f *fakeStaging) Put(_ context.Context, key string, value any) error {
	if f.putErr != nil {
		return f.putErr
	}

	f.entries = append(f.entries, ingestion.StagedEntry{Key: key, Value: value})

	return nil
}

func (f *fakeStaging) Get(_ context.Context, key string) (any, bool, error) {
	for _, entry := range f.entries {
		if entry.Key == key {
			return entry.Value, true, nil
		}
	}

	return nil, false, nil
}

func (f *fakeStaging) GetAll(_ context.Context) ([]ingestion.StagedEntry, error) {
	if f.getAllErr != nil {
		return nil, f.getAllErr
	}

	return append([]ingestion.StagedEntry(nil), f.entries...), nil
}

func (f *fakeStaging) Delete(_ context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		evicted := int64(len(f.entries))
		f.entries = nil

		return evicted, nil
	}

	f.deleted = append(f.deleted, keys...)

	remaining := f.entries[:0]
	evicted := int64(0)

	for _, entry := range f.entries {
		kept := true

		for _, key := range keys {
			if entry.Key == key {
				kept = false
				evicted++

				break
			}
		}

		if kept {
			remaining = append(remaining, entry)
		}
	}

	f.entries = remaining

	return evicted, nil
}

// fakeCold is an in-memory ingestion.ColdStore with injectable failures.
type fakeCold struct {
	rows     []ingestion.ColdRow
	fetchErr error
}

func (f *fakeCold) Insert(_ context.Context, batch []ingestion.ColdRow) (int, error) {
	f.rows = append(f.rows, batch...)

	return len(batch), nil
}

func (f *fakeCold) Fetch(_ context.Context, ids ...string) ([]ingestion.ColdRow, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	if len(ids) == 0 {
		return append([]ingestion.ColdRow(nil), f.rows...), nil
	}

	var filtered []ingestion.ColdRow

	for _, row := range f.rows {
		for _, id := range ids {
			if row["log_id"] == id {
				filtered = append(filtered, row)
			}
		}
	}

	return filtered, nil
}

func (f *fakeCold) Delete(_ context.Context, _ ...string) error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestServer builds a server over fakes without binding a listener; tests
// invoke handler methods directly.
func newTestServer(t *testing.T, staging *fakeStaging, cold *fakeCold) *Server {
	t.Helper()

	return &Server{
		logger: testLogger(),
		config: LoadServerConfig(),
		deps: &Dependencies{
			Staging: staging,
			Cold:    cold,
			Pipeline: &ingestion.Config{
				LocalThreshold: 1,
				StageThreshold: 100,
			},
		},
	}
}
