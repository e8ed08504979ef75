package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logtier-io/logtier/internal/ingestion"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newMockColdStore(t *testing.T) (*ClickHouseColdStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	t.Cleanup(func() {
		_ = db.Close()
	})

	return &ClickHouseColdStore{db: db, logger: testLogger()}, mock
}

func TestInsertUnionOfColumns(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	// Two rows with different shapes: the statement covers the sorted union
	// of their columns and fills the gaps with NULL.
	batch := []ingestion.ColdRow{
		{"event_type": "http", "message": "hello"},
		{"event_type": "job", "status_code": float64(500)},
	}

	want := "INSERT INTO logs (event_type, message, status_code) VALUES " +
		"('http', 'hello', NULL), ('job', NULL, '500')"

	mock.ExpectExec(regexp.QuoteMeta(want)).WillReturnResult(sqlmock.NewResult(0, 2))

	inserted, err := store.Insert(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEncodesNestedSections(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	batch := []ingestion.ColdRow{
		{
			"source":    map[string]any{"tenant": map[string]any{"app_id": "a-1"}},
			"timestamp": "2026-03-14 09:30:15",
		},
	}

	want := "INSERT INTO logs (source, timestamp) VALUES " +
		`('{"tenant":{"app_id":"a-1"}}', '2026-03-14 09:30:15')`

	mock.ExpectExec(regexp.QuoteMeta(want)).WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := store.Insert(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEmptyBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	inserted, err := store.Insert(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertFailureReportsZero(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	mock.ExpectExec("INSERT INTO logs").WillReturnError(errors.New("connection refused"))

	inserted, err := store.Insert(context.Background(), []ingestion.ColdRow{{"message": "doomed"}})

	assert.Equal(t, 0, inserted)

	if !errors.Is(err, ErrColdStoreUnavailable) {
		t.Errorf("Insert() error = %v, want %v", err, ErrColdStoreUnavailable)
	}
}

func TestFetchDecodesJSONColumns(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	ts := time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"log_id", "timestamp", "message", "diagnostics", "source"}).
		AddRow("3f1c", ts, "plain text", `{"request":{"request_id":"req-1"}}`, `{"tenant":{"app_id":"a-1"}}`).
		AddRow("9b2d", ts, nil, nil, nil)

	mock.ExpectQuery("SELECT .+ FROM logs ORDER BY timestamp DESC").WillReturnRows(rows)

	result, err := store.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 2)

	first := result[0]
	assert.Equal(t, "3f1c", first["log_id"])
	assert.Equal(t, ts, first["timestamp"])
	assert.Equal(t, "plain text", first["message"])

	diagnostics, ok := first["diagnostics"].(map[string]any)
	require.True(t, ok, "diagnostics JSON text not decoded")
	assert.NotNil(t, diagnostics["request"])

	source, ok := first["source"].(map[string]any)
	require.True(t, ok, "source JSON not decoded")
	assert.NotNil(t, source["tenant"])

	assert.Nil(t, result[1]["message"], "NULL column survives as nil")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchByIDs(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	rows := sqlmock.NewRows([]string{"log_id"}).AddRow("3f1c")

	mock.ExpectQuery(regexp.QuoteMeta("WHERE log_id IN ('3f1c', '9b2d')")).WillReturnRows(rows)

	result, err := store.Fetch(context.Background(), "3f1c", "9b2d")
	require.NoError(t, err)
	require.Len(t, result, 1)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("no ids truncates", func(t *testing.T) {
		store, mock := newMockColdStore(t)

		mock.ExpectExec(regexp.QuoteMeta("TRUNCATE TABLE logs")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.Delete(context.Background()))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ids delete by log_id", func(t *testing.T) {
		store, mock := newMockColdStore(t)

		mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE logs DELETE WHERE log_id IN ('3f1c')")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Delete(context.Background(), "3f1c"))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store, mock := newMockColdStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS logs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnionColumnsSorted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	batch := []ingestion.ColdRow{
		{"message": "m", "app_id": "a"},
		{"timestamp": "t", "app_id": "a"},
	}

	got := unionColumns(batch)
	want := []string{"app_id", "message", "timestamp"}

	require.Equal(t, want, got)
}
