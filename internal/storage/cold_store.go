package storage

import (
	"context"
	"crypto/tls"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/logtier-io/logtier/internal/ingestion"
)

// ErrColdStoreUnavailable is returned on cold store connection or query
// failures. Insert reports 0 accepted rows alongside it so the pipeline
// keeps the batch staged.
var ErrColdStoreUnavailable = errors.New("cold store unavailable")

// logsSchema is the columnar table the cold store writes. The layout is
// fixed; FlattenRecord projects records onto exactly these columns.
const logsSchema = `
	CREATE TABLE IF NOT EXISTS logs (
		log_id UUID DEFAULT generateUUIDv4(),
		app_id UUID NOT NULL,

		timestamp DateTime DEFAULT now(),
		event_type Nullable(String),
		event_name Nullable(String),
		event_category Nullable(String),

		hostname Nullable(String),
		portnumber Nullable(Int32),
		api_key Nullable(String),

		severity_level Nullable(String),
		status_code Nullable(Int32),
		session_id Nullable(String),
		request_id Nullable(String),
		success_flag Nullable(Boolean),

		message Nullable(String),
		description Nullable(String),
		diagnostics Nullable(String),
		source Nullable(JSON)

	) ENGINE = MergeTree()
	ORDER BY (timestamp)
`

// logColumns is the explicit select list for fetches, matching the schema
// order.
var logColumns = []string{
	"log_id", "app_id", "timestamp",
	"event_type", "event_name", "event_category",
	"hostname", "portnumber", "api_key",
	"severity_level", "status_code", "session_id", "request_id", "success_flag",
	"message", "description", "diagnostics", "source",
}

// ClickHouseColdStore implements ingestion.ColdStore over the ClickHouse
// native protocol through database/sql.
type ClickHouseColdStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time check that the adapter satisfies the domain interface.
var _ ingestion.ColdStore = (*ClickHouseColdStore)(nil)

// NewClickHouseColdStore connects to ClickHouse and verifies connectivity
// before returning. A nil logger uses slog.Default().
func NewClickHouseColdStore(cfg *ColdConfig, logger *slog.Logger) (*ClickHouseColdStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.password,
		},
	}

	if cfg.Secure {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	db := clickhouse.OpenDB(opts)
	db.SetMaxOpenConns(defaultColdMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %v", ErrColdStoreUnavailable, err)
	}

	logger.Info("cold store connected",
		slog.String("addr", cfg.Addr()),
		slog.Bool("secure", cfg.Secure),
	)

	return &ClickHouseColdStore{db: db, logger: logger}, nil
}

// Insert writes a heterogeneous batch as one multi-row statement over the
// sorted union of the batch's columns; columns a row lacks become NULL.
// Returns the number of rows accepted: len(batch) on success, 0 with an
// error on failure.
func (s *ClickHouseColdStore) Insert(ctx context.Context, batch []ingestion.ColdRow) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	columns := unionColumns(batch)

	var b strings.Builder

	b.WriteString("INSERT INTO logs (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	for i, row := range batch {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString("(")

		for j, column := range columns {
			if j > 0 {
				b.WriteString(", ")
			}

			value, ok := row[column]
			if !ok {
				b.WriteString("NULL")

				continue
			}

			b.WriteString(toSQLLiteral(value))
		}

		b.WriteString(")")
	}

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return 0, fmt.Errorf("%w: insert %d rows: %v", ErrColdStoreUnavailable, len(batch), err)
	}

	return len(batch), nil
}

// Fetch returns rows keyed by column name, newest first. With ids it
// filters by log_id; without it scans the whole table. String values that
// parse as JSON objects or arrays are decoded, which covers the source JSON
// column and diagnostics text.
func (s *ClickHouseColdStore) Fetch(ctx context.Context, ids ...string) ([]ingestion.ColdRow, error) {
	query := "SELECT " + strings.Join(logColumns, ", ") + " FROM logs"
	if len(ids) > 0 {
		query += " WHERE log_id IN (" + joinLiterals(ids) + ")"
	}

	query += " ORDER BY timestamp DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrColdStoreUnavailable, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%w: fetch columns: %v", ErrColdStoreUnavailable, err)
	}

	var result []ingestion.ColdRow

	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))

		for i := range values {
			scanTargets[i] = &values[i]
		}

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("%w: fetch scan: %v", ErrColdStoreUnavailable, err)
		}

		row := make(ingestion.ColdRow, len(columns))
		for i, column := range columns {
			row[column] = decodeColumnValue(values[i])
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: fetch rows: %v", ErrColdStoreUnavailable, err)
	}

	return result, nil
}

// Delete removes rows by log_id, or truncates the table when no ids are
// given.
func (s *ClickHouseColdStore) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		if _, err := s.db.ExecContext(ctx, "TRUNCATE TABLE logs"); err != nil {
			return fmt.Errorf("%w: truncate: %v", ErrColdStoreUnavailable, err)
		}

		return nil
	}

	query := "ALTER TABLE logs DELETE WHERE log_id IN (" + joinLiterals(ids) + ")"

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: delete %d ids: %v", ErrColdStoreUnavailable, len(ids), err)
	}

	return nil
}

// EnsureSchema creates the logs table when it does not exist yet. Run by
// the provisioner, out of band of the serving path.
func (s *ClickHouseColdStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, logsSchema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrColdStoreUnavailable, err)
	}

	s.logger.Info("logs table created or already exists")

	return nil
}

// HealthCheck verifies the cold store is reachable.
func (s *ClickHouseColdStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrColdStoreUnavailable, err)
	}

	return nil
}

// Close closes the connection pool.
func (s *ClickHouseColdStore) Close() error {
	return s.db.Close()
}

// unionColumns returns the sorted union of column names across the batch.
func unionColumns(batch []ingestion.ColdRow) []string {
	seen := make(map[string]struct{})

	for _, row := range batch {
		for column := range row {
			seen[column] = struct{}{}
		}
	}

	columns := make([]string, 0, len(seen))
	for column := range seen {
		columns = append(columns, column)
	}

	sort.Strings(columns)

	return columns
}

// joinLiterals renders ids as a comma-separated literal list.
func joinLiterals(ids []string) string {
	literals := make([]string, len(ids))
	for i, id := range ids {
		literals[i] = toSQLLiteral(id)
	}

	return strings.Join(literals, ", ")
}

// decodeColumnValue normalizes a scanned column value: byte slices become
// strings, and strings that parse as JSON objects or arrays are decoded.
func decodeColumnValue(v any) any {
	switch value := v.(type) {
	case []byte:
		return decodeJSONText(string(value))
	case string:
		return decodeJSONText(value)
	case time.Time:
		return value
	default:
		return v
	}
}

func decodeJSONText(s string) any {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return s
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return s
	}

	return decoded
}
