package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// connectTimeout bounds the initial connectivity probe.
const connectTimeout = 5 * time.Second

// ErrRegistryUnavailable is returned when the tenant registry cannot be
// reached. The authenticator treats it like any other registry failure and
// denies the request.
var ErrRegistryUnavailable = errors.New("tenant registry unavailable")

// Connection wraps a PostgreSQL connection pool for the tenant registry.
type Connection struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewConnection opens a pooled PostgreSQL connection and verifies
// connectivity before returning. A nil logger uses slog.Default().
func NewConnection(cfg *RelationalConfig, logger *slog.Logger) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	logger.Info("tenant registry connected",
		slog.String("database", cfg.Redacted()),
		slog.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return &Connection{db: db, logger: logger}, nil
}

// QueryContext executes a query that returns rows.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query expected to return at most one row.
func (c *Connection) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement without returning rows.
func (c *Connection) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

// HealthCheck verifies the database is reachable.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}

	return nil
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	if c.db != nil {
		return c.db.Close()
	}

	return nil
}

// isConnectionError reports whether err indicates the database connection is
// gone rather than a statement-level failure. PostgreSQL class 08 covers
// connection exceptions.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	return false
}
