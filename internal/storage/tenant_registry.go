package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/logtier-io/logtier/internal/auth"
)

// PersistentTenantRegistry implements auth.TenantRegistry against the
// PostgreSQL servers/apps/api_keys schema. Issued keys are stored as bcrypt
// hashes, so KeyIssued loads the app's hashes and compares in memory;
// acceptable while apps hold a handful of keys each.
type PersistentTenantRegistry struct {
	conn   *Connection
	logger *slog.Logger
}

// Compile-time check that the registry satisfies the domain interface.
var _ auth.TenantRegistry = (*PersistentTenantRegistry)(nil)

// NewPersistentTenantRegistry creates a registry over an established
// connection. A nil logger uses slog.Default().
func NewPersistentTenantRegistry(conn *Connection, logger *slog.Logger) *PersistentTenantRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &PersistentTenantRegistry{conn: conn, logger: logger}
}

// AppExists reports whether the application is registered. Malformed ids
// compare as text so they return false instead of a cast error.
func (r *PersistentTenantRegistry) AppExists(ctx context.Context, appID string) (bool, error) {
	if appID == "" {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM apps WHERE app_id::text = $1)`

	var exists bool
	if err := r.conn.QueryRowContext(ctx, query, appID).Scan(&exists); err != nil {
		return false, registryError("app lookup", err)
	}

	return exists, nil
}

// ServersOf returns the server ids currently registered for the application.
func (r *PersistentTenantRegistry) ServersOf(ctx context.Context, appID string) ([]string, error) {
	query := `SELECT server_id FROM apps WHERE app_id::text = $1 ORDER BY server_id`

	rows, err := r.conn.QueryContext(ctx, query, appID)
	if err != nil {
		return nil, registryError("server lookup", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var servers []string

	for rows.Next() {
		var serverID string
		if err := rows.Scan(&serverID); err != nil {
			return nil, registryError("server scan", err)
		}

		servers = append(servers, serverID)
	}

	if err := rows.Err(); err != nil {
		return nil, registryError("server iteration", err)
	}

	return servers, nil
}

// KeyIssued reports whether the exact (app, key) issuance row exists.
func (r *PersistentTenantRegistry) KeyIssued(ctx context.Context, appID, apiKey string) (bool, error) {
	if appID == "" || apiKey == "" {
		return false, nil
	}

	query := `SELECT api_key FROM api_keys WHERE app_id::text = $1`

	rows, err := r.conn.QueryContext(ctx, query, appID)
	if err != nil {
		return false, registryError("issuance lookup", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	issued := false

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			continue
		}

		if CompareAPIKeyHash(hash, apiKey) {
			issued = true

			break
		}
	}

	if err := rows.Err(); err != nil {
		return false, registryError("issuance iteration", err)
	}

	return issued, nil
}

// RecordKey appends an issuance row for the app. The plaintext token is
// hashed before storage and cannot be recovered from the registry.
func (r *PersistentTenantRegistry) RecordKey(ctx context.Context, appID, apiKey string) error {
	hash, err := HashAPIKey(apiKey)
	if err != nil {
		return fmt.Errorf("record key: %w", err)
	}

	query := `INSERT INTO api_keys (app_id, api_key) VALUES ($1, $2)`

	if _, err := r.conn.ExecContext(ctx, query, appID, hash); err != nil {
		return registryError("record key", err)
	}

	return nil
}

// InsertServer registers a server. Re-seeding an existing server id is a
// no-op, which keeps provisioning idempotent.
func (r *PersistentTenantRegistry) InsertServer(ctx context.Context, serverID, name, description string) error {
	query := `
		INSERT INTO servers (server_id, server_name, server_description)
		VALUES ($1, $2, $3)
		ON CONFLICT (server_id) DO NOTHING
	`

	if _, err := r.conn.ExecContext(ctx, query, serverID, name, description); err != nil {
		return registryError("insert server", err)
	}

	return nil
}

// InsertApp registers an application bound to a server and returns its
// app_id. Re-seeding an existing app name returns the existing id.
func (r *PersistentTenantRegistry) InsertApp(ctx context.Context, name, description, serverID string) (string, error) {
	query := `
		INSERT INTO apps (app_name, app_description, server_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (app_name) DO NOTHING
		RETURNING app_id
	`

	var appID string

	err := r.conn.QueryRowContext(ctx, query, name, description, serverID).Scan(&appID)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.conn.QueryRowContext(ctx, `SELECT app_id FROM apps WHERE app_name = $1`, name).Scan(&appID)
	}

	if err != nil {
		return "", registryError("insert app", err)
	}

	return appID, nil
}

// HealthCheck verifies the registry database is reachable.
func (r *PersistentTenantRegistry) HealthCheck(ctx context.Context) error {
	return r.conn.HealthCheck(ctx)
}

// Close closes the underlying connection pool.
func (r *PersistentTenantRegistry) Close() error {
	return r.conn.Close()
}

// registryError wraps a driver error, folding connection-class failures into
// ErrRegistryUnavailable so callers never match on driver types.
func registryError(op string, err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("%s: %w", op, ErrRegistryUnavailable)
	}

	return fmt.Errorf("%s: %w", op, err)
}
