package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = "6f7c2f6e-9f4e-4e61-9a1d-3a2b1c0d9e8f"

func newMockRegistry(t *testing.T) (*PersistentTenantRegistry, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	t.Cleanup(func() {
		_ = db.Close()
	})

	conn := &Connection{db: db, logger: testLogger()}

	return NewPersistentTenantRegistry(conn, testLogger()), mock
}

func TestAppExists(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("registered app", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(testAppID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := registry.AppExists(context.Background(), testAppID)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("unknown app", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := registry.AppExists(context.Background(), "nope")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("empty app id short-circuits", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		exists, err := registry.AppExists(context.Background(), "")
		require.NoError(t, err)
		assert.False(t, exists)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("connection failure wraps ErrRegistryUnavailable", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(testAppID).
			WillReturnError(driver.ErrBadConn)

		_, err := registry.AppExists(context.Background(), testAppID)
		require.ErrorIs(t, err, ErrRegistryUnavailable)
	})
}

func TestServersOf(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("returns registered servers in order", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		rows := sqlmock.NewRows([]string{"server_id"}).
			AddRow("srv-alpha").
			AddRow("srv-beta")

		mock.ExpectQuery("SELECT server_id FROM apps").
			WithArgs(testAppID).
			WillReturnRows(rows)

		servers, err := registry.ServersOf(context.Background(), testAppID)
		require.NoError(t, err)
		assert.Equal(t, []string{"srv-alpha", "srv-beta"}, servers)
	})

	t.Run("missing app yields empty slice", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("SELECT server_id FROM apps").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"server_id"}))

		servers, err := registry.ServersOf(context.Background(), "ghost")
		require.NoError(t, err)
		assert.Empty(t, servers)
	})
}

func TestKeyIssued(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	token := "issued-token-0123456789"

	hash, err := HashAPIKey(token)
	require.NoError(t, err)

	t.Run("matching hash accepts", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		rows := sqlmock.NewRows([]string{"api_key"}).AddRow(hash)

		mock.ExpectQuery("SELECT api_key FROM api_keys").
			WithArgs(testAppID).
			WillReturnRows(rows)

		issued, err := registry.KeyIssued(context.Background(), testAppID, token)
		require.NoError(t, err)
		assert.True(t, issued)
	})

	t.Run("foreign hash denies", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		otherHash, err := HashAPIKey("some-other-token")
		require.NoError(t, err)

		rows := sqlmock.NewRows([]string{"api_key"}).AddRow(otherHash)

		mock.ExpectQuery("SELECT api_key FROM api_keys").
			WithArgs(testAppID).
			WillReturnRows(rows)

		issued, err := registry.KeyIssued(context.Background(), testAppID, token)
		require.NoError(t, err)
		assert.False(t, issued)
	})

	t.Run("empty inputs short-circuit", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		issued, err := registry.KeyIssued(context.Background(), "", token)
		require.NoError(t, err)
		assert.False(t, issued)

		issued, err = registry.KeyIssued(context.Background(), testAppID, "")
		require.NoError(t, err)
		assert.False(t, issued)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRecordKeyStoresHash(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, mock := newMockRegistry(t)

	token := "freshly-minted-token"

	// The stored value must be a bcrypt hash, never the plaintext token.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO api_keys (app_id, api_key) VALUES ($1, $2)")).
		WithArgs(testAppID, bcryptHashArg{token: token}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, registry.RecordKey(context.Background(), testAppID, token))
	require.NoError(t, mock.ExpectationsWereMet())
}

// bcryptHashArg matches an argument that is a valid bcrypt hash of token and
// not the token itself.
type bcryptHashArg struct {
	token string
}

func (a bcryptHashArg) Match(v driver.Value) bool {
	hash, ok := v.(string)
	if !ok || hash == a.token {
		return false
	}

	return CompareAPIKeyHash(hash, a.token)
}

func TestInsertApp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("new app returns generated id", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("INSERT INTO apps").
			WithArgs("checkout", "checkout service", "srv-alpha").
			WillReturnRows(sqlmock.NewRows([]string{"app_id"}).AddRow(testAppID))

		appID, err := registry.InsertApp(context.Background(), "checkout", "checkout service", "srv-alpha")
		require.NoError(t, err)
		assert.Equal(t, testAppID, appID)
	})

	t.Run("existing app name returns existing id", func(t *testing.T) {
		registry, mock := newMockRegistry(t)

		mock.ExpectQuery("INSERT INTO apps").
			WithArgs("checkout", "checkout service", "srv-alpha").
			WillReturnRows(sqlmock.NewRows([]string{"app_id"}))

		mock.ExpectQuery("SELECT app_id FROM apps").
			WithArgs("checkout").
			WillReturnRows(sqlmock.NewRows([]string{"app_id"}).AddRow(testAppID))

		appID, err := registry.InsertApp(context.Background(), "checkout", "checkout service", "srv-alpha")
		require.NoError(t, err)
		assert.Equal(t, testAppID, appID)
	})
}

func TestRegistryErrorPassThrough(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	registry, mock := newMockRegistry(t)

	statementErr := errors.New("syntax error")

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(testAppID).
		WillReturnError(statementErr)

	_, err := registry.AppExists(context.Background(), testAppID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRegistryUnavailable, "statement errors are not connection errors")
}
