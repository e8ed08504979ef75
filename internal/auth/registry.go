package auth

import "context"

// TenantRegistry defines what the Authenticator needs from the relational
// tenant store, without depending on a concrete implementation. The Postgres
// implementation lives in internal/storage.
//
// Every operation either returns data or an error; the Authenticator treats
// any error as "deny". Implementations wrap their driver errors so callers
// never match on driver types.
type TenantRegistry interface {
	// AppExists reports whether an application row exists for appID.
	AppExists(ctx context.Context, appID string) (bool, error)

	// ServersOf returns the server ids currently registered for appID.
	// A missing app yields an empty slice, not an error.
	ServersOf(ctx context.Context, appID string) ([]string, error)

	// KeyIssued reports whether apiKey was recorded as issued for appID.
	KeyIssued(ctx context.Context, appID, apiKey string) (bool, error)

	// RecordKey appends an issuance row for (appID, apiKey).
	RecordKey(ctx context.Context, appID, apiKey string) error
}
