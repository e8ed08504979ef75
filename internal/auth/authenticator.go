package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

const (
	maskPrefixLen = 6
	maskSuffixLen = 4
)

// ErrNoServerRegistered is returned by Issue when the application has no
// registered server to bind the key to.
var ErrNoServerRegistered = errors.New("no server registered for application")

// Tenant identifies the authenticated owner of ingested records.
type Tenant struct {
	AppID    string `json:"app_id"`
	ServerID string `json:"server_id"`
}

// Authenticator issues and validates API keys against the tenant registry.
type Authenticator struct {
	registry TenantRegistry
	cipher   *Cipher
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil logger falls back to
// slog.Default().
func NewAuthenticator(registry TenantRegistry, cipher *Cipher, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Authenticator{
		registry: registry,
		cipher:   cipher,
		logger:   logger,
	}
}

// Issue mints an API key for appID bound to its first registered server,
// records the issuance in the registry, and returns the token.
func (a *Authenticator) Issue(ctx context.Context, appID string) (string, error) {
	servers, err := a.registry.ServersOf(ctx, appID)
	if err != nil {
		return "", fmt.Errorf("list servers for app: %w", err)
	}

	if len(servers) == 0 {
		return "", fmt.Errorf("%w: app %s", ErrNoServerRegistered, appID)
	}

	serverID := servers[0]

	token, err := a.cipher.Encrypt(appID + ":" + serverID)
	if err != nil {
		return "", fmt.Errorf("encrypt key material: %w", err)
	}

	if err := a.registry.RecordKey(ctx, appID, token); err != nil {
		return "", fmt.Errorf("record issued key: %w", err)
	}

	a.logger.Info("api key issued",
		slog.String("app_id", appID),
		slog.String("server_id", serverID),
		slog.String("key", MaskToken(token)),
	)

	return token, nil
}

// Validate resolves an API key to its tenant. It never returns an error:
// decryption failures, parse failures, missing apps, and registry errors all
// yield (Tenant{}, false).
//
// A key is accepted when either the exact (app_id, api_key) issuance row
// exists, or the embedded server id is still registered for the app. The
// second policy keeps legacy keys valid for as long as the (app, server)
// relation exists, even after the issuance row is gone.
func (a *Authenticator) Validate(ctx context.Context, token string) (Tenant, bool) {
	if token == "" {
		return Tenant{}, false
	}

	plaintext, err := a.cipher.Decrypt(token)
	if err != nil {
		a.logger.Debug("api key rejected",
			slog.String("reason", "decrypt"),
			slog.String("key", MaskToken(token)),
		)

		return Tenant{}, false
	}

	if strings.Count(plaintext, ":") != 1 {
		a.logger.Debug("api key rejected", slog.String("reason", "format"))

		return Tenant{}, false
	}

	appID, serverID, _ := strings.Cut(plaintext, ":")
	if appID == "" || serverID == "" {
		a.logger.Debug("api key rejected", slog.String("reason", "empty identity"))

		return Tenant{}, false
	}

	exists, err := a.registry.AppExists(ctx, appID)
	if err != nil || !exists {
		a.logger.Debug("api key rejected",
			slog.String("reason", "unknown app"),
			slog.String("app_id", appID),
		)

		return Tenant{}, false
	}

	issued, err := a.registry.KeyIssued(ctx, appID, token)
	if err == nil && issued {
		return Tenant{AppID: appID, ServerID: serverID}, true
	}

	servers, err := a.registry.ServersOf(ctx, appID)
	if err != nil {
		a.logger.Debug("api key rejected",
			slog.String("reason", "registry unavailable"),
			slog.String("app_id", appID),
		)

		return Tenant{}, false
	}

	if slices.Contains(servers, serverID) {
		return Tenant{AppID: appID, ServerID: serverID}, true
	}

	a.logger.Debug("api key rejected",
		slog.String("reason", "server not registered"),
		slog.String("app_id", appID),
	)

	return Tenant{}, false
}

// MaskToken returns a log-safe form of an API key token.
func MaskToken(token string) string {
	if len(token) <= maskPrefixLen+maskSuffixLen {
		return "***"
	}

	return token[:maskPrefixLen] + "..." + token[len(token)-maskSuffixLen:]
}
