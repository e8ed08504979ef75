// Package middleware provides HTTP middleware components for the logtier API.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/logtier-io/logtier/internal/auth"
)

// publicEndpoints defines public endpoints that bypass authentication.
// These endpoints are accessible without API keys (e.g., K8s health probes, monitoring tools).
//
// Security note: Only health check and metrics endpoints should be in this map.
// Never add business logic endpoints to this bypass list.
var publicEndpoints = map[string]bool{} //nolint: gochecknoglobals

// RegisterPublicEndpoint registers an endpoint that bypasses authentication.
// This should only be called during route setup for health check endpoints.
//
// Example:
//
//	middleware.RegisterPublicEndpoint("/ping")
//	middleware.RegisterPublicEndpoint("/health_check")
func RegisterPublicEndpoint(endpoint string) {
	publicEndpoints[endpoint] = true
}

// TenantValidator resolves an API key token to its tenant. It never returns
// an error; any failure yields ok=false. *auth.Authenticator satisfies it.
type TenantValidator interface {
	Validate(ctx context.Context, token string) (auth.Tenant, bool)
}

// AuthError represents an authentication error with a specific type.
type AuthError struct {
	Type    error
	Message string
}

// Authentication error types for granular error handling.
var (
	// ErrMissingAPIKey is returned when no API key is presented.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidAPIKey is returned when the key fails decryption or the
	// registry check. Generic message prevents enumeration attacks.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Error implements the error interface for AuthError.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling standard errors.Is() and errors.As() behavior.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// extractAPIKey extracts the API key from the request.
//
// Sources, in precedence order:
//  1. X-API-Key header (primary, ingest surface)
//  2. Authorization: Bearer header (fallback)
//  3. apikey / apiKey query parameter (fetch and export surfaces). Browsers
//     and shells decode '+' in a query value to a space, so spaces are
//     repaired back to '+' before validation; base64 tokens contain '+' but
//     never a literal space.
//
// Returns (key, true) if found and valid, ("", false) otherwise.
func extractAPIKey(r *http.Request) (string, bool) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return cleanAPIKey(apiKey)
	}

	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return cleanAPIKey(strings.TrimPrefix(authHeader, "Bearer "))
	}

	query := r.URL.Query()

	raw := query.Get("apikey")
	if raw == "" {
		raw = query.Get("apiKey")
	}

	if raw != "" {
		return cleanAPIKey(strings.ReplaceAll(raw, " ", "+"))
	}

	return "", false
}

// cleanAPIKey validates and cleans an API key value.
// Returns (cleanedKey, true) if valid, ("", false) otherwise.
//
// Validation rules:
// - Rejects keys containing newlines (\r or \n) for header injection prevention
// - Trims leading/trailing whitespace
// - Rejects empty keys after trimming.
func cleanAPIKey(key string) (string, bool) {
	if strings.ContainsAny(key, "\r\n") {
		return "", false
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}

	return key, true
}

// AuthenticateTenant creates an authentication middleware that validates API
// keys and enriches the request context with the tenant identity.
//
// The middleware:
// - Extracts API keys from X-API-Key, Authorization: Bearer, or apikey query param
// - Resolves the key to its (app_id, server_id) tenant via the validator
// - Enriches the request context with TenantContext
// - Returns RFC 7807 compliant error responses: 401 missing key, 403 invalid key
//
// Example usage:
//
//	authenticator := auth.NewAuthenticator(registry, cipher, logger)
//	authMiddleware := middleware.AuthenticateTenant(authenticator, logger)
//	handler = authMiddleware(handler)
func AuthenticateTenant(validator TenantValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check if this path bypasses authentication (public endpoints)
			if publicEndpoints[r.URL.Path] {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			apiKey, found := extractAPIKey(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrMissingAPIKey,
					Message: "Missing API key",
				})

				return
			}

			tenant, ok := validator.Validate(r.Context(), apiKey)
			if !ok {
				writeAuthError(w, r, logger, &AuthError{
					Type:    ErrInvalidAPIKey,
					Message: "Invalid API key",
				})

				return
			}

			ctx := SetTenantContext(r.Context(), TenantContext{
				AppID:    tenant.AppID,
				ServerID: tenant.ServerID,
				AuthTime: time.Now(),
			})

			logger.Info("API key authenticated",
				slog.String("app_id", tenant.AppID),
				slog.String("server_id", tenant.ServerID),
				slog.String("key", auth.MaskToken(apiKey)),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("correlation_id", GetCorrelationID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError writes an RFC 7807 compliant error response for authentication failures.
// Missing keys map to 401; invalid keys map to 403.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	statusCode := http.StatusForbidden

	var authErr *AuthError
	if errors.As(err, &authErr) && errors.Is(authErr.Type, ErrMissingAPIKey) {
		statusCode = http.StatusUnauthorized
	}

	// Log authentication failure (no sensitive data)
	logger.Warn("Authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	)

	detail := err.Error()
	if err := writeRFC7807Error(w, r, statusCode, detail, correlationID); err != nil {
		logger.Error("failed to write response with RFC 7807 error format",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("detail", detail),
			slog.Any("error", err),
		)

		// Fallback to plain text if writeRFC7807Error fails
		http.Error(w, detail, statusCode)
	}
}

// writeRFC7807Error writes an RFC 7807 compliant error response without importing the api package.
func writeRFC7807Error(
	w http.ResponseWriter,
	r *http.Request,
	statusCode int,
	detail,
	correlationID string,
) error {
	var title string

	switch statusCode {
	case http.StatusUnauthorized:
		title = "Unauthorized"
	case http.StatusForbidden:
		title = "Forbidden"
	case http.StatusTooManyRequests:
		title = "Too Many Requests"
	default:
		title = "Authentication Failed"
	}

	problem := map[string]interface{}{
		"type":           fmt.Sprintf("https://logtier.io/problems/%d", statusCode),
		"title":          title,
		"status":         statusCode,
		"detail":         detail,
		"instance":       r.URL.Path,
		"correlation_id": correlationID,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(statusCode)

	return json.NewEncoder(w).Encode(problem)
}
