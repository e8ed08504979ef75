// Package middleware provides HTTP middleware components for the logtier API.
package middleware

import (
	"context"
	"time"
)

// tenantContextKey is the context key for authenticated tenant information.
// Using a struct type ensures type safety and prevents collisions with other context keys.
type tenantContextKey struct{}

// TenantContext carries the authenticated tenant enriched into the request
// context by the authentication middleware. Every record ingested on this
// request is stamped with this identity.
type TenantContext struct {
	// AppID is the application the API key was minted for.
	AppID string

	// ServerID is the server the API key is bound to.
	ServerID string

	// AuthTime is the timestamp when authentication occurred (for latency tracking).
	AuthTime time.Time
}

// GetTenantContext extracts the tenant from the request context.
// Returns (tenant, true) if authenticated, (empty, false) if not found.
//
// Example usage:
//
//	tenant, authenticated := middleware.GetTenantContext(r.Context())
//	if !authenticated {
//	    // Handle unauthenticated request
//	    return
//	}
//	record.Stamp(tenant.AppID, tenant.ServerID)
func GetTenantContext(ctx context.Context) (TenantContext, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(TenantContext)

	return tenant, ok
}

// SetTenantContext adds the tenant to the request context.
// Returns a new context with the tenant attached.
//
// This function is used by the authentication middleware after successful
// API key validation.
func SetTenantContext(ctx context.Context, tenant TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}
