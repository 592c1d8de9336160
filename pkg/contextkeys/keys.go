// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware auth stages (pkg/middleware/auth.go)
	// Required by: rate-limit gate, quota gate, business handlers
	IdentityKey Key = "identity"

	// CorrelationIDKey contains the request correlation id string
	// Set by: middleware.Correlation
	// Used by: logger, error responder
	CorrelationIDKey Key = "correlation_id"

	// RateLimitHeadersKey contains map[string]string of rate-limit headers
	// accumulated by the rate-limit gate, so the error responder can attach
	// them to short-circuited responses.
	RateLimitHeadersKey Key = "rate_limit_headers"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the resolved tenant identity to the context.
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithCorrelationID adds a correlation id to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// WithRateLimitHeaders stashes rate-limit headers in the context.
func WithRateLimitHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, RateLimitHeadersKey, headers)
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetCorrelationID retrieves the correlation id from context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRateLimitHeaders retrieves stashed rate-limit headers from context.
func GetRateLimitHeaders(ctx context.Context) map[string]string {
	if h, ok := ctx.Value(RateLimitHeadersKey).(map[string]string); ok {
		return h
	}
	return nil
}
