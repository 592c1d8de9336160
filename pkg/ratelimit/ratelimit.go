// Package ratelimit enforces per-tenant request-rate limits over a fixed
// one-second window. Two implementations exist: an in-process limiter for
// single-instance deployments and tests, and a Redis-backed limiter that
// shares counters across instances.
package ratelimit

import (
	"context"

	"github.com/vberkoz/kvgate/pkg/plans"
)

// Decision is the outcome of a rate-limit check, carrying everything the
// HTTP layer needs for the X-RateLimit-* headers.
type Decision struct {
	Allowed bool
	// Limit is the window budget for the tenant's plan.
	Limit int
	// Remaining is the budget left in the current window.
	Remaining int
	// ResetEpoch is the unix time at which the window resets.
	ResetEpoch int64
	// RetryAfter is the suggested wait in seconds when denied.
	RetryAfter int
}

// Limiter checks whether a tenant may make another request right now.
type Limiter interface {
	Check(ctx context.Context, tenantID string, plan plans.Tier) (Decision, error)
}
