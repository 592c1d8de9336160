// Package middleware implements the request pipeline:
//
//	Correlation → Authenticate → RateLimitGate → QuotaGate → Handler → UsageRecord
//
// # Ordering requirements
//
// The stages have strict ordering dependencies. Correlation must run
// first so every later stage logs and responds with the request's
// correlation id. Authentication must run before the rate-limit and
// quota gates, which key on the resolved tenant. UsageRecord wraps the
// handler itself: a request refused by any gate is never counted, and a
// request that reaches the handler is counted exactly once regardless
// of the handler's outcome.
//
// Any stage that fails short-circuits to the uniform error responder,
// which attaches the correlation id and whatever rate-limit headers
// were accumulated before the failure.
package middleware

import (
	"net/http"

	"github.com/vberkoz/kvgate/pkg/auth"
	"github.com/vberkoz/kvgate/pkg/contextkeys"
)

// Middleware is a composable HTTP pipeline stage.
type Middleware func(http.Handler) http.Handler

// Chain composes stages outer-to-inner: the first argument sees the
// request first.
func Chain(h http.Handler, stages ...Middleware) http.Handler {
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return h
}

// GetIdentity returns the authenticated identity set by an auth stage,
// or nil when the request has not been authenticated.
func GetIdentity(r *http.Request) *auth.Identity {
	identity, _ := r.Context().Value(contextkeys.IdentityKey).(*auth.Identity)
	return identity
}
