package middleware

import (
	"net/http"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/contextkeys"
	"github.com/vberkoz/kvgate/pkg/httputil"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/ratelimit"
)

// RateLimitGate consumes one unit of the tenant's per-second budget.
// Runs after authentication; the decision's headers go on the response
// and into the context so later failures still carry them.
func RateLimitGate(limiter ratelimit.Limiter, metrics *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteError(w, r, apierr.Unauthorized("credentials required"))
				return
			}

			decision, err := limiter.Check(r.Context(), identity.TenantID, identity.Plan)
			if err != nil {
				httputil.WriteError(w, r, err)
				return
			}

			httputil.SetRateLimitHeaders(w, decision)
			ctx := contextkeys.WithRateLimitHeaders(r.Context(), httputil.RateLimitHeaders(decision))
			r = r.WithContext(ctx)

			if !decision.Allowed {
				if metrics != nil {
					metrics.RateLimitedTotal.WithLabelValues(string(identity.Plan)).Inc()
				}
				httputil.WriteError(w, r, apierr.RateLimited(decision.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
