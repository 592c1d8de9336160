package middleware

import (
	"net/http"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/httputil"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/usage"
)

// QuotaGate refuses tenants at or above their monthly request quota.
// Runs after the rate-limit gate and before the handler, so refused
// requests are never counted.
func QuotaGate(meter *usage.Meter, metrics *observability.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteError(w, r, apierr.Unauthorized("credentials required"))
				return
			}

			allowed, err := meter.CheckQuota(r.Context(), identity.TenantID, identity.Plan)
			if err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			if !allowed {
				if metrics != nil {
					metrics.QuotaRejectionsTotal.Inc()
				}
				httputil.WriteError(w, r, apierr.QuotaExceeded("monthly request quota exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UsageRecord counts the request against the tenant's monthly usage.
// Wraps the handler directly: by the time it runs, every gate has
// passed, so the request is counted exactly once whatever the handler
// returns.
func UsageRecord(meter *usage.Meter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			identity := GetIdentity(r)
			if identity == nil {
				return
			}
			if err := meter.Record(r.Context(), identity.TenantID, identity.Plan); err != nil {
				// The response is already written; losing one count beats
				// failing the request.
				observability.FromContext(r.Context()).WithError(err).Error("usage record failed")
			}
		})
	}
}
