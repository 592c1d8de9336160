package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vberkoz/kvgate/pkg/contextkeys"
	"github.com/vberkoz/kvgate/pkg/observability"
)

// CorrelationHeader is echoed when the client supplies it, generated
// otherwise. Every response carries it.
const CorrelationHeader = "x-correlation-id"

// Correlation assigns the request's correlation id and a logger
// annotated with it, before anything else can fail.
func Correlation(logger *observability.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}

			// FromContext annotates with the correlation id on retrieval.
			ctx := contextkeys.WithCorrelationID(r.Context(), correlationID)
			ctx = contextkeys.WithLogger(ctx, logger)

			w.Header().Set(CorrelationHeader, correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
