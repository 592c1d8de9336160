// Package api exposes the HTTP surface: credential and namespace
// management on the bearer-token path, and the namespaced key/value data
// plane on the API-key path. Data-plane routes run the full pipeline:
// correlation, auth, rate limit, quota, handler, usage metering.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/middleware"
	"github.com/vberkoz/kvgate/pkg/namespaces"
	"github.com/vberkoz/kvgate/pkg/observability"
	"github.com/vberkoz/kvgate/pkg/ratelimit"
	"github.com/vberkoz/kvgate/pkg/tenants"
	"github.com/vberkoz/kvgate/pkg/usage"
)

// Server is the API server.
type Server struct {
	router *mux.Router

	credentials *credentials.Service
	namespaces  *namespaces.Service
	tenants     *tenants.Service
	meter       *usage.Meter

	authn   *middleware.Authenticator
	limiter ratelimit.Limiter
	logger  *observability.Logger
	metrics *observability.Metrics

	corsOrigins []string
}

// Deps carries everything the server needs.
type Deps struct {
	Credentials *credentials.Service
	Namespaces  *namespaces.Service
	Tenants     *tenants.Service
	Meter       *usage.Meter
	Authn       *middleware.Authenticator
	Limiter     ratelimit.Limiter
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
}

// NewServer creates the API server and wires its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		credentials: deps.Credentials,
		namespaces:  deps.Namespaces,
		tenants:     deps.Tenants,
		meter:       deps.Meter,
		authn:       deps.Authn,
		limiter:     deps.Limiter,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		corsOrigins: deps.CORSOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	base := []middleware.Middleware{
		middleware.Correlation(s.logger),
		middleware.Recovery(),
		middleware.CORS(s.corsOrigins),
		middleware.Logging(s.metrics),
	}

	// Management routes: bearer token, no metering.
	management := func(h http.HandlerFunc) http.Handler {
		stages := append(append([]middleware.Middleware{}, base...), s.authn.BearerOnly())
		return middleware.Chain(h, stages...)
	}

	// Data-plane routes: API key, permission check, rate limit, quota,
	// then the handler wrapped in usage metering. Registration order on
	// the usage stage matters: a request refused by a gate is never
	// counted.
	dataPlane := func(h http.HandlerFunc) http.Handler {
		stages := append(append([]middleware.Middleware{}, base...),
			s.authn.APIKeyOnly(),
			middleware.RequirePermission(),
			middleware.RateLimitGate(s.limiter, s.metrics),
			middleware.QuotaGate(s.meter, s.metrics),
			middleware.UsageRecord(s.meter),
		)
		return middleware.Chain(h, stages...)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Static paths first so they never match the {namespace} routes.
	v1.Handle("/credentials", management(s.issueCredential)).Methods(http.MethodPost, http.MethodOptions)
	v1.Handle("/credentials", management(s.listCredentials)).Methods(http.MethodGet)
	v1.Handle("/credentials/{id}", management(s.revokeCredential)).Methods(http.MethodDelete, http.MethodOptions)
	v1.Handle("/credentials/{id}/rotate", management(s.rotateCredential)).Methods(http.MethodPost, http.MethodOptions)
	v1.Handle("/namespaces", management(s.createNamespace)).Methods(http.MethodPost, http.MethodOptions)
	v1.Handle("/namespaces", management(s.listNamespaces)).Methods(http.MethodGet)
	v1.Handle("/usage", management(s.getUsage)).Methods(http.MethodGet, http.MethodOptions)

	v1.Handle("/{namespace}", dataPlane(s.listKeys)).Methods(http.MethodGet, http.MethodOptions)
	v1.Handle("/{namespace}/{key}", dataPlane(s.getKey)).Methods(http.MethodGet)
	v1.Handle("/{namespace}/{key}", dataPlane(s.putKey)).Methods(http.MethodPut, http.MethodOptions)
	v1.Handle("/{namespace}/{key}", dataPlane(s.deleteKey)).Methods(http.MethodDelete)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
