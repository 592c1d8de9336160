package middleware

import (
	"net/http"
	"strings"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/auth"
	"github.com/vberkoz/kvgate/pkg/contextkeys"
	"github.com/vberkoz/kvgate/pkg/httputil"
)

// APIKeyHeader carries the API-key secret for data-plane requests.
// `Authorization: Bearer kv_...` is accepted as an equivalent.
const APIKeyHeader = "x-api-key"

// Authenticator resolves whatever credential a request presents into an
// identity. The three variants below pick which credential kinds a
// route trusts.
type Authenticator struct {
	apiKeys *auth.APIKeyVerifier
	bearer  *auth.BearerVerifier
}

// NewAuthenticator creates the auth stage factory. Either verifier may
// be nil when a deployment disables that mode.
func NewAuthenticator(apiKeys *auth.APIKeyVerifier, bearer *auth.BearerVerifier) *Authenticator {
	return &Authenticator{apiKeys: apiKeys, bearer: bearer}
}

// extractAPIKey returns the API-key secret a request presents, if any.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	// An Authorization header holding a kv_ secret counts as an API key,
	// not a bearer token.
	if raw := bearerToken(r); strings.HasPrefix(raw, "kv_") {
		return raw
	}
	return ""
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// APIKeyOnly authenticates data-plane routes: only API keys are trusted.
func (a *Authenticator) APIKeyOnly() Middleware {
	return a.stage(func(r *http.Request) (*auth.Identity, error) {
		secret := extractAPIKey(r)
		if secret == "" {
			return nil, apierr.Unauthorized("API key required")
		}
		return a.apiKeys.Verify(r.Context(), secret)
	})
}

// BearerOnly authenticates management routes: only identity-provider
// tokens are trusted.
func (a *Authenticator) BearerOnly() Middleware {
	return a.stage(func(r *http.Request) (*auth.Identity, error) {
		token := bearerToken(r)
		if token == "" || strings.HasPrefix(token, "kv_") {
			return nil, apierr.Unauthorized("bearer token required")
		}
		if a.bearer == nil {
			return nil, apierr.Unauthorized("bearer authentication is not enabled")
		}
		return a.bearer.Verify(r.Context(), token)
	})
}

// Dual tries the API key first, then falls back to a bearer token.
// Routes usable both programmatically and from the console use this.
func (a *Authenticator) Dual() Middleware {
	return a.stage(func(r *http.Request) (*auth.Identity, error) {
		if secret := extractAPIKey(r); secret != "" {
			return a.apiKeys.Verify(r.Context(), secret)
		}
		if token := bearerToken(r); token != "" && a.bearer != nil {
			return a.bearer.Verify(r.Context(), token)
		}
		return nil, apierr.Unauthorized("credentials required")
	})
}

func (a *Authenticator) stage(resolve func(*http.Request) (*auth.Identity, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolve(r)
			if err != nil {
				httputil.WriteError(w, r, err)
				return
			}
			ctx := contextkeys.WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
