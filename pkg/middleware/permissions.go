package middleware

import (
	"net/http"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/httputil"
)

// permissionForMethod maps the HTTP verb to the grant a scoped API key
// needs for data-plane routes.
func permissionForMethod(method string) credentials.Permission {
	switch method {
	case http.MethodGet, http.MethodHead:
		return credentials.PermissionRead
	case http.MethodDelete:
		return credentials.PermissionDelete
	default:
		return credentials.PermissionWrite
	}
}

// RequirePermission rejects scoped API keys lacking the grant implied by
// the request method. Unscoped identities pass through.
func RequirePermission() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r)
			if identity == nil {
				httputil.WriteError(w, r, apierr.Unauthorized("credentials required"))
				return
			}
			if needed := permissionForMethod(r.Method); !identity.Allows(needed) {
				httputil.WriteError(w, r, apierr.Forbidden("API key lacks "+string(needed)+" permission"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
