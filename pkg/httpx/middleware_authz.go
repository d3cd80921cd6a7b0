package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/sessionkit/pkg/authz"
)

// RequirePermissions admits callers whose verified claims hold every listed
// permission and at least one listed role. It must run after
// AuthnMiddleware.
func RequirePermissions(req authz.Requirement) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeBearerError(w, CodeTokenInvalid, "missing bearer token")
				return
			}

			if !authz.Check(claims.Authz(), req) {
				w.Header().Set("WWW-Authenticate",
					`Bearer error="insufficient_scope", scope="`+strings.Join(req.Permissions, " ")+`"`)
				WriteError(w, http.StatusForbidden, CodePermissionDenied, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
