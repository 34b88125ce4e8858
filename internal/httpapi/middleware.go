package httpapi

import (
	"net/http"

	"github.com/codebine/agentchat/internal/identity"
)

// RequireIdentity resolves the trusted identity headers and injects the
// caller context for downstream handlers. Requests with no resolvable
// identity are rejected before any handler runs.
func RequireIdentity(testIdentity string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := identity.FromRequest(r, testIdentity)
			if err != nil {
				writeError(w, http.StatusUnauthorized, errTypeAuthentication,
					"a trusted identity header is required")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithContext(r.Context(), caller)))
		})
	}
}
