package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/codebine/agentchat/internal/db/models"
	"github.com/codebine/agentchat/internal/identity"
	"github.com/codebine/agentchat/internal/oauth"
)

// ProvidersHandler lists the registered OAuth providers. Credentials and
// endpoint URLs are stripped by the model's JSON tags.
func ProvidersHandler(broker *oauth.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := broker.Providers()
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		if providers == nil {
			providers = []models.OAuthProvider{}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"providers": providers})
	}
}

// AuthorizeHandler starts an OAuth flow for the caller and returns the
// provider URL to redirect the browser to. The redirect URI defaults to this
// service's own callback endpoint unless the client supplies one.
func AuthorizeHandler(broker *oauth.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID := r.URL.Query().Get("provider_id")
		if providerID == "" {
			writeError(w, http.StatusUnprocessableEntity, errTypeInvalidRequest,
				"a 'provider_id' query parameter is required")
			return
		}

		redirectURI := r.URL.Query().Get("redirect_uri")
		if redirectURI == "" {
			redirectURI = callbackURL(r)
		}

		caller := identity.FromContext(r.Context())
		redirectURL, err := broker.BeginAuthorization(providerID, caller.UserIdentity, redirectURI)
		if err != nil {
			writeOAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
	}
}

// CallbackHandler completes the OAuth flow when the provider redirects the
// browser back. The state token identifies the pending request, so no session
// cookie is involved.
func CallbackHandler(broker *oauth.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errParam := r.URL.Query().Get("error"); errParam != "" {
			writeError(w, http.StatusBadRequest, errTypeInvalidRequest,
				fmt.Sprintf("the provider denied authorization: %s", errParam))
			return
		}

		code := r.URL.Query().Get("code")
		state := r.URL.Query().Get("state")
		if code == "" || state == "" {
			writeError(w, http.StatusBadRequest, errTypeInvalidRequest,
				"'code' and 'state' query parameters are required")
			return
		}

		grant, err := broker.CompleteAuthorization(r.Context(), code, state)
		if err != nil {
			writeOAuthError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<title>Authorization Successful</title>
	<style>
		body { font-family: -apple-system, BlinkMacSystemFont, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; background: #1a1a2e; color: #eee; }
		.success { color: #4ade80; }
		code { background: #374151; padding: 2px 6px; border-radius: 4px; color: #fbbf24; }
	</style>
</head>
<body>
	<h1 class="success">✅ Authorization Successful!</h1>
	<p><strong>Provider:</strong> <code>%s</code></p>
	<p>The agent can now act on your behalf. You can close this window.</p>
</body>
</html>`, grant.ProviderID)
	}
}

// RevokeHandler removes the caller's grant for a provider. A 404 covers both
// an unknown provider and the absence of a grant.
func RevokeHandler(broker *oauth.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		if err := broker.RevokeAuthorization(chi.URLParam(r, "providerID"), caller.UserIdentity); err != nil {
			writeOAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// callbackURL reconstructs this service's callback endpoint from the request.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/v1/oauth/callback", scheme, r.Host)
}
