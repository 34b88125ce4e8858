package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/codebine/agentchat/internal/chatstore"
	"github.com/codebine/agentchat/internal/oauth"
)

// Error type identifiers used in JSON error bodies.
const (
	errTypeAuthentication = "authentication_error"
	errTypeNotFound       = "not_found"
	errTypeConflict       = "conflict"
	errTypeInvalidRequest = "invalid_request_error"
	errTypeInternal       = "internal_error"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("⚠️ Failed to encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"type":    errType,
			"message": message,
		},
	})
}

// writeStoreError maps store failures to the HTTP taxonomy. Absence and
// foreign ownership share one 404 so chat existence never leaks.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		writeError(w, http.StatusNotFound, errTypeNotFound, "chat not found")
	case errors.Is(err, chatstore.ErrConflict):
		writeError(w, http.StatusConflict, errTypeConflict,
			"a message is already in progress for this chat, poll and retry")
	default:
		log.Printf("❌ Store operation failed: %v", err)
		writeError(w, http.StatusInternalServerError, errTypeInternal, "internal error")
	}
}

func writeOAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, oauth.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, errTypeNotFound, "unknown OAuth provider")
	case errors.Is(err, oauth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, errTypeInvalidRequest,
			"invalid OAuth state or session expired, start the flow again")
	case errors.Is(err, oauth.ErrNotAuthorized):
		writeError(w, http.StatusNotFound, errTypeNotFound, "no grant for this provider")
	default:
		log.Printf("❌ OAuth operation failed: %v", err)
		writeError(w, http.StatusBadGateway, errTypeInternal, "authorization could not be completed")
	}
}
