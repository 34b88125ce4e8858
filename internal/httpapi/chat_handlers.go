// Package httpapi exposes the chat and OAuth surfaces over HTTP. Handlers are
// thin: they decode, call the store or broker, and map errors to the response
// taxonomy. All agent work happens asynchronously in the engine.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codebine/agentchat/internal/chatstore"
	"github.com/codebine/agentchat/internal/db/models"
	"github.com/codebine/agentchat/internal/engine"
	"github.com/codebine/agentchat/internal/identity"
)

// PollIntervalHeader tells clients how often to poll for message updates.
const PollIntervalHeader = "X-Poll-Interval-Ms"

type messageRequest struct {
	Message string `json:"message"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// CreateChatHandler creates a chat from the first user message and kicks off
// the agent turn for its placeholder.
func CreateChatHandler(store *chatstore.Store, eng *engine.Engine, pollMS int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := decodeJSON(r, &req); err != nil || req.Message == "" {
			writeError(w, http.StatusUnprocessableEntity, errTypeInvalidRequest,
				"a non-empty 'message' field is required")
			return
		}

		caller := identity.FromContext(r.Context())
		chat, exchange, err := store.CreateChat(caller.UserIdentity, req.Message)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		eng.Dispatch(chat.ID, exchange.Placeholder.ID, caller)

		w.Header().Set(PollIntervalHeader, strconv.Itoa(pollMS))
		writeJSON(w, http.StatusCreated, chat)
	}
}

// ListChatsHandler returns the caller's chats, most recently active first.
func ListChatsHandler(store *chatstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		chats, err := store.ListChats(caller.UserIdentity)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if chats == nil {
			chats = []models.Chat{}
		}
		writeJSON(w, http.StatusOK, chats)
	}
}

// GetChatHandler returns a single chat owned by the caller.
func GetChatHandler(store *chatstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		chat, err := store.GetChat(chi.URLParam(r, "chatID"), caller.UserIdentity)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, chat)
	}
}

// RenameChatHandler updates a chat's display name.
func RenameChatHandler(store *chatstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req renameRequest
		if err := decodeJSON(r, &req); err != nil || req.Name == "" {
			writeError(w, http.StatusUnprocessableEntity, errTypeInvalidRequest,
				"a non-empty 'name' field is required")
			return
		}

		caller := identity.FromContext(r.Context())
		if err := store.RenameChat(chi.URLParam(r, "chatID"), caller.UserIdentity, req.Name); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeleteChatHandler removes a chat and all its messages.
func DeleteChatHandler(store *chatstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		if err := store.DeleteChat(chi.URLParam(r, "chatID"), caller.UserIdentity); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AppendMessageHandler records a user message, creates the assistant
// placeholder, and starts the agent turn. A 409 means an earlier turn is
// still in progress and the client should poll before retrying.
func AppendMessageHandler(store *chatstore.Store, eng *engine.Engine, pollMS int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := decodeJSON(r, &req); err != nil || req.Message == "" {
			writeError(w, http.StatusUnprocessableEntity, errTypeInvalidRequest,
				"a non-empty 'message' field is required")
			return
		}

		caller := identity.FromContext(r.Context())
		chatID := chi.URLParam(r, "chatID")
		exchange, err := store.AppendMessage(chatID, caller.UserIdentity, req.Message)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		eng.Dispatch(chatID, exchange.Placeholder.ID, caller)

		w.Header().Set(PollIntervalHeader, strconv.Itoa(pollMS))
		writeJSON(w, http.StatusCreated,
			[]*models.Message{exchange.UserMessage, exchange.Placeholder})
	}
}

// ListMessagesHandler returns a chat's messages in creation order. Clients
// poll this endpoint until the newest assistant message turns terminal.
func ListMessagesHandler(store *chatstore.Store, pollMS int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := identity.FromContext(r.Context())
		msgs, err := store.ListMessages(chi.URLParam(r, "chatID"), caller.UserIdentity)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		w.Header().Set(PollIntervalHeader, strconv.Itoa(pollMS))
		writeJSON(w, http.StatusOK, msgs)
	}
}
