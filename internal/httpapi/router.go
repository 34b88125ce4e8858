package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/codebine/agentchat/internal/chatstore"
	"github.com/codebine/agentchat/internal/engine"
	"github.com/codebine/agentchat/internal/oauth"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Store          *chatstore.Store
	Broker         *oauth.Broker
	Engine         *engine.Engine
	PollIntervalMS int
	TestIdentity   string
}

// NewRouter assembles the full API.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.StripSlashes)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireIdentity(d.TestIdentity))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/", CreateChatHandler(d.Store, d.Engine, d.PollIntervalMS))
			r.Get("/", ListChatsHandler(d.Store))
			r.Route("/{chatID}", func(r chi.Router) {
				r.Get("/", GetChatHandler(d.Store))
				r.Patch("/", RenameChatHandler(d.Store))
				r.Delete("/", DeleteChatHandler(d.Store))
				r.Post("/messages", AppendMessageHandler(d.Store, d.Engine, d.PollIntervalMS))
				r.Get("/messages", ListMessagesHandler(d.Store, d.PollIntervalMS))
			})
		})

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/", ProvidersHandler(d.Broker))
			r.Post("/authorize", AuthorizeHandler(d.Broker))
			r.Get("/callback", CallbackHandler(d.Broker))
			r.Delete("/{providerID}", RevokeHandler(d.Broker))
		})
	})

	return r
}
