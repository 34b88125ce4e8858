package main

import (
	"log"
	"net/http"

	"github.com/robfig/cron/v3"

	"github.com/codebine/agentchat/internal/agent"
	"github.com/codebine/agentchat/internal/chatstore"
	"github.com/codebine/agentchat/internal/config"
	"github.com/codebine/agentchat/internal/db"
	"github.com/codebine/agentchat/internal/engine"
	"github.com/codebine/agentchat/internal/httpapi"
	"github.com/codebine/agentchat/internal/oauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	database, err := db.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	providers, err := oauth.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		log.Fatalf("Failed to load OAuth providers: %v", err)
	}
	if err := db.SeedProviders(database, providers); err != nil {
		log.Fatalf("Failed to register OAuth providers: %v", err)
	}

	store := chatstore.NewStore(database)
	if n, err := store.FailOrphaned("The agent was interrupted before responding."); err != nil {
		log.Fatalf("Failed to reconcile interrupted messages: %v", err)
	} else if n > 0 {
		log.Printf("🧹 Marked %d interrupted message(s) as failed", n)
	}
	broker := oauth.NewBroker(database, cfg.StateTTL)
	runtime := agent.NewClient(cfg.AgentURL, cfg.AgentToken, cfg.AgentModel)
	eng := engine.NewEngine(store, broker, runtime, cfg.DelegationProvider, cfg.AgentTimeout)

	// Periodic cleanup of abandoned authorization flows.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every "+cfg.SweepInterval.String(), func() {
		if _, err := broker.SweepExpiredRequests(); err != nil {
			log.Printf("⚠️ Authorization sweep failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule authorization sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	router := httpapi.NewRouter(httpapi.Deps{
		Store:          store,
		Broker:         broker,
		Engine:         eng,
		PollIntervalMS: cfg.PollIntervalMS,
		TestIdentity:   cfg.TestUserEmail,
	})

	log.Printf("🚀 AgentChat starting on http://%s", cfg.Addr())
	log.Printf("🔌 Chat API: http://%s/v1/chat", cfg.Addr())
	log.Printf("🔌 OAuth API: http://%s/v1/oauth", cfg.Addr())
	if cfg.DelegationProvider != "" {
		log.Printf("🔑 Delegating provider '%s' tokens to the agent", cfg.DelegationProvider)
	}

	if err := http.ListenAndServe(cfg.Addr(), router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
