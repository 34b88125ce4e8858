package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime options. Values come from the environment, with an
// optional .env file loaded first for local development.
type Config struct {
	// Server settings
	Host string
	Port string

	// Database
	DatabasePath string

	// OAuth delegation
	ProvidersFile string        // YAML provider registry, optional
	StateTTL      time.Duration // authorization request lifetime
	SweepInterval time.Duration // expiry sweep cadence

	// Agent runtime
	AgentURL           string // base URL of the deployed agent, OpenAI-compatible
	AgentToken         string // static bearer for the agent deployment
	AgentModel         string
	AgentTimeout       time.Duration
	DelegationProvider string // provider whose token the agent consumes, optional

	// Client polling hint, milliseconds
	PollIntervalMS int

	// Local development identity when no proxy injects one
	TestUserEmail string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// .env is optional; ignore absence
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnv("HOST", "127.0.0.1"),
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("AGENTCHAT_DB_PATH", "agentchat.db"),
		ProvidersFile:      getEnv("AGENTCHAT_PROVIDERS_FILE", ""),
		StateTTL:           getDuration("AGENTCHAT_STATE_TTL", 10*time.Minute),
		SweepInterval:      getDuration("AGENTCHAT_SWEEP_INTERVAL", 5*time.Minute),
		AgentURL:           getEnv("AGENT_DEPLOYMENT_URL", ""),
		AgentToken:         getEnv("AGENT_DEPLOYMENT_TOKEN", ""),
		AgentModel:         getEnv("AGENT_MODEL", "gpt-4o"),
		AgentTimeout:       getDuration("AGENT_TIMEOUT", 90*time.Second),
		DelegationProvider: getEnv("AGENTCHAT_DELEGATION_PROVIDER", ""),
		PollIntervalMS:     getInt("AGENTCHAT_POLL_INTERVAL_MS", 1500),
		TestUserEmail:      getEnv("TEST_USER_EMAIL", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.StateTTL <= 0 {
		return fmt.Errorf("AGENTCHAT_STATE_TTL must be positive, got %s", c.StateTTL)
	}
	if c.AgentTimeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be positive, got %s", c.AgentTimeout)
	}
	if c.PollIntervalMS <= 0 {
		return fmt.Errorf("AGENTCHAT_POLL_INTERVAL_MS must be positive, got %d", c.PollIntervalMS)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
