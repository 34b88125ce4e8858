package oauth

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/codebine/agentchat/internal/db/models"
)

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one entry of the provider registry file. Credentials may
// be kept out of the file and supplied through the environment instead:
// AGENTCHAT_<ID>_CLIENT_ID and AGENTCHAT_<ID>_CLIENT_SECRET override the file
// values when set.
type ProviderConfig struct {
	ID           string   `yaml:"id"`
	DisplayName  string   `yaml:"display_name"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthorizeURL string   `yaml:"authorize_url"`
	TokenURL     string   `yaml:"token_url"`
	RevokeURL    string   `yaml:"revoke_url"`
	Scopes       []string `yaml:"scopes"`
}

// LoadProviders reads the registry file and applies env overrides. An empty
// path yields an empty registry: the broker endpoints then report no
// providers, and chat runs without delegation.
func LoadProviders(path string) ([]models.OAuthProvider, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %q: %w", path, err)
	}

	providers := make([]models.OAuthProvider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		provider, err := normalizeProvider(pc)
		if err != nil {
			return nil, err
		}
		providers = append(providers, provider)
	}
	return providers, nil
}

func normalizeProvider(pc ProviderConfig) (models.OAuthProvider, error) {
	id := strings.ToLower(strings.TrimSpace(pc.ID))
	if !providerIDRegexp.MatchString(id) {
		return models.OAuthProvider{}, fmt.Errorf("invalid provider id %q", pc.ID)
	}

	clientID := pc.ClientID
	if v := os.Getenv(providerEnvName(id, "CLIENT_ID")); v != "" {
		clientID = v
	}
	clientSecret := pc.ClientSecret
	if v := os.Getenv(providerEnvName(id, "CLIENT_SECRET")); v != "" {
		clientSecret = v
	}

	if clientID == "" || pc.AuthorizeURL == "" || pc.TokenURL == "" {
		return models.OAuthProvider{}, fmt.Errorf(
			"provider %q needs client_id, authorize_url and token_url", id)
	}

	display := strings.TrimSpace(pc.DisplayName)
	if display == "" {
		display = id
	}

	return models.OAuthProvider{
		ID:           id,
		DisplayName:  display,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthorizeURL: pc.AuthorizeURL,
		TokenURL:     pc.TokenURL,
		RevokeURL:    pc.RevokeURL,
		Scopes:       strings.Join(pc.Scopes, " "),
	}, nil
}

func providerEnvName(id, suffix string) string {
	upper := strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(id))
	return fmt.Sprintf("AGENTCHAT_%s_%s", upper, suffix)
}
