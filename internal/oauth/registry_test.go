package oauth

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadProviders_FileAndEnvOverrides(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "providers.yaml")
	cfg := `providers:
  - id: docstore
    display_name: Document Store
    client_id: file-client-id
    client_secret: file-secret
    authorize_url: https://auth.example.com/authorize
    token_url: https://auth.example.com/token
    revoke_url: https://auth.example.com/revoke
    scopes: [docs.read, docs.write]
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("AGENTCHAT_DOCSTORE_CLIENT_SECRET", "env-secret")

	providers, err := LoadProviders(cfgPath)
	if err != nil {
		t.Fatalf("load providers: %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("expected 1 provider, got %d", len(providers))
	}
	p := providers[0]
	if p.ClientID != "file-client-id" {
		t.Fatalf("expected file client id, got %q", p.ClientID)
	}
	if p.ClientSecret != "env-secret" {
		t.Fatalf("expected env override to win, got %q", p.ClientSecret)
	}
	if p.Scopes != "docs.read docs.write" {
		t.Fatalf("unexpected scopes %q", p.Scopes)
	}
}

func TestLoadProviders_EmptyPath(t *testing.T) {
	providers, err := LoadProviders("")
	if err != nil || providers != nil {
		t.Fatalf("expected empty registry, got %v providers err=%v", providers, err)
	}
}

func TestLoadProviders_RejectsIncomplete(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "providers.yaml")
	cfg := `providers:
  - id: broken
    client_id: something
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadProviders(cfgPath); err == nil {
		t.Fatal("expected error for provider without token endpoints")
	}
}
