package identity

import (
	"context"
	"net/http/httptest"
	"testing"
)

func TestFromRequest_HeaderWins(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/chat", nil)
	r.Header.Set(UserHeader, "alice@example.com")
	r.Header.Set(CredentialHeader, "scoped-key")

	id, err := FromRequest(r, "test@example.com")
	if err != nil {
		t.Fatalf("resolve identity: %v", err)
	}
	if id.UserIdentity != "alice@example.com" {
		t.Fatalf("expected header identity, got %q", id.UserIdentity)
	}
	if id.PlatformCredential != "scoped-key" {
		t.Fatalf("expected platform credential, got %q", id.PlatformCredential)
	}
}

func TestFromRequest_FailsClosed(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/chat", nil)
	if _, err := FromRequest(r, ""); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestFromRequest_TestIdentityFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/v1/chat", nil)
	id, err := FromRequest(r, "dev@example.com")
	if err != nil {
		t.Fatalf("resolve identity: %v", err)
	}
	if id.UserIdentity != "dev@example.com" {
		t.Fatalf("expected configured test identity, got %q", id.UserIdentity)
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), &Context{UserIdentity: "bob@example.com"})
	if got := FromContext(ctx); got == nil || got.UserIdentity != "bob@example.com" {
		t.Fatalf("unexpected identity from context: %+v", got)
	}
	if FromContext(context.Background()) != nil {
		t.Fatal("expected nil identity on empty context")
	}
}
