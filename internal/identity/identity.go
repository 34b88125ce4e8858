// Package identity extracts the trusted caller identity injected by the
// upstream reverse proxy. It is a boundary adapter: the header is asserted by
// the platform, not verified here, and there is no anonymous fallback.
package identity

import (
	"context"
	"errors"
	"net/http"
)

// Headers set by the platform proxy.
const (
	UserHeader       = "X-User-Email"
	CredentialHeader = "X-Datarobot-Api-Key"
)

// ErrUnauthenticated is returned when no identity header is present.
var ErrUnauthenticated = errors.New("identity: no trusted identity header")

// Context carries the resolved caller.
type Context struct {
	UserIdentity       string
	PlatformCredential string // optional scoped credential, forwarded server-side only
}

type contextKey string

const identityKey contextKey = "identity"

// FromRequest resolves the caller from proxy-set headers. testIdentity, when
// configured, stands in during local development where no proxy runs.
func FromRequest(r *http.Request, testIdentity string) (*Context, error) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		user = testIdentity
	}
	if user == "" {
		return nil, ErrUnauthenticated
	}
	return &Context{
		UserIdentity:       user,
		PlatformCredential: r.Header.Get(CredentialHeader),
	}, nil
}

// WithContext injects the resolved identity into ctx.
func WithContext(ctx context.Context, id *Context) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves the resolved identity, or nil if absent.
func FromContext(ctx context.Context) *Context {
	if id, ok := ctx.Value(identityKey).(*Context); ok {
		return id
	}
	return nil
}
