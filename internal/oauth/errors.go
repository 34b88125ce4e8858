package oauth

import "errors"

var (
	// ErrProviderNotFound means the provider id is not registered.
	ErrProviderNotFound = errors.New("oauth: provider not registered")

	// ErrInvalidState rejects a callback whose state token is unknown,
	// already consumed, or past its TTL. The flow must restart.
	ErrInvalidState = errors.New("oauth: invalid or expired state token")

	// ErrNotAuthorized means no usable grant exists for the (provider,
	// identity) pair. Callers degrade: chat continues without delegation.
	ErrNotAuthorized = errors.New("oauth: user has not authorized this provider")
)
