// Package agent defines the boundary to the external agent runtime: it takes
// a conversation history plus an optional delegated token and returns
// generated text with usage counts. Everything behind it is opaque.
package agent

import "context"

// Turn is one conversation entry sent to the runtime.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Invocation is the input for a single completion. The delegated token is
// passed by value and lives only for this call; the runtime must never
// persist it.
type Invocation struct {
	History            []Turn
	DelegatedToken     string
	PlatformCredential string
}

// Result is the runtime's output for one completion.
type Result struct {
	Content     string
	UsageTokens *int
}

// Runtime is implemented by agent deployment clients.
type Runtime interface {
	Complete(ctx context.Context, inv Invocation) (*Result, error)
}
