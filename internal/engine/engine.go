// Package engine drives an assistant message from in_progress to its single
// terminal state. It runs off the request goroutine: handlers return once the
// placeholder row is committed, and clients poll for the outcome.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/codebine/agentchat/internal/agent"
	"github.com/codebine/agentchat/internal/chatstore"
	"github.com/codebine/agentchat/internal/db/models"
	"github.com/codebine/agentchat/internal/identity"
	"github.com/codebine/agentchat/internal/oauth"
)

// finalizeRetryDelay spaces the single retry of a failed terminal write.
const finalizeRetryDelay = 100 * time.Millisecond

// Engine invokes the agent runtime and writes the outcome back to the store.
type Engine struct {
	store    *chatstore.Store
	broker   *oauth.Broker
	runtime  agent.Runtime
	provider string // delegation provider the agent consumes, "" disables
	timeout  time.Duration
}

// NewEngine builds the lifecycle engine.
func NewEngine(store *chatstore.Store, broker *oauth.Broker, runtime agent.Runtime, provider string, timeout time.Duration) *Engine {
	return &Engine{
		store:    store,
		broker:   broker,
		runtime:  runtime,
		provider: provider,
		timeout:  timeout,
	}
}

// Dispatch starts the completion for a placeholder message in the background
// and returns immediately.
func (e *Engine) Dispatch(chatID string, placeholderID uint, caller *identity.Context) {
	go e.run(chatID, placeholderID, caller)
}

func (e *Engine) run(chatID string, placeholderID uint, caller *identity.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	history, err := e.history(chatID, placeholderID, caller.UserIdentity)
	if err != nil {
		log.Printf("❌ Failed to assemble history for chat %s: %v", chatID, err)
		e.fail(placeholderID, "The conversation could not be loaded.")
		return
	}

	inv := agent.Invocation{
		History:            history,
		PlatformCredential: caller.PlatformCredential,
	}
	if e.provider != "" {
		token, err := e.broker.GetValidToken(ctx, e.provider, caller.UserIdentity)
		switch {
		case err == nil:
			inv.DelegatedToken = token
		case errors.Is(err, oauth.ErrNotAuthorized):
			// Degraded mode: the agent runs without delegated access
			// and the conversation continues.
			log.Printf("⚠️ No valid %s grant for %s, invoking agent without delegation",
				e.provider, caller.UserIdentity)
		default:
			log.Printf("⚠️ Token lookup failed for %s: %v", caller.UserIdentity, err)
		}
	}

	result, err := e.runtime.Complete(ctx, inv)
	if err != nil {
		log.Printf("❌ Agent invocation failed for message %d: %v", placeholderID, err)
		e.fail(placeholderID, sanitizeError(ctx, err))
		return
	}

	transitioned, err := e.store.CompleteMessage(placeholderID, result.Content, result.UsageTokens)
	if err != nil {
		// A stuck in_progress row blocks the chat, so retry the terminal
		// write once before giving up.
		log.Printf("⚠️ Terminal write failed for message %d, retrying once: %v", placeholderID, err)
		time.Sleep(finalizeRetryDelay)
		transitioned, err = e.store.CompleteMessage(placeholderID, result.Content, result.UsageTokens)
	}
	if err != nil {
		log.Printf("❌ Failed to complete message %d: %v", placeholderID, err)
		return
	}
	if !transitioned {
		// Already terminal, duplicate completion signal ignored.
		log.Printf("ℹ️ Message %d was already terminal, ignoring completion", placeholderID)
	}
}

// history collects the chat's prior turns for the runtime. The in-flight
// placeholder and previously failed turns carry no content worth replaying.
func (e *Engine) history(chatID string, placeholderID uint, owner string) ([]agent.Turn, error) {
	msgs, err := e.store.ListMessages(chatID, owner)
	if err != nil {
		return nil, err
	}
	turns := make([]agent.Turn, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == placeholderID || m.Status != models.StatusCompleted {
			continue
		}
		turns = append(turns, agent.Turn{Role: m.Role, Content: m.Content})
	}
	return turns, nil
}

func (e *Engine) fail(placeholderID uint, errorText string) {
	_, err := e.store.FailMessage(placeholderID, errorText)
	if err != nil {
		log.Printf("⚠️ Terminal write failed for message %d, retrying once: %v", placeholderID, err)
		time.Sleep(finalizeRetryDelay)
		_, err = e.store.FailMessage(placeholderID, errorText)
	}
	if err != nil {
		log.Printf("❌ Failed to record error on message %d: %v", placeholderID, err)
	}
}

// sanitizeError maps an invocation failure to readable, non-sensitive text
// stored on the message. Raw upstream errors never reach the client.
func sanitizeError(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "The agent did not respond within the configured timeout."
	}
	return "The agent request failed. Please try again."
}
