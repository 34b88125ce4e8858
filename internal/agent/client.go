package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/codebine/agentchat/internal/util"
)

// SystemPrompt frames every agent invocation.
const SystemPrompt = "You are a helpful assistant. Use the provided document(s) to answer " +
	"as accurately as possible. If the answer is not contained in the documents, " +
	"say you don't know. When documents have page numbers, you can reference " +
	"specific pages and their filenames in your answer."

// Client talks to an OpenAI-compatible agent deployment.
type Client struct {
	baseURL    string
	token      string // static deployment bearer; per-request platform credential wins when set
	model      string
	httpClient *http.Client
}

// NewClient creates an agent runtime client. The per-invocation context
// deadline bounds each call, so the underlying http.Client carries no
// timeout of its own.
func NewClient(baseURL, token, model string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		model:      model,
		httpClient: &http.Client{},
	}
}

type chatCompletionRequest struct {
	Model          string `json:"model"`
	Messages       []Turn `json:"messages"`
	DelegatedToken string `json:"delegated_token,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the conversation to the deployment's chat completions
// endpoint and returns the generated text.
func (c *Client) Complete(ctx context.Context, inv Invocation) (*Result, error) {
	payload := chatCompletionRequest{
		Model:          c.model,
		Messages:       append([]Turn{{Role: "system", Content: SystemPrompt}}, inv.History...),
		DelegatedToken: inv.DelegatedToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.bearer(inv))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("⚠️ Agent runtime returned %d: %s", resp.StatusCode,
			util.TruncateLog(string(respBody), util.DefaultLogMaxLen))
		return nil, fmt.Errorf("agent runtime returned status %d", resp.StatusCode)
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, fmt.Errorf("malformed agent runtime response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("agent runtime returned no choices")
	}

	usage := completion.Usage.TotalTokens
	result := &Result{Content: completion.Choices[0].Message.Content}
	if usage > 0 {
		result.UsageTokens = &usage
	}
	return result, nil
}

// bearer picks the per-request platform credential when present; the static
// deployment token is the fallback for platform-external deployments.
func (c *Client) bearer(inv Invocation) string {
	if c.token != "" {
		return c.token
	}
	return inv.PlatformCredential
}
