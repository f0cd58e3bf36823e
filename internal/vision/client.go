// Package vision streams tokens from a hosted multimodal model over its
// OpenAI-style SSE chat endpoint. It does exactly that and nothing else:
// no retries, no response parsing beyond the delta path, no state
// between calls.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultAPIBase is the hosted multimodal chat endpoint.
	DefaultAPIBase = "https://platform.qubrid.com/api/v1/qubridai/multimodal/chat"
	// DefaultModel is the vision model used for all pipeline stages and chat.
	DefaultModel = "Qwen/Qwen3-VL-30B-A3B-Instruct"

	// DefaultTimeout bounds each HTTP call, including reading the
	// streamed body.
	DefaultTimeout = 60 * time.Second
)

// Client talks to the vision model endpoint. It holds read-only
// configuration and is safe to share across concurrent sessions.
type Client struct {
	apiKey  string
	apiBase string
	model   string
	httpc   *http.Client
}

// NewClient builds a client. An empty API key is a fatal configuration
// error, caught here before any network activity. apiBase and model fall
// back to the hosted defaults when empty.
func NewClient(apiKey, apiBase, model string) (*Client, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Reason: "vision API key is not set"}
	}
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:  apiKey,
		apiBase: apiBase,
		model:   model,
		httpc:   &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

type streamRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p"`
	Stream      bool      `json:"stream"`
}

// Stream sends the messages and returns a live token stream. The caller
// owns the stream and must drain it or Close it; abandoning it without
// Close leaks the connection until the client timeout fires.
//
// Non-2xx responses fail with *APIError before any fragment is yielded.
// Connection failures and timeouts fail with *TransportError.
func (c *Client) Stream(ctx context.Context, messages []Message, p Params) (*Stream, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("vision: empty message list")
	}

	body, err := json.Marshal(streamRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		TopP:        p.TopP,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "post", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	return newStream(resp.Body), nil
}
