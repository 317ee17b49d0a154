package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultEndpoint is the chat-completions endpoint used when none is configured
const DefaultEndpoint = "https://gen.pollinations.ai/v1/chat/completions"

// ChatCompletions implements the Scanner interface against any
// OpenAI-compatible chat-completions endpoint (Pollinations, Ollama /v1, ...)
type ChatCompletions struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewChatCompletions creates a new ChatCompletions Scanner instance
func NewChatCompletions(endpoint string, timeout time.Duration) (*ChatCompletions, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ChatCompletions{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{},
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

// ScanPage posts one page and returns the raw response envelope
func (c *ChatCompletions) ScanPage(ctx context.Context, req PageRequest) ([]byte, error) {
	if req.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContent{
					{Type: "text", Text: buildPrompt(req.Column, req.Comment, req.Previous)},
					{Type: "image_url", ImageURL: &chatImageURL{URL: req.Page.DataURL()}},
				},
			},
		},
		Temperature: 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling chat completions API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("API error response", "status", resp.StatusCode, "body", string(body))
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(body),
		}
	}

	slog.Debug("API response", "model", req.Model, "page", req.Page.Index+1, "bytes", len(body))
	return body, nil
}

// Close is a no-op for the HTTP client
func (c *ChatCompletions) Close() error {
	return nil
}
