package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reverie-agent/reverie/internal/httpkit"
)

// HTTPClient talks to an Ollama-compatible chat endpoint. Most local
// and hosted gateways expose this shape; authentication is a bearer
// token when the deployment requires one.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a reasoning service client. The HTTP client
// carries a generous transport timeout; per-call deadlines come from
// the caller's context.
func NewHTTPClient(baseURL, apiKey string, logger *slog.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &HTTPClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpkit.NewClient(5 * time.Minute),
		logger:     logger.With("component", "llm"),
	}
}

type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *chatOptions `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`

	PromptEvalCount int `json:"prompt_eval_count,omitempty"`
	EvalCount       int `json:"eval_count,omitempty"`
}

// Generate sends a chat completion request.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (*Reply, error) {
	messages := req.Messages
	if req.System != "" {
		messages = append([]Message{{Role: "system", Content: req.System}}, messages...)
	}

	body := chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		opts := &chatOptions{NumPredict: req.MaxTokens}
		if req.Temperature != nil {
			opts.Temperature = *req.Temperature
		}
		body.Options = opts
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody := httpkit.ReadErrorBody(resp.Body, 2048)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, chatResp.CreatedAt)
	reply := &Reply{
		Content:      chatResp.Message.Content,
		Model:        chatResp.Model,
		CreatedAt:    createdAt,
		InputTokens:  chatResp.PromptEvalCount,
		OutputTokens: chatResp.EvalCount,
	}

	if reply.InputTokens > 0 || reply.OutputTokens > 0 {
		c.logger.Debug("token usage",
			"model", reply.Model,
			"input", reply.InputTokens,
			"output", reply.OutputTokens,
		)
	}

	return reply, nil
}

// Ping checks if the service is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reasoning service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reasoning service returned %d", resp.StatusCode)
	}
	return nil
}
