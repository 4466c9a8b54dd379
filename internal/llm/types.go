// Package llm provides the reasoning service client.
package llm

import "time"

// Message represents a chat message for the reasoning service.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Images carries base64-encoded image payloads for multimodal
	// requests. Empty for plain text turns.
	Images []string `json:"images,omitempty"`
}

// Request is a single generation request.
type Request struct {
	Model    string
	System   string
	Messages []Message

	// Temperature overrides the model default when non-nil.
	Temperature *float64

	// MaxTokens bounds the reply length. Zero means provider default.
	MaxTokens int
}

// Reply is the unified response from the reasoning service. Token usage
// is logged by callers when available; it never drives control flow.
type Reply struct {
	Content      string
	Model        string
	CreatedAt    time.Time
	InputTokens  int
	OutputTokens int
}
