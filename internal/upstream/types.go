// Package upstream implements the client for the downstream text-generation
// provider. The gateway forwards sanitized requests here and reads back a
// completion plus token usage.
package upstream

import (
	"context"
	"errors"
	"fmt"
)

// Message is one role/content pair in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the payload forwarded to the provider.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

// Usage is the provider's token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one generated alternative.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Completion is the provider's response shape.
type Completion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Client forwards a completion request to the provider.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// Transport-level failures.
var (
	ErrTimeout     = errors.New("upstream timeout")
	ErrUnavailable = errors.New("upstream unavailable")
)

// ProviderError is a non-2xx response from the provider itself.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream provider error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream provider error: status %d: %s", e.StatusCode, e.Message)
}
