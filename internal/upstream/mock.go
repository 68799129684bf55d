package upstream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MockClient fabricates completions locally. Used in development and demos so
// the gateway runs without provider credentials.
type MockClient struct {
	// Delay simulates provider latency.
	Delay time.Duration
}

// Complete returns a canned completion echoing the (sanitized) last message,
// with fixed token usage.
func (m *MockClient) Complete(ctx context.Context, req *CompletionRequest) (*Completion, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var lastContent string
	if len(req.Messages) > 0 {
		lastContent = req.Messages[len(req.Messages)-1].Content
	}

	content := fmt.Sprintf("[promptgate mock] received: %q", strings.TrimSpace(lastContent))

	return &Completion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}, nil
}
