// Package llm provides chat-model clients for the supported providers.
package llm

import (
	"context"
	"errors"
)

// Client is the interface that all LLM providers implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// ChatStream is Chat with tokens delivered to callback as they arrive.
	ChatStream(ctx context.Context, model string, messages []Message, tools []map[string]any, callback StreamCallback) (*ChatResponse, error)

	// Ping checks that the provider is reachable and the credentials work.
	Ping(ctx context.Context) error
}

// Sampling holds the generation parameters every client applies.
type Sampling struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// DefaultSampling matches a deterministic, moderately sized reply.
var DefaultSampling = Sampling{Temperature: 0, MaxTokens: 2048}

func (s Sampling) maxTokens() int {
	if s.MaxTokens <= 0 {
		return DefaultSampling.MaxTokens
	}
	return s.MaxTokens
}

// ErrUnsupportedProvider is returned for provider names outside Providers.
var ErrUnsupportedProvider = errors.New("unsupported model provider")

// ErrMissingAPIKey is returned when a hosted provider has no key.
var ErrMissingAPIKey = errors.New("missing API key")

// Probe sends a one-word prompt to model and reports whether a reply
// came back.
func Probe(ctx context.Context, c Client, model string) error {
	_, err := c.Chat(ctx, model, []Message{{Role: RoleUser, Content: "ping"}}, nil)
	return err
}
