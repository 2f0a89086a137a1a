// Package memory checkpoints conversation threads so an agent can resume
// them across turns.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
)

// DefaultMaxMessages bounds a thread's stored history when no limit is given.
const DefaultMaxMessages = 100

// ErrThreadNotFound is returned by Load when a thread has no checkpoint.
var ErrThreadNotFound = errors.New("thread not found")

// Checkpointer persists the message history of conversation threads.
type Checkpointer interface {
	// Load returns the stored history of threadID, or ErrThreadNotFound.
	Load(ctx context.Context, threadID string) ([]llm.Message, error)
	// Save replaces the stored history of threadID.
	Save(ctx context.Context, threadID string, messages []llm.Message) error
	// Delete removes threadID. Deleting an unknown thread is not an error.
	Delete(ctx context.Context, threadID string) error
	// List returns all threads, most recently updated first.
	List(ctx context.Context) ([]Thread, error)
}

// Thread summarizes a checkpointed conversation.
type Thread struct {
	ID        string    `json:"id" db:"id"`
	Messages  int       `json:"messages" db:"messages"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Trim caps messages at max, keeping system messages and the most recent
// turns. A cut never leaves a tool result without the assistant message
// that requested it.
func Trim(messages []llm.Message, max int) []llm.Message {
	if max <= 0 {
		max = DefaultMaxMessages
	}
	if len(messages) <= max {
		return messages
	}

	var system, rest []llm.Message
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	keep := max - len(system)
	if keep < 1 {
		keep = 1
	}
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}
	for len(rest) > 0 && rest[0].Role == llm.RoleTool {
		rest = rest[1:]
	}

	out := make([]llm.Message, 0, len(system)+len(rest))
	out = append(out, system...)
	return append(out, rest...)
}
