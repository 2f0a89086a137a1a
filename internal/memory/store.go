package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sinagilassi/mozichem-ai/internal/llm"
)

type conversation struct {
	messages  []llm.Message
	createdAt time.Time
	updatedAt time.Time
}

// Store is an in-memory Checkpointer. History is lost on restart.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int // per conversation
}

var _ Checkpointer = (*Store)(nil)

// NewStore creates a new memory store.
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
	}
}

// Load returns a copy of the thread's messages.
func (s *Store) Load(_ context.Context, threadID string) ([]llm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[threadID]
	if !ok {
		return nil, ErrThreadNotFound
	}
	return slices.Clone(conv.messages), nil
}

// Save stores a trimmed copy of messages.
func (s *Store) Save(_ context.Context, threadID string, messages []llm.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	conv, ok := s.conversations[threadID]
	if !ok {
		conv = &conversation{createdAt: now}
		s.conversations[threadID] = conv
	}
	conv.messages = slices.Clone(Trim(messages, s.maxMessages))
	conv.updatedAt = now
	return nil
}

// Delete removes a thread.
func (s *Store) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, threadID)
	return nil
}

// List returns every thread, most recently updated first.
func (s *Store) List(_ context.Context) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Thread, 0, len(s.conversations))
	for id, conv := range s.conversations {
		out = append(out, Thread{
			ID:        id,
			Messages:  len(conv.messages),
			CreatedAt: conv.createdAt,
			UpdatedAt: conv.updatedAt,
		})
	}
	slices.SortFunc(out, func(a, b Thread) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	return out, nil
}

// Stats returns memory statistics.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalMessages := 0
	for _, conv := range s.conversations {
		totalMessages += len(conv.messages)
	}

	return map[string]any{
		"backend":       "memory",
		"conversations": len(s.conversations),
		"messages":      totalMessages,
		"max_per_conv":  s.maxMessages,
	}
}
