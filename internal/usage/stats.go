package usage

import (
	"sync"
	"time"
)

// SessionStats counts chat turns since process start.
type SessionStats struct {
	mu           sync.Mutex
	started      time.Time
	turns        int
	failures     int
	inputTokens  int64
	outputTokens int64
	lastTurn     time.Time
}

// StatsSnapshot is a point-in-time copy of SessionStats.
type StatsSnapshot struct {
	Started      time.Time `json:"started"`
	Turns        int       `json:"turns"`
	Failures     int       `json:"failures"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	LastTurn     time.Time `json:"last_turn,omitzero"`
}

// NewSessionStats starts a counter at the current time.
func NewSessionStats() *SessionStats {
	return &SessionStats{started: time.Now()}
}

// RecordTurn counts one successful turn. Negative token counts are not
// reported by the provider and are not added.
func (s *SessionStats) RecordTurn(inputTokens, outputTokens int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns++
	s.inputTokens += int64(max(inputTokens, 0))
	s.outputTokens += int64(max(outputTokens, 0))
	s.lastTurn = time.Now()
}

// RecordFailure counts one failed turn.
func (s *SessionStats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.lastTurn = time.Now()
}

// Snapshot returns the current counters.
func (s *SessionStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Started:      s.started,
		Turns:        s.turns,
		Failures:     s.failures,
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
		LastTurn:     s.lastTurn,
	}
}
