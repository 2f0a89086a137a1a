// Package connwatch tracks whether the services the agent depends on
// are reachable. A watcher checks its service with exponential backoff
// until the first success (or until the startup attempts run out), then
// keeps checking on a fixed interval and reports up/down transitions.
//
// It complements the transport-level retry in httpkit, which only
// covers sub-second dial failures; connwatch covers outages of minutes,
// such as a local Ollama that starts after the API server.
package connwatch

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

// CheckFunc returns nil when the service is reachable.
type CheckFunc func(ctx context.Context) error

// Backoff is the check schedule. Zero fields take DefaultBackoff values.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	// StartupAttempts bounds the backoff phase; after it, and after the
	// first success, checks run every Interval.
	StartupAttempts int
	Interval        time.Duration
	// Timeout bounds each check.
	Timeout time.Duration
}

// DefaultBackoff checks after 2s, 4s, 8s ... capped at 60s, for ten
// attempts, then once a minute.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:         2 * time.Second,
		Max:             60 * time.Second,
		Factor:          2,
		StartupAttempts: 10,
		Interval:        60 * time.Second,
		Timeout:         10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Factor < 1 {
		b.Factor = d.Factor
	}
	if b.StartupAttempts <= 0 {
		b.StartupAttempts = d.StartupAttempts
	}
	if b.Interval <= 0 {
		b.Interval = d.Interval
	}
	if b.Timeout <= 0 {
		b.Timeout = d.Timeout
	}
	return b
}

// Spec describes one watched service.
type Spec struct {
	// Name identifies the service in logs and status, e.g. "model:openai".
	Name    string
	Check   CheckFunc
	Backoff Backoff
	// OnUp and OnDown run in their own goroutine on each transition.
	OnUp   func()
	OnDown func(err error)
}

// Status is a point-in-time view of a watcher.
type Status struct {
	Name      string    `json:"name"`
	Up        bool      `json:"up"`
	CheckedAt time.Time `json:"checked_at,omitzero"`
	Failures  int       `json:"consecutive_failures"`
	Error     string    `json:"error,omitempty"`
}

// ErrInvalidSpec is returned by Watch for a spec without name or check.
var ErrInvalidSpec = errors.New("connwatch: spec needs a name and a check")

// Watcher checks one service in the background.
type Watcher struct {
	spec   Spec
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	up        bool
	everUp    bool
	checkedAt time.Time
	failures  int
	lastErr   error
}

// Up reports whether the last check succeeded.
func (w *Watcher) Up() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.up
}

// Status returns the watcher's current state.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Status{Name: w.spec.Name, Up: w.up, CheckedAt: w.checkedAt, Failures: w.failures}
	if w.lastErr != nil {
		s.Error = w.lastErr.Error()
	}
	return s
}

// Stop ends the watcher and waits for its goroutine.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	b := w.spec.Backoff
	delay := b.Initial
	attempts := 0

	for {
		attempts++
		w.observe(w.check(ctx))

		wait := b.Interval
		if !w.hasBeenUp() && attempts < b.StartupAttempts {
			wait = delay
			delay = min(time.Duration(float64(delay)*b.Factor), b.Max)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (w *Watcher) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.spec.Backoff.Timeout)
	defer cancel()
	return w.spec.Check(ctx)
}

func (w *Watcher) hasBeenUp() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.everUp
}

// observe records a check result and fires transition callbacks.
func (w *Watcher) observe(err error) {
	w.mu.Lock()
	wasUp := w.up
	w.checkedAt = time.Now()
	w.lastErr = err
	if err != nil {
		w.failures++
	} else {
		w.failures = 0
		w.everUp = true
	}
	w.up = err == nil
	failures := w.failures
	w.mu.Unlock()

	switch {
	case err == nil && !wasUp:
		w.logger.Info("service up", "service", w.spec.Name)
		if w.spec.OnUp != nil {
			go w.spec.OnUp()
		}
	case err != nil && wasUp:
		w.logger.Warn("service down", "service", w.spec.Name, "error", err)
		if w.spec.OnDown != nil {
			go w.spec.OnDown(err)
		}
	case err != nil:
		w.logger.Debug("service unreachable", "service", w.spec.Name, "failures", failures, "error", err)
	}
}

// Group owns a set of watchers.
type Group struct {
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[string]*Watcher
}

// NewGroup returns an empty group.
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		logger:   logger.With("component", "connwatch"),
		watchers: make(map[string]*Watcher),
	}
}

// Watch starts a watcher for spec. It runs until ctx is cancelled or
// the group is stopped. Watching a name twice replaces the old watcher.
func (g *Group) Watch(ctx context.Context, spec Spec) (*Watcher, error) {
	if strings.TrimSpace(spec.Name) == "" || spec.Check == nil {
		return nil, ErrInvalidSpec
	}
	spec.Backoff = spec.Backoff.withDefaults()

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		spec:   spec,
		logger: g.logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	g.mu.Lock()
	old := g.watchers[spec.Name]
	g.watchers[spec.Name] = w
	g.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	go w.run(ctx)
	return w, nil
}

// Status lists every watcher, ordered by name.
func (g *Group) Status() []Status {
	g.mu.Lock()
	out := make([]Status, 0, len(g.watchers))
	for _, w := range g.watchers {
		out = append(out, w.Status())
	}
	g.mu.Unlock()
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Stop ends all watchers.
func (g *Group) Stop() {
	g.mu.Lock()
	ws := make([]*Watcher, 0, len(g.watchers))
	for _, w := range g.watchers {
		ws = append(ws, w)
	}
	g.mu.Unlock()
	for _, w := range ws {
		w.Stop()
	}
}
