package connwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// fast is a schedule short enough for tests.
func fast() Backoff {
	return Backoff{
		Initial:         time.Millisecond,
		Max:             4 * time.Millisecond,
		Factor:          2,
		StartupAttempts: 5,
		Interval:        5 * time.Millisecond,
		Timeout:         100 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDefaultBackoff(t *testing.T) {
	b := Backoff{}.withDefaults()
	if b != DefaultBackoff() {
		t.Errorf("zero Backoff defaults = %+v, want %+v", b, DefaultBackoff())
	}
	if b.Initial != 2*time.Second || b.Max != time.Minute || b.StartupAttempts != 10 {
		t.Errorf("unexpected defaults %+v", b)
	}

	partial := Backoff{Initial: time.Second, Factor: 0.5}.withDefaults()
	if partial.Initial != time.Second || partial.Factor != 2 {
		t.Errorf("partial defaults = %+v", partial)
	}
}

func TestWatch_InvalidSpec(t *testing.T) {
	g := NewGroup(quiet)
	if _, err := g.Watch(context.Background(), Spec{Name: "x"}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("missing check: err = %v", err)
	}
	if _, err := g.Watch(context.Background(), Spec{Name: " ", Check: func(context.Context) error { return nil }}); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("blank name: err = %v", err)
	}
}

func TestWatcher_UpImmediately(t *testing.T) {
	g := NewGroup(quiet)
	defer g.Stop()

	var ups atomic.Int32
	w, err := g.Watch(context.Background(), Spec{
		Name:    "model:openai",
		Check:   func(context.Context) error { return nil },
		Backoff: fast(),
		OnUp:    func() { ups.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, "OnUp", func() bool { return ups.Load() == 1 })
	if !w.Up() {
		t.Error("watcher not up")
	}
	// Staying up does not fire OnUp again.
	time.Sleep(20 * time.Millisecond)
	if n := ups.Load(); n != 1 {
		t.Errorf("OnUp fired %d times, want 1", n)
	}
}

func TestWatcher_RecoversAfterFailures(t *testing.T) {
	g := NewGroup(quiet)
	defer g.Stop()

	var calls atomic.Int32
	var ups atomic.Int32
	w, _ := g.Watch(context.Background(), Spec{
		Name: "model:ollama",
		Check: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
		Backoff: fast(),
		OnUp:    func() { ups.Add(1) },
	})

	waitFor(t, "recovery", func() bool { return ups.Load() == 1 })
	if st := w.Status(); !st.Up || st.Failures != 0 || st.Error != "" {
		t.Errorf("status after recovery = %+v", st)
	}
}

func TestWatcher_GoesDown(t *testing.T) {
	g := NewGroup(quiet)
	defer g.Stop()

	var healthy atomic.Bool
	healthy.Store(true)
	down := make(chan error, 1)
	w, _ := g.Watch(context.Background(), Spec{
		Name: "model:anthropic",
		Check: func(context.Context) error {
			if healthy.Load() {
				return nil
			}
			return errors.New("401 unauthorized")
		},
		Backoff: fast(),
		OnDown:  func(err error) { down <- err },
	})

	waitFor(t, "up", w.Up)
	healthy.Store(false)

	select {
	case err := <-down:
		if err.Error() != "401 unauthorized" {
			t.Errorf("OnDown err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnDown not called")
	}
	waitFor(t, "failures counted", func() bool { return w.Status().Failures >= 1 })
	if w.Up() {
		t.Error("watcher still up")
	}
}

func TestWatcher_CheckTimeout(t *testing.T) {
	g := NewGroup(quiet)
	defer g.Stop()

	b := fast()
	b.Timeout = 5 * time.Millisecond
	w, _ := g.Watch(context.Background(), Spec{
		Name: "slow",
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Backoff: b,
	})

	waitFor(t, "timeout recorded", func() bool { return w.Status().Error != "" })
	if st := w.Status(); st.Error != context.DeadlineExceeded.Error() {
		t.Errorf("Error = %q", st.Error)
	}
}

func TestGroup_StatusAndStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := NewGroup(quiet)

	ok := func(context.Context) error { return nil }
	for _, name := range []string{"mcp:thermo", "model:openai", "mcp:eos"} {
		if _, err := g.Watch(ctx, Spec{Name: name, Check: ok, Backoff: fast()}); err != nil {
			t.Fatal(err)
		}
	}
	// Re-watching a name replaces the watcher.
	if _, err := g.Watch(ctx, Spec{Name: "mcp:eos", Check: ok, Backoff: fast()}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "all up", func() bool {
		for _, s := range g.Status() {
			if !s.Up {
				return false
			}
		}
		return true
	})
	st := g.Status()
	if len(st) != 3 || st[0].Name != "mcp:eos" || st[1].Name != "mcp:thermo" || st[2].Name != "model:openai" {
		t.Errorf("status = %+v", st)
	}

	done := make(chan struct{})
	go func() { g.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
