package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

// fakeClock is advanced manually so cool-offs elapse without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(cfg)
	b.now = clk.now
	return b, clk
}

func fail(context.Context) error { return errBackend }
func ok(context.Context) error   { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{Name: "llm/ollama"})
	if b.cfg.MaxFailures != 3 || b.cfg.CoolOff != 20*time.Second || b.cfg.TrialCalls != 1 {
		t.Errorf("cfg = %+v", b.cfg)
	}
	if b.State() != Closed {
		t.Errorf("State = %v, want closed", b.State())
	}
	if b.Name() != "llm/ollama" {
		t.Errorf("Name = %q", b.Name())
	}
}

func TestBreaker_Lifecycle(t *testing.T) {
	t.Parallel()
	var transitions []string
	b, clk := newTestBreaker(BreakerConfig{
		MaxFailures: 2,
		CoolOff:     time.Minute,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	ctx := context.Background()

	// A success in between resets the count.
	_ = b.Do(ctx, fail)
	_ = b.Do(ctx, ok)
	_ = b.Do(ctx, fail)
	if b.State() != Closed {
		t.Fatalf("State = %v, want closed", b.State())
	}
	_ = b.Do(ctx, fail)
	if b.State() != Open {
		t.Fatalf("State = %v, want open", b.State())
	}

	called := false
	err := b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrOpen) || called {
		t.Fatalf("open breaker: err=%v called=%v", err, called)
	}

	clk.advance(time.Minute)
	if b.State() != HalfOpen {
		t.Fatalf("State after cool-off = %v, want half-open", b.State())
	}

	// A failed trial reopens.
	if err := b.Do(ctx, fail); !errors.Is(err, errBackend) {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != Open {
		t.Fatalf("State after failed trial = %v, want open", b.State())
	}

	clk.advance(time.Minute)
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("State after trial = %v, want closed", b.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreaker_TrialBudget(t *testing.T) {
	t.Parallel()
	b, clk := newTestBreaker(BreakerConfig{MaxFailures: 1, CoolOff: time.Second, TrialCalls: 1})
	ctx := context.Background()
	_ = b.Do(ctx, fail)
	clk.advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The only trial slot is taken.
	if err := b.Do(ctx, ok); !errors.Is(err, ErrOpen) {
		t.Errorf("second trial err = %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial err = %v", err)
	}
	if b.State() != Closed {
		t.Errorf("State = %v, want closed", b.State())
	}
}

func TestBreaker_CancellationIsNotFailure(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	err := b.Do(ctx, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.State() != Closed {
		t.Errorf("State = %v, want closed", b.State())
	}

	called := false
	err = b.Do(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("cancelled ctx: err=%v called=%v", err, called)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 1, CoolOff: time.Hour})
	_ = b.Do(context.Background(), fail)
	if b.State() != Open {
		t.Fatalf("State = %v, want open", b.State())
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("State after Reset = %v, want closed", b.State())
	}
	if err := b.Do(context.Background(), ok); err != nil {
		t.Errorf("Do after Reset: %v", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
