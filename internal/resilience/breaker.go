// Package resilience keeps a flaky speech or model backend from stalling every
// turn. A [Breaker] stops calling a backend after repeated failures and tries
// it again later; a [Failover] chains a primary backend with configured
// alternatives, each guarded by its own breaker.
//
// Cancellation is not failure: a call that ends because its context was
// cancelled (barge-in, stop, shutdown) leaves the breaker untouched.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: backend temporarily disabled after repeated failures")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cool-off elapses.
	Open

	// HalfOpen lets a limited number of calls through to test recovery.
	HalfOpen
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the backend in logs, e.g. "llm/ollama".
	Name string

	// MaxFailures consecutive failures open the breaker. Default: 3.
	MaxFailures int

	// CoolOff is how long the breaker stays open before trial calls are let
	// through. Default: 20s.
	CoolOff time.Duration

	// TrialCalls successful calls while half-open close the breaker again.
	// Default: 1.
	TrialCalls int

	// OnStateChange, if set, is called after every transition with the
	// breaker's lock released.
	OnStateChange func(name string, from, to State)
}

// Breaker is a three-state circuit breaker. It is safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // trial calls currently running
	passed   int // trial calls that succeeded
}

// NewBreaker returns a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.CoolOff <= 0 {
		cfg.CoolOff = 20 * time.Second
	}
	if cfg.TrialCalls <= 0 {
		cfg.TrialCalls = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Name returns the configured backend label.
func (b *Breaker) Name() string { return b.cfg.Name }

// Do calls fn unless the breaker is open. An already cancelled ctx returns
// ctx.Err() without calling fn. Errors from fn that coincide with ctx being
// done are returned but not counted.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	var from, to State
	b.mu.Lock()
	if trial {
		b.inflight--
	}
	switch {
	case err == nil:
		from, to = b.succeeded(trial)
	case ctx.Err() != nil:
		from, to = b.state, b.state
	default:
		from, to = b.failed(trial)
	}
	b.mu.Unlock()

	b.transitioned(from, to, err)
	return err
}

// State reports the current state. An open breaker whose cool-off has
// elapsed reports [HalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.CoolOff {
		return HalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inflight, b.passed = Closed, 0, 0, 0
	b.mu.Unlock()
	b.transitioned(from, Closed, nil)
}

// admit decides whether a call may proceed and whether it counts as a trial.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	var from State
	switch b.state {
	case Closed:
		b.mu.Unlock()
		return false, nil
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.CoolOff {
			b.mu.Unlock()
			return false, ErrOpen
		}
		from = Open
		b.state, b.inflight, b.passed = HalfOpen, 0, 0
	}
	if b.inflight+b.passed >= b.cfg.TrialCalls {
		b.mu.Unlock()
		return false, ErrOpen
	}
	b.inflight++
	b.mu.Unlock()

	if from == Open {
		b.transitioned(Open, HalfOpen, nil)
	}
	return true, nil
}

// succeeded must be called with b.mu held.
func (b *Breaker) succeeded(trial bool) (from, to State) {
	from = b.state
	b.failures = 0
	if trial && b.state == HalfOpen {
		b.passed++
		if b.passed >= b.cfg.TrialCalls {
			b.state, b.passed = Closed, 0
		}
	}
	return from, b.state
}

// failed must be called with b.mu held.
func (b *Breaker) failed(trial bool) (from, to State) {
	from = b.state
	b.failures++
	if (trial && b.state == HalfOpen) || b.failures >= b.cfg.MaxFailures {
		b.state = Open
		b.openedAt = b.now()
		b.passed = 0
	}
	return from, b.state
}

func (b *Breaker) transitioned(from, to State, err error) {
	if from == to {
		return
	}
	switch to {
	case Open:
		slog.Warn("backend disabled after failures", "backend", b.cfg.Name, "cool_off", b.cfg.CoolOff, "err", err)
	case HalfOpen:
		slog.Info("trying backend again", "backend", b.cfg.Name)
	case Closed:
		slog.Info("backend recovered", "backend", b.cfg.Name)
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
