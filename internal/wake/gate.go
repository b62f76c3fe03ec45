// Package wake runs the background wake-word loop.
//
// A [Gate] repeatedly asks its [Strategy] to listen for the wake phrase and
// invokes a callback when it is heard. The gate can be paused while the
// foreground listener owns the microphone: a paused gate never opens the
// input device, and pausing cancels the cycle in flight so the device is
// released within one frame. Pauses nest; the gate listens again once every
// [Gate.Pause] has been matched by a [Gate.Resume].
//
// Transcription failures are the strategy's business and never stop the
// loop. A device failure ([types.ErrDevice]) in a cycle that was not
// cancelled ends the loop, moves the gate to [Stopped] and is reported
// through the error handler.
package wake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/types"
)

const defaultBackoff = 500 * time.Millisecond

// State is the lifecycle state of a [Gate].
type State int

const (
	// Stopped means the loop is not running.
	Stopped State = iota
	// Running means the loop is listening for the wake phrase.
	Running
	// Paused means the loop is alive but does not touch the microphone.
	Paused
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Strategy performs one wake detection cycle.
type Strategy interface {
	// Name identifies the strategy in logs and metrics ("transcribe",
	// "classifier").
	Name() string

	// Listen acquires the input device, listens for the wake phrase and
	// releases the device before returning. It reports true when the phrase
	// was heard. Cancelling ctx must make it return promptly.
	Listen(ctx context.Context) (bool, error)

	// Cooldown is how long the gate waits after a detection before the next
	// cycle.
	Cooldown() time.Duration
}

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithMetrics records wake detections.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithErrorHandler registers fn to receive the error that stopped the loop.
func WithErrorHandler(fn func(error)) Option {
	return func(g *Gate) { g.onError = fn }
}

// WithBackoff sets the pause after an unexpected strategy error.
// Default: 500ms.
func WithBackoff(d time.Duration) Option {
	return func(g *Gate) { g.backoff = d }
}

// Gate is the wake-word loop. All methods are safe for concurrent use.
type Gate struct {
	onWake  func()
	onError func(error)
	metrics *observe.Metrics
	backoff time.Duration

	mu          sync.Mutex
	strategy    Strategy
	pauses      int
	resumed     chan struct{} // closed while pauses == 0
	cycleCancel context.CancelFunc
	stop        context.CancelFunc
	done        chan struct{}
	err         error
}

// New creates a Gate that calls onWake every time strategy hears the wake
// phrase. The gate starts out stopped; call [Gate.Start].
func New(strategy Strategy, onWake func(), opts ...Option) (*Gate, error) {
	if strategy == nil {
		return nil, errors.New("wake: strategy must not be nil")
	}
	if onWake == nil {
		return nil, errors.New("wake: wake callback must not be nil")
	}
	resumed := make(chan struct{})
	close(resumed)
	g := &Gate{
		onWake:   onWake,
		backoff:  defaultBackoff,
		strategy: strategy,
		resumed:  resumed,
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Start launches the loop. It is a no-op while the loop is already running
// and restarts it after it has stopped. A pause requested before Start is
// honoured: the loop starts paused.
func (g *Gate) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.stop = cancel
	g.done = done
	g.err = nil
	go g.run(loopCtx, done)
	slog.Info("wake: gate started", "strategy", g.strategy.Name(), "paused", g.pauses > 0)
}

// Stop ends the loop and waits for it to exit or for ctx to expire.
// Stopping a stopped gate is a no-op.
func (g *Gate) Stop(ctx context.Context) error {
	g.mu.Lock()
	done, stop := g.done, g.stop
	g.mu.Unlock()
	if done == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause stops the loop from touching the microphone until the matching
// [Gate.Resume]. A cycle in progress is cancelled.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pauses++
	if g.pauses == 1 {
		g.resumed = make(chan struct{})
	}
	if g.cycleCancel != nil {
		g.cycleCancel()
	}
}

// Resume undoes one [Gate.Pause]. The loop listens again when no pause is
// left; extra calls are ignored.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pauses == 0 {
		return
	}
	g.pauses--
	if g.pauses == 0 {
		close(g.resumed)
	}
}

// SetStrategy swaps the detection strategy. A cycle in progress is cancelled
// and the next cycle uses s.
func (g *Gate) SetStrategy(s Strategy) {
	if s == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.strategy = s
	if g.cycleCancel != nil {
		g.cycleCancel()
	}
}

// Strategy returns the strategy the next cycle will use.
func (g *Gate) Strategy() Strategy {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.strategy
}

// State reports the current lifecycle state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.done == nil:
		return Stopped
	case g.pauses > 0:
		return Paused
	default:
		return Running
	}
}

// Err returns the error that stopped the loop, if any.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Gate) run(ctx context.Context, done chan struct{}) {
	var exitErr error
	defer func() {
		g.mu.Lock()
		g.cycleCancel = nil
		g.done = nil
		g.err = exitErr
		g.mu.Unlock()
		close(done)
		if exitErr != nil && g.onError != nil {
			g.onError(exitErr)
		}
	}()

	for {
		cycleCtx, strategy, ok := g.nextCycle(ctx)
		if !ok {
			return
		}
		heard, err := strategy.Listen(cycleCtx)
		interrupted := cycleCtx.Err() != nil
		g.endCycle()

		// A cancelled cycle may fail with a device error (the microphone was
		// handed to the foreground listener), which is not a broken device.
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case interrupted:
			continue
		case errors.Is(err, types.ErrDevice):
			slog.Error("wake: input device failed, stopping gate", "strategy", strategy.Name(), "err", err)
			exitErr = err
			return
		default:
			slog.Warn("wake: detection cycle failed", "strategy", strategy.Name(), "err", err)
			if !sleep(ctx, g.backoff) {
				return
			}
			continue
		}

		if !heard || interrupted {
			continue
		}
		slog.Info("wake: wake phrase detected", "strategy", strategy.Name())
		if g.metrics != nil {
			g.metrics.RecordWake(ctx, strategy.Name())
		}
		g.onWake()
		if !sleep(ctx, strategy.Cooldown()) {
			return
		}
	}
}

// nextCycle blocks while the gate is paused, then returns a context for one
// cycle that Pause and SetStrategy can cancel.
func (g *Gate) nextCycle(ctx context.Context) (context.Context, Strategy, bool) {
	for {
		g.mu.Lock()
		if g.pauses == 0 {
			cctx, cancel := context.WithCancel(ctx)
			g.cycleCancel = cancel
			s := g.strategy
			g.mu.Unlock()
			return cctx, s, true
		}
		resumed := g.resumed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-resumed:
		}
	}
}

func (g *Gate) endCycle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cycleCancel != nil {
		g.cycleCancel()
		g.cycleCancel = nil
	}
}

// sleep waits for d or until ctx is done. It reports whether ctx is still
// live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
