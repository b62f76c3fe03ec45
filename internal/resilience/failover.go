package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend in a [Failover] produced a result.
// The last backend error is joined so sentinel checks such as
// errors.Is(err, types.ErrTranscription) keep working.
var ErrAllFailed = errors.New("resilience: all backends failed")

type backend[T any] struct {
	value   T
	breaker *Breaker
}

// Failover tries a primary backend and then each alternative in the order
// they were added. Backends with an open breaker are skipped. Add must not be
// called concurrently with calls.
type Failover[T any] struct {
	cfg      BreakerConfig
	backends []backend[T]
}

// NewFailover returns a [Failover] with primary as its first backend. cfg is
// the template for every backend's breaker; its Name is replaced per backend.
func NewFailover[T any](name string, primary T, cfg BreakerConfig) *Failover[T] {
	f := &Failover[T]{cfg: cfg}
	f.Add(name, primary)
	return f
}

// Add appends an alternative backend.
func (f *Failover[T]) Add(name string, v T) {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend[T]{value: v, breaker: NewBreaker(cfg)})
}

// Len returns the number of backends.
func (f *Failover[T]) Len() int { return len(f.backends) }

// States returns each backend's breaker state keyed by name.
func (f *Failover[T]) States() map[string]State {
	m := make(map[string]State, len(f.backends))
	for _, b := range f.backends {
		m[b.breaker.Name()] = b.breaker.State()
	}
	return m
}

// Call runs fn against each backend of f until one succeeds. Cancellation of
// ctx stops the chain and returns ctx's error.
func Call[T, R any](ctx context.Context, f *Failover[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, b := range f.backends {
		var out R
		err := b.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, b.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping disabled backend", "backend", b.breaker.Name())
			if lastErr == nil {
				lastErr = err
			}
			continue
		}
		slog.Warn("backend failed, trying next", "backend", b.breaker.Name(), "err", err)
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
