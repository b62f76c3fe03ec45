// Package inference streams one assistant reply from an LLM provider.
//
// [Worker.Stream] opens a streaming chat call and turns the provider's chunks
// into [Event] values: a growing Partial after every non-empty increment, then
// exactly one Final or Error. The returned channel is closed when the stream
// ends. Once ctx is cancelled the worker stops delivering events, even if the
// backend keeps producing; the remaining chunks are drained in the background.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/llm"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// EventKind classifies an [Event].
type EventKind int

const (
	// Partial carries the reply accumulated so far.
	Partial EventKind = iota + 1
	// Final carries the complete, trimmed reply.
	Final
	// Error carries a transport or protocol failure.
	Error
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Final:
		return "final"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one progress report from a stream.
type Event struct {
	Kind EventKind

	// Text is the accumulated reply for Partial and the trimmed reply for
	// Final.
	Text string

	// Err is set for Error events and wraps [types.ErrInferenceTransport].
	Err error
}

// Request is one reply request.
type Request struct {
	// Messages is the full prompt: system prompt, history window and the new
	// user message.
	Messages []types.Message

	// Model overrides the provider's configured model.
	Model string

	// Temperature is forwarded to the provider.
	Temperature float64
}

// Option is a functional option for [Worker].
type Option func(*Worker)

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithProviderName labels metrics and logs. Default: "llm".
func WithProviderName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// Worker streams replies from one provider. It is safe for concurrent use,
// although the turn controller runs at most one stream at a time.
type Worker struct {
	provider llm.Provider
	name     string
	metrics  *observe.Metrics
}

// New creates a Worker.
func New(provider llm.Provider, opts ...Option) (*Worker, error) {
	if provider == nil {
		return nil, errors.New("inference: provider must not be nil")
	}
	w := &Worker{provider: provider, name: "llm"}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w, nil
}

// Stream starts a reply. The channel is unbuffered and closed after the last
// event.
func (w *Worker) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		w.run(ctx, req, out)
	}()
	return out
}

func (w *Worker) run(ctx context.Context, req Request, out chan<- Event) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	chunks, err := w.provider.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    req.Messages,
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.fail(ctx, out, start, fmt.Errorf("inference: start stream: %w: %w", types.ErrInferenceTransport, err))
		return
	}

	var (
		reply    strings.Builder
		gotFirst bool
	)
	for {
		select {
		case <-ctx.Done():
			go audio.Drain(chunks)
			slog.Debug("inference: stream cancelled", "chars", reply.Len())
			return

		case c, ok := <-chunks:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				w.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
				w.metrics.RecordProviderRequest(ctx, w.name, "llm", "ok")
				send(ctx, out, Event{Kind: Final, Text: strings.TrimSpace(reply.String())})
				return
			}
			if c.FinishReason == llm.FinishReasonError {
				go audio.Drain(chunks)
				w.fail(ctx, out, start, fmt.Errorf("inference: stream: %w: %s", types.ErrInferenceTransport, c.Text))
				return
			}
			if c.Text == "" {
				continue
			}
			if !gotFirst {
				gotFirst = true
				w.metrics.LLMFirstTokenDuration.Record(ctx, time.Since(start).Seconds())
			}
			reply.WriteString(c.Text)
			if !send(ctx, out, Event{Kind: Partial, Text: reply.String()}) {
				go audio.Drain(chunks)
				return
			}
		}
	}
}

func (w *Worker) fail(ctx context.Context, out chan<- Event, start time.Time, err error) {
	slog.Warn("inference: reply failed", "provider", w.name, "elapsed", time.Since(start), "err", err)
	w.metrics.RecordProviderRequest(ctx, w.name, "llm", "error")
	w.metrics.RecordProviderError(ctx, w.name, "llm")
	send(ctx, out, Event{Kind: Error, Err: err})
}

// send delivers ev unless ctx is done. It reports whether ev was delivered.
func send(ctx context.Context, out chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
