// Package transcribe is the single entry point through which every turn
// component turns captured audio into text.
//
// The [Gateway] picks the model for the call site (the small dictation model
// or the tiny wake model), records latency, and classifies failures: backend
// errors wrap [types.ErrTranscription], cancellation is passed through
// untouched, and "no speech" is an empty string with a nil error.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Option is a functional option for [Gateway].
type Option func(*Gateway)

// WithLanguage sets the language used when a call does not name one.
// Default: "en".
func WithLanguage(lang string) Option {
	return func(g *Gateway) { g.language = lang }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithProviderName labels metrics and logs. Default: "stt".
func WithProviderName(name string) Option {
	return func(g *Gateway) { g.name = name }
}

// Options override the gateway defaults for one call. Zero fields keep the
// defaults: the provider's model and the gateway's language.
type Options struct {
	Model    string
	Language string
}

// Gateway wraps an [stt.Provider]. It is safe for concurrent use.
type Gateway struct {
	provider stt.Provider
	language string
	name     string
	metrics  *observe.Metrics
}

// New returns a Gateway over provider.
func New(provider stt.Provider, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, errors.New("transcribe: provider must not be nil")
	}
	g := &Gateway{
		provider: provider,
		language: "en",
		name:     "stt",
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g, nil
}

// Transcribe returns the text spoken in u. The model and language come from
// opts when set, so the wake gate can use a tiny model and a settings change
// applies to the next call. An empty utterance yields "" without calling the
// provider.
func (g *Gateway) Transcribe(ctx context.Context, u types.Utterance, opts Options) (string, error) {
	if u.Empty() {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	model, lang := opts.Model, opts.Language
	if lang == "" {
		lang = g.language
	}

	start := time.Now()
	text, err := g.provider.Transcribe(ctx, u.Samples, stt.Request{
		SampleRate: u.SampleRate,
		Model:      model,
		Language:   lang,
	})
	elapsed := time.Since(start)
	g.metrics.STTDuration.Record(ctx, elapsed.Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		g.metrics.RecordProviderRequest(ctx, g.name, "stt", "error")
		g.metrics.RecordProviderError(ctx, g.name, "stt")
		slog.Warn("transcribe: backend failed", "provider", g.name, "model", model, "language", lang, "err", err)
		return "", fmt.Errorf("transcribe: %w: %w", types.ErrTranscription, err)
	}
	g.metrics.RecordProviderRequest(ctx, g.name, "stt", "ok")

	text = strings.TrimSpace(text)
	slog.Debug("transcribe: done",
		"provider", g.name,
		"model", model,
		"language", lang,
		"audio", u.Duration(),
		"latency", elapsed,
		"chars", len(text),
	)
	return text, nil
}
