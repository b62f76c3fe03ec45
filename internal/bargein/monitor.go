// Package bargein listens for a spoken "stop" while a reply is playing.
//
// The [Monitor] loops over short capture windows, transcribes each with the
// small wake model and calls its stop callback as soon as a transcript
// contains the stop word. It runs only for the duration of playback; the turn
// controller cancels it when the reply finishes.
package bargein

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/phrase"
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/transcribe"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Defaults.
const (
	DefaultWord  = "stop"
	DefaultModel = "tiny.en"
)

// Capturer records one utterance. *capture.Worker satisfies it.
type Capturer interface {
	Capture(ctx context.Context, c segmenter.Constraints) (types.Utterance, error)
}

// Transcriber turns an utterance into text. *transcribe.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, u types.Utterance, opts transcribe.Options) (string, error)
}

// Config configures a [Monitor]. Zero fields take the package defaults.
type Config struct {
	// Word is what the user says to interrupt. Default: "stop".
	Word string

	// Model is the recognition model. Default: "tiny.en".
	Model string

	// Window bounds each capture. Default: [segmenter.BargeInWindow].
	Window segmenter.Constraints

	// Matcher decides whether a transcript contains Word. Default: plain
	// substring matching.
	Matcher *phrase.Matcher
}

// Option is a functional option for [Monitor].
type Option func(*Monitor)

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// Monitor detects the stop word during playback. A Monitor holds no state
// between runs and may be reused, but runs must not overlap because they
// share the microphone.
type Monitor struct {
	capture Capturer
	stt     Transcriber
	cfg     Config
	metrics *observe.Metrics
}

// New creates a Monitor.
func New(c Capturer, t Transcriber, cfg Config, opts ...Option) (*Monitor, error) {
	if c == nil {
		return nil, errors.New("bargein: capturer must not be nil")
	}
	if t == nil {
		return nil, errors.New("bargein: transcriber must not be nil")
	}
	if cfg.Word == "" {
		cfg.Word = DefaultWord
	}
	if phrase.Normalize(cfg.Word) == "" {
		return nil, fmt.Errorf("bargein: stop word %q has no letters or digits", cfg.Word)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Window == (segmenter.Constraints{}) {
		cfg.Window = segmenter.BargeInWindow
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, fmt.Errorf("bargein: %w", err)
	}
	if cfg.Matcher == nil {
		cfg.Matcher = phrase.New()
	}
	m := &Monitor{capture: c, stt: t, cfg: cfg}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m, nil
}

// Run listens until the stop word is heard, ctx is cancelled, or capture
// fails. language is the recognition language of the reply being spoken;
// empty uses the transcriber default. When the word is heard onStop is
// called once and Run returns nil. Cancellation returns ctx.Err(). Transcription failures are logged and the
// loop carries on; capture failures end the run with their error.
func (m *Monitor) Run(ctx context.Context, language string, onStop func()) error {
	opts := transcribe.Options{Model: m.cfg.Model, Language: language}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		u, err := m.capture.Capture(ctx, m.cfg.Window)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("bargein: %w", err)
		}
		if u.Empty() {
			continue
		}
		text, err := m.stt.Transcribe(ctx, u, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			slog.Debug("bargein: transcription failed, listening again", "err", err)
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if m.cfg.Matcher.Contains(text, m.cfg.Word) {
			slog.Info("bargein: stop heard", "text", text)
			m.metrics.BargeIns.Add(ctx, 1)
			if onStop != nil {
				onStop()
			}
			return nil
		}
	}
}
