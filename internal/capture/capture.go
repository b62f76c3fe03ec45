// Package capture records one utterance from the microphone.
//
// A [Worker] acquires the input device only for the duration of a single
// capture: the stream is opened at the start of [Worker.Capture] and closed
// before it returns, on every exit path. This lets the wake gate, the
// foreground listen and the barge-in monitor share one physical microphone
// without ever holding it concurrently.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/vad"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Config holds the audio parameters shared by every capture.
type Config struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// FrameMs is the classifier frame length. Default: 30.
	FrameMs int

	// PreTriggerMs is the pre-roll kept before speech onset. Default: 300.
	PreTriggerMs int

	// Threshold is passed to the VAD engine. Zero selects the engine default.
	Threshold float64

	// Aggressiveness is passed to the VAD engine.
	Aggressiveness int
}

func (c *Config) applyDefaults() {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.FrameMs == 0 {
		c.FrameMs = 30
	}
	if c.PreTriggerMs == 0 {
		c.PreTriggerMs = 300
	}
}

// Option is a functional option for [Worker].
type Option func(*Worker)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithObserver registers a callback that receives the duration and outcome of
// every capture. It is used to feed metrics.
func WithObserver(fn func(d time.Duration, u types.Utterance, err error)) Option {
	return func(w *Worker) { w.observe = fn }
}

// Worker captures utterances from a single input device.
type Worker struct {
	device  audio.InputDevice
	engine  vad.Engine
	cfg     Config
	log     *slog.Logger
	observe func(time.Duration, types.Utterance, error)
}

// New creates a capture Worker.
func New(device audio.InputDevice, engine vad.Engine, cfg Config, opts ...Option) (*Worker, error) {
	if device == nil {
		return nil, errors.New("capture: input device must not be nil")
	}
	if engine == nil {
		return nil, errors.New("capture: vad engine must not be nil")
	}
	cfg.applyDefaults()
	if cfg.SampleRate < 0 || cfg.FrameMs < 0 {
		return nil, fmt.Errorf("capture: invalid audio config %+v", cfg)
	}
	w := &Worker{
		device: device,
		engine: engine,
		cfg:    cfg,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// SampleRate returns the configured capture rate.
func (w *Worker) SampleRate() int { return w.cfg.SampleRate }

// Capture opens the input device, records one utterance bounded by c, and
// releases the device.
//
// An empty utterance with a nil error means nothing was heard. Cancelling ctx
// returns an empty utterance and ctx.Err(). Device failures wrap
// [types.ErrDevice].
func (w *Worker) Capture(ctx context.Context, c segmenter.Constraints) (u types.Utterance, err error) {
	start := time.Now()
	defer func() {
		if w.observe != nil {
			w.observe(time.Since(start), u, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return types.Utterance{}, err
	}

	sess, err := w.engine.NewSession(vad.Config{
		SampleRate:     w.cfg.SampleRate,
		FrameSizeMs:    w.cfg.FrameMs,
		Threshold:      w.cfg.Threshold,
		Aggressiveness: w.cfg.Aggressiveness,
	})
	if err != nil {
		return types.Utterance{}, fmt.Errorf("capture: create vad session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			w.log.Warn("capture: close vad session", "err", cerr)
		}
	}()

	seg, err := segmenter.New(sess, w.cfg.SampleRate,
		segmenter.WithFrameMs(w.cfg.FrameMs),
		segmenter.WithPreTriggerMs(w.cfg.PreTriggerMs),
	)
	if err != nil {
		return types.Utterance{}, fmt.Errorf("capture: %w", err)
	}

	stream, err := audio.OpenInput(ctx, w.device, audio.Format{SampleRate: w.cfg.SampleRate, Channels: 1}, seg.FrameSamples())
	if err != nil {
		if ctx.Err() != nil {
			return types.Utterance{}, ctx.Err()
		}
		return types.Utterance{}, wrapDevice("open input", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			w.log.Warn("capture: close input stream", "err", cerr)
		}
	}()

	u, err = seg.Segment(ctx, stream, c)
	if err != nil {
		if ctx.Err() != nil {
			return types.Utterance{}, ctx.Err()
		}
		return types.Utterance{}, wrapDevice("record", err)
	}
	if u.Truncated {
		w.log.Debug("capture: hit max record time", "max_ms", c.MaxRecordMs, "duration", u.Duration())
	}
	return u, nil
}

// wrapDevice tags err as a device failure unless it already is one.
func wrapDevice(op string, err error) error {
	if errors.Is(err, types.ErrDevice) {
		return fmt.Errorf("capture: %s: %w", op, err)
	}
	return fmt.Errorf("capture: %s: %w: %w", op, types.ErrDevice, err)
}
