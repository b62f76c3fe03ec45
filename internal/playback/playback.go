// Package playback speaks one reply: it synthesizes the text to a WAV file
// and streams the file to the output device block by block.
//
// Every block written is followed by a level callback carrying the block's
// RMS normalised to [0, 1], which drives the UI's mouth animation. The
// synthesized file is removed before [Worker.Speak] returns, whatever the
// outcome. Cancellation is checked before every block, so output stops within
// one block's duration.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/tts"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// DefaultBlockFrames is the number of sample frames written per block.
const DefaultBlockFrames = 1024

// LevelFunc receives the normalised level of each block as it is played.
type LevelFunc func(level float64)

// Option is a functional option for [Worker].
type Option func(*Worker)

// WithBlockFrames sets the block size in frames. Default: 1024.
func WithBlockFrames(n int) Option {
	return func(w *Worker) { w.blockFrames = n }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithProviderName labels metrics and logs. Default: "tts".
func WithProviderName(name string) Option {
	return func(w *Worker) { w.name = name }
}

// Worker plays synthesized replies on one output device. Calls to Speak must
// not overlap; the turn controller runs at most one at a time.
type Worker struct {
	synth       tts.Provider
	out         audio.OutputDevice
	blockFrames int
	name        string
	metrics     *observe.Metrics
}

// New creates a playback Worker.
func New(synth tts.Provider, out audio.OutputDevice, opts ...Option) (*Worker, error) {
	if synth == nil {
		return nil, errors.New("playback: synthesizer must not be nil")
	}
	if out == nil {
		return nil, errors.New("playback: output device must not be nil")
	}
	w := &Worker{
		synth:       synth,
		out:         out,
		blockFrames: DefaultBlockFrames,
		name:        "tts",
	}
	for _, o := range opts {
		o(w)
	}
	if w.blockFrames <= 0 {
		return nil, fmt.Errorf("playback: block size must be positive, got %d", w.blockFrames)
	}
	if w.metrics == nil {
		w.metrics = observe.DefaultMetrics()
	}
	return w, nil
}

// Available reports whether the synthesizer can speak.
func (w *Worker) Available(ctx context.Context) error {
	return w.synth.Available(ctx)
}

// Speak synthesizes text and plays it. onLevel may be nil.
//
// Synthesis failures wrap [types.ErrSynthesis] and output failures wrap
// [types.ErrDevice]. Cancellation returns ctx.Err().
func (w *Worker) Speak(ctx context.Context, text string, onLevel LevelFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	path, err := w.synth.Synthesize(ctx, text)
	w.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		w.metrics.RecordProviderRequest(ctx, w.name, "tts", "error")
		w.metrics.RecordProviderError(ctx, w.name, "tts")
		return fmt.Errorf("playback: synthesize: %w: %w", types.ErrSynthesis, err)
	}
	w.metrics.RecordProviderRequest(ctx, w.name, "tts", "ok")
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			slog.Warn("playback: remove synthesized audio", "path", path, "err", rerr)
		}
	}()

	return w.Play(ctx, path, onLevel)
}

// Play streams the WAV file at path to the output device. The file is left
// in place.
func (w *Worker) Play(ctx context.Context, path string, onLevel LevelFunc) error {
	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		return fmt.Errorf("playback: %w: %w", types.ErrSynthesis, err)
	}
	if clip.Format.Channels <= 0 || clip.Format.SampleRate <= 0 {
		return fmt.Errorf("playback: %w: invalid format %s", types.ErrSynthesis, clip.Format)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stream, err := w.out.OpenOutput(clip.Format, w.blockFrames)
	if err != nil {
		return fmt.Errorf("playback: open output: %w: %w", types.ErrDevice, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			slog.Warn("playback: close output stream", "err", cerr)
		}
	}()

	start := time.Now()
	defer func() {
		w.metrics.PlaybackDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds())
	}()

	step := w.blockFrames * clip.Format.Channels
	for off := 0; off < len(clip.Samples); off += step {
		if err := ctx.Err(); err != nil {
			slog.Debug("playback: stopped", "played", time.Since(start))
			return err
		}
		block := clip.Samples[off:min(off+step, len(clip.Samples))]
		if err := stream.WriteBlock(block); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("playback: write block: %w: %w", types.ErrDevice, err)
		}
		if onLevel != nil {
			onLevel(audio.NormalizedRMS(block))
		}
	}
	slog.Debug("playback: done", "format", clip.Format, "frames", clip.Frames(), "took", time.Since(start))
	return nil
}
