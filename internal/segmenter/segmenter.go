// Package segmenter implements the voice endpoint detector: it consumes a live
// stream of fixed-length frames and decides, frame by frame, when an utterance
// starts and ends.
//
// The detector keeps a short pre-trigger ring so that the onset of speech
// (which the classifier usually misses by a frame or two) is not clipped.
// Once triggered it appends every frame and tracks trailing silence. An
// utterance ends successfully when it is at least MinRecordMs long and has
// been followed by SilenceMs of silence; the trailing silence is dropped. A
// hard limit of MaxRecordMs applies regardless of trigger state.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/vad"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Constraints bound a single capture.
type Constraints struct {
	// MaxRecordMs is the hard wall-time limit for the whole capture, including
	// time spent waiting for speech to start.
	MaxRecordMs int

	// MinRecordMs is the minimum utterance length before trailing silence may
	// end it.
	MinRecordMs int

	// SilenceMs is the trailing silence that ends an utterance.
	SilenceMs int
}

// Built-in constraint sets.
var (
	// Dictation is used for the foreground listen of a turn.
	Dictation = Constraints{MaxRecordMs: 12000, MinRecordMs: 300, SilenceMs: 800}

	// WakeWindow is used by the wake gate's short listening cycles.
	WakeWindow = Constraints{MaxRecordMs: 2000, MinRecordMs: 200, SilenceMs: 300}

	// BargeInWindow is used by the barge-in monitor during playback.
	BargeInWindow = Constraints{MaxRecordMs: 1200, MinRecordMs: 200, SilenceMs: 300}
)

// Validate reports whether the constraints are usable.
func (c Constraints) Validate() error {
	var errs []error
	if c.MaxRecordMs <= 0 {
		errs = append(errs, fmt.Errorf("max_record_ms must be positive, got %d", c.MaxRecordMs))
	}
	if c.MinRecordMs < 0 {
		errs = append(errs, fmt.Errorf("min_record_ms must not be negative, got %d", c.MinRecordMs))
	}
	if c.SilenceMs <= 0 {
		errs = append(errs, fmt.Errorf("silence_ms must be positive, got %d", c.SilenceMs))
	}
	if c.MaxRecordMs > 0 && c.MinRecordMs > c.MaxRecordMs {
		errs = append(errs, fmt.Errorf("min_record_ms (%d) exceeds max_record_ms (%d)", c.MinRecordMs, c.MaxRecordMs))
	}
	return errors.Join(errs...)
}

// FrameSource yields consecutive fixed-length frames. [audio.InputStream]
// satisfies it.
type FrameSource interface {
	ReadFrame() ([]int16, error)
}

const (
	defaultFrameMs      = 30
	defaultPreTriggerMs = 300
)

// Option is a functional option for [Segmenter].
type Option func(*Segmenter)

// WithFrameMs sets the nominal frame duration. Default: 30 ms.
func WithFrameMs(ms int) Option {
	return func(s *Segmenter) { s.frameMs = ms }
}

// WithPreTriggerMs sets the pre-trigger ring length. Default: 300 ms.
func WithPreTriggerMs(ms int) Option {
	return func(s *Segmenter) { s.preTriggerMs = ms }
}

// WithClock overrides the wall clock used for the hard time limit.
func WithClock(now func() time.Time) Option {
	return func(s *Segmenter) { s.now = now }
}

// Segmenter is a single-use-at-a-time endpoint detector bound to a VAD
// session. It is not safe for concurrent use.
type Segmenter struct {
	classifier   vad.SessionHandle
	sampleRate   int
	frameMs      int
	preTriggerMs int
	now          func() time.Time
}

// New creates a Segmenter that classifies frames with classifier.
func New(classifier vad.SessionHandle, sampleRate int, opts ...Option) (*Segmenter, error) {
	if classifier == nil {
		return nil, errors.New("segmenter: classifier must not be nil")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("segmenter: sample rate must be positive, got %d", sampleRate)
	}
	s := &Segmenter{
		classifier:   classifier,
		sampleRate:   sampleRate,
		frameMs:      defaultFrameMs,
		preTriggerMs: defaultPreTriggerMs,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.frameMs <= 0 {
		return nil, fmt.Errorf("segmenter: frame duration must be positive, got %d", s.frameMs)
	}
	return s, nil
}

// FrameSamples returns the number of samples in one nominal frame.
func (s *Segmenter) FrameSamples() int {
	return s.sampleRate * s.frameMs / 1000
}

// Segment reads frames from src until an endpoint is found, the hard limit
// elapses, or ctx is cancelled.
//
// It returns an empty utterance when no speech was heard. When ctx is
// cancelled it returns an empty utterance together with ctx.Err(), discarding
// any partial buffer. Frame source and classifier failures are returned
// wrapped.
//
// Elapsed time is the larger of wall time and the audio consumed, so a source
// that delivers faster than real time still honours MaxRecordMs.
func (s *Segmenter) Segment(ctx context.Context, src FrameSource, c Constraints) (types.Utterance, error) {
	if err := c.Validate(); err != nil {
		return types.Utterance{}, fmt.Errorf("segmenter: %w", err)
	}

	ringCap := max(s.preTriggerMs/s.frameMs, 1)
	ring := make([][]int16, 0, ringCap)

	var (
		voiced     []int16
		triggered  bool
		silenceMs  int
		lastSpeech int // len(voiced) just after the most recent speech frame
		consumedMs int
		start      = s.now()
	)
	s.classifier.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return types.Utterance{}, err
		}
		frame, err := src.ReadFrame()
		if err := ctx.Err(); err != nil {
			return types.Utterance{}, err
		}
		if err != nil {
			return types.Utterance{}, fmt.Errorf("segmenter: read frame: %w", err)
		}
		frameMs := audio.DurationMs(len(frame), s.sampleRate)
		consumedMs += frameMs

		decision, err := s.classifier.Classify(frame)
		if err != nil {
			return types.Utterance{}, fmt.Errorf("segmenter: classify: %w", err)
		}

		if !triggered {
			if len(ring) == ringCap {
				copy(ring, ring[1:])
				ring = ring[:ringCap-1]
			}
			ring = append(ring, frame)
			if decision.Speech {
				triggered = true
				for _, f := range ring {
					voiced = append(voiced, f...)
				}
				ring = ring[:0]
				lastSpeech = len(voiced)
			}
		} else {
			voiced = append(voiced, frame...)
			if decision.Speech {
				silenceMs = 0
				lastSpeech = len(voiced)
			} else {
				silenceMs += frameMs
			}

			if audio.DurationMs(len(voiced), s.sampleRate) >= c.MinRecordMs && silenceMs >= c.SilenceMs {
				return types.Utterance{
					Samples:    voiced[:lastSpeech:lastSpeech],
					SampleRate: s.sampleRate,
				}, nil
			}
		}

		elapsed := max(int(s.now().Sub(start)/time.Millisecond), consumedMs)
		if elapsed > c.MaxRecordMs {
			if !triggered {
				return types.Utterance{}, nil
			}
			return types.Utterance{
				Samples:    voiced,
				SampleRate: s.sampleRate,
				Truncated:  true,
			}, nil
		}
	}
}
