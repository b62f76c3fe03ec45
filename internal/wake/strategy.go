package wake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/internal/phrase"
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/transcribe"
	"github.com/bemo-assistant/bemo/pkg/audio"
	wakeword "github.com/bemo-assistant/bemo/pkg/provider/wake"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Defaults shared by the strategies.
const (
	DefaultPhrase         = "hey bemo"
	DefaultModel          = "tiny.en"
	DefaultCooldown       = time.Second
	DefaultThreshold      = 0.5
	DefaultCooldownFrames = 20
)

// Capturer records one utterance. *capture.Worker satisfies it.
type Capturer interface {
	Capture(ctx context.Context, c segmenter.Constraints) (types.Utterance, error)
}

// Transcriber turns an utterance into text. *transcribe.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, u types.Utterance, opts transcribe.Options) (string, error)
}

// ─── Transcribe strategy ─────────────────────────────────────────────────────

// TranscribeConfig configures a [TranscribeStrategy]. Zero fields take the
// package defaults.
type TranscribeConfig struct {
	// Phrase is the wake phrase. Default: "hey bemo".
	Phrase string

	// Model is the recognition model used for wake windows. Default: "tiny.en".
	Model string

	// Language of the wake windows. Empty uses the transcriber default.
	Language string

	// Window bounds each capture. Default: [segmenter.WakeWindow].
	Window segmenter.Constraints

	// Cooldown after a detection. Default: 1s.
	Cooldown time.Duration

	// Matcher decides whether a transcript contains the phrase. Default: a
	// substring matcher without fuzzy matching.
	Matcher *phrase.Matcher
}

// TranscribeStrategy listens for a short window, transcribes it with a small
// model and looks for the wake phrase in the text.
type TranscribeStrategy struct {
	capture Capturer
	stt     Transcriber
	cfg     TranscribeConfig
}

var _ Strategy = (*TranscribeStrategy)(nil)

// NewTranscribeStrategy creates a TranscribeStrategy.
func NewTranscribeStrategy(c Capturer, t Transcriber, cfg TranscribeConfig) (*TranscribeStrategy, error) {
	if c == nil {
		return nil, errors.New("wake: capturer must not be nil")
	}
	if t == nil {
		return nil, errors.New("wake: transcriber must not be nil")
	}
	if cfg.Phrase == "" {
		cfg.Phrase = DefaultPhrase
	}
	if phrase.Normalize(cfg.Phrase) == "" {
		return nil, fmt.Errorf("wake: phrase %q has no words", cfg.Phrase)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Window == (segmenter.Constraints{}) {
		cfg.Window = segmenter.WakeWindow
	}
	if err := cfg.Window.Validate(); err != nil {
		return nil, fmt.Errorf("wake: %w", err)
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Matcher == nil {
		cfg.Matcher = phrase.New()
	}
	return &TranscribeStrategy{capture: c, stt: t, cfg: cfg}, nil
}

// Name implements [Strategy].
func (s *TranscribeStrategy) Name() string { return "transcribe" }

// Cooldown implements [Strategy].
func (s *TranscribeStrategy) Cooldown() time.Duration { return s.cfg.Cooldown }

// Listen implements [Strategy]. Transcription failures count as "not heard".
func (s *TranscribeStrategy) Listen(ctx context.Context) (bool, error) {
	u, err := s.capture.Capture(ctx, s.cfg.Window)
	if err != nil {
		return false, err
	}
	if u.Empty() {
		return false, nil
	}
	text, err := s.stt.Transcribe(ctx, u, transcribe.Options{Model: s.cfg.Model, Language: s.cfg.Language})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		slog.Debug("wake: transcription failed, treating as silence", "err", err)
		return false, nil
	}
	if text != "" {
		slog.Debug("wake: heard", "text", text)
	}
	return s.cfg.Matcher.Contains(text, s.cfg.Phrase), nil
}

// ─── Classifier strategy ─────────────────────────────────────────────────────

// ClassifierConfig configures a [ClassifierStrategy]. Zero fields take the
// package defaults.
type ClassifierConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// FrameSamples per scored frame. Default: [wakeword.DefaultFrameSamples].
	FrameSamples int

	// Threshold is the score a frame must exceed. Default: 0.5.
	Threshold float64

	// CooldownFrames is the number of frames ignored after a detection.
	// Default: 20.
	CooldownFrames int

	// Model is forwarded to the scorer.
	Model string
}

// ClassifierStrategy streams raw frames to a trained wake-word scorer. The
// post-trigger cooldown is counted in frames and carries over into the next
// cycle, so a detection at the end of one cycle still mutes the start of the
// next.
type ClassifierStrategy struct {
	device audio.InputDevice
	scorer wakeword.Scorer
	cfg    ClassifierConfig

	mu           sync.Mutex
	cooldownLeft int
}

var _ Strategy = (*ClassifierStrategy)(nil)

// NewClassifierStrategy creates a ClassifierStrategy.
func NewClassifierStrategy(device audio.InputDevice, scorer wakeword.Scorer, cfg ClassifierConfig) (*ClassifierStrategy, error) {
	if device == nil {
		return nil, errors.New("wake: input device must not be nil")
	}
	if scorer == nil {
		return nil, errors.New("wake: scorer must not be nil")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSamples == 0 {
		cfg.FrameSamples = wakeword.DefaultFrameSamples
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CooldownFrames == 0 {
		cfg.CooldownFrames = DefaultCooldownFrames
	}
	if cfg.SampleRate < 0 || cfg.FrameSamples < 0 || cfg.CooldownFrames < 0 {
		return nil, fmt.Errorf("wake: invalid classifier config %+v", cfg)
	}
	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("wake: threshold %v outside [0,1)", cfg.Threshold)
	}
	return &ClassifierStrategy{device: device, scorer: scorer, cfg: cfg}, nil
}

// Name implements [Strategy].
func (s *ClassifierStrategy) Name() string { return "classifier" }

// Cooldown implements [Strategy]. The classifier cools down in frames.
func (s *ClassifierStrategy) Cooldown() time.Duration { return 0 }

// Listen implements [Strategy]. It scores frames until one exceeds the
// threshold outside the cooldown, or ctx is cancelled.
func (s *ClassifierStrategy) Listen(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sess, err := s.scorer.NewSession(ctx, wakeword.Config{SampleRate: s.cfg.SampleRate, Model: s.cfg.Model})
	if err != nil {
		return false, fmt.Errorf("wake: open scorer session: %w", err)
	}
	defer sess.Close()

	stream, err := audio.OpenInput(ctx, s.device, audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1}, s.cfg.FrameSamples)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, deviceErr("open input", err)
	}
	defer stream.Close()

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		frame, err := stream.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, deviceErr("read frame", err)
		}
		score, err := sess.Score(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, fmt.Errorf("wake: score frame: %w", err)
		}
		if s.trigger(score) {
			slog.Debug("wake: classifier triggered", "score", score)
			return true, nil
		}
	}
}

// trigger applies the threshold and the frame cooldown.
func (s *ClassifierStrategy) trigger(score float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cooldownLeft > 0 {
		s.cooldownLeft--
		return false
	}
	if score > s.cfg.Threshold {
		s.cooldownLeft = s.cfg.CooldownFrames
		return true
	}
	return false
}

func deviceErr(op string, err error) error {
	if errors.Is(err, types.ErrDevice) {
		return fmt.Errorf("wake: %s: %w", op, err)
	}
	return fmt.Errorf("wake: %s: %w: %w", op, types.ErrDevice, err)
}
