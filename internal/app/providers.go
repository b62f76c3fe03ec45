package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/bemo-assistant/bemo/internal/config"
	"github.com/bemo-assistant/bemo/internal/health"
	"github.com/bemo-assistant/bemo/internal/resilience"
	"github.com/bemo-assistant/bemo/pkg/provider/llm"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/tts"
	"github.com/bemo-assistant/bemo/pkg/provider/vad"
	wakeword "github.com/bemo-assistant/bemo/pkg/provider/wake"
)

// Providers holds one backend per role, built from the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider

	// WakeSTT serves wake windows and barge-in. It is STT when
	// providers.wake_stt names no backend of its own.
	WakeSTT stt.Provider

	TTS tts.Provider
	VAD vad.Engine

	// WakeScorer is nil unless wake.mode is classifier.
	WakeScorer wakeword.Scorer

	closers []func() error
}

// Close releases backends that hold resources, such as loaded models.
func (p *Providers) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildProviders instantiates every backend named in cfg. Fallback entries
// wrap the primary of their role in a [resilience] failover chain.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	p := &Providers{}
	pc := cfg.Providers
	var err error

	if p.LLM, err = reg.CreateLLM(pc.LLM); err != nil {
		return nil, fmt.Errorf("app: llm provider %q: %w", pc.LLM.Name, err)
	}
	if len(pc.Fallbacks.LLM) > 0 {
		chain := resilience.NewLLM("llm/"+pc.LLM.Name, p.LLM, breakerConfig())
		for _, e := range pc.Fallbacks.LLM {
			fb, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("app: llm fallback %q: %w", e.Name, err)
			}
			chain.Add("llm/"+e.Name, fb)
		}
		p.LLM = chain
	}

	if p.STT, err = reg.CreateSTT(pc.STT); err != nil {
		return nil, fmt.Errorf("app: stt provider %q: %w", pc.STT.Name, err)
	}
	p.track(p.STT)
	if len(pc.Fallbacks.STT) > 0 {
		chain := resilience.NewTranscriber("stt/"+pc.STT.Name, p.STT, breakerConfig())
		for _, e := range pc.Fallbacks.STT {
			fb, err := reg.CreateSTT(e)
			if err != nil {
				return nil, fmt.Errorf("app: stt fallback %q: %w", e.Name, err)
			}
			p.track(fb)
			chain.Add("stt/"+e.Name, fb)
		}
		p.STT = chain
	}

	p.WakeSTT = p.STT
	if pc.WakeSTT.Name != "" {
		if p.WakeSTT, err = reg.CreateSTT(pc.WakeSTT); err != nil {
			return nil, fmt.Errorf("app: wake stt provider %q: %w", pc.WakeSTT.Name, err)
		}
		p.track(p.WakeSTT)
	}

	if p.TTS, err = buildTTS(pc, reg); err != nil {
		return nil, err
	}

	if p.VAD, err = reg.CreateVAD(pc.VAD); err != nil {
		return nil, fmt.Errorf("app: vad provider %q: %w", pc.VAD.Name, err)
	}

	if cfg.Wake.Mode == config.WakeClassifier {
		if p.WakeScorer, err = reg.CreateWakeScorer(pc.WakeScorer); err != nil {
			return nil, fmt.Errorf("app: wake scorer %q: %w", pc.WakeScorer.Name, err)
		}
	}

	slog.Info("providers ready",
		"llm", pc.LLM.Name,
		"stt", pc.STT.Name,
		"tts", pc.TTS.Name,
		"vad", pc.VAD.Name,
		"wake_mode", cfg.Wake.Mode,
	)
	return p, nil
}

func buildTTS(pc config.ProvidersConfig, reg *config.Registry) (tts.Provider, error) {
	p, err := reg.CreateTTS(pc.TTS)
	if err != nil {
		return nil, fmt.Errorf("app: tts provider %q: %w", pc.TTS.Name, err)
	}
	if len(pc.Fallbacks.TTS) == 0 {
		return p, nil
	}
	chain := resilience.NewSynthesizer("tts/"+pc.TTS.Name, p, breakerConfig())
	for _, e := range pc.Fallbacks.TTS {
		fb, err := reg.CreateTTS(e)
		if err != nil {
			return nil, fmt.Errorf("app: tts fallback %q: %w", e.Name, err)
		}
		chain.Add("tts/"+e.Name, fb)
	}
	return chain, nil
}

func (p *Providers) track(v any) {
	if c, ok := v.(io.Closer); ok {
		p.closers = append(p.closers, c.Close)
	}
}

func breakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Debug("backend breaker transition", "backend", name, "from", from, "to", to)
		},
	}
}

// transcriberAvailability adapts the availability check of a speech-to-text
// backend, or returns nil when it has none.
func transcriberAvailability(p stt.Provider) health.Availability {
	switch v := p.(type) {
	case health.Availability:
		return v
	case interface{ Available() error }:
		return health.AvailabilityFunc(func(context.Context) error { return v.Available() })
	}
	return nil
}

// ─── Swappable synthesizer ───────────────────────────────────────────────────

// synthesizer lets a config reload replace the speech backend under a
// running playback worker. The next Synthesize call uses the new backend.
type synthesizer struct {
	p atomic.Pointer[tts.Provider]
}

var _ tts.Provider = (*synthesizer)(nil)

func newSynthesizer(p tts.Provider) *synthesizer {
	s := &synthesizer{}
	s.set(p)
	return s
}

func (s *synthesizer) set(p tts.Provider) { s.p.Store(&p) }

func (s *synthesizer) get() tts.Provider { return *s.p.Load() }

func (s *synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	return s.get().Synthesize(ctx, text)
}

func (s *synthesizer) Available(ctx context.Context) error {
	return s.get().Available(ctx)
}
