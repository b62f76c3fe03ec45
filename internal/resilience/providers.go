package resilience

import (
	"context"

	"github.com/bemo-assistant/bemo/pkg/provider/llm"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/tts"
)

// ─── LLM ──────────────────────────────────────────────────────────────────────

// LLM is an [llm.Provider] that fails over between chat backends. Only
// opening the stream is covered; an error after the first chunk ends the
// turn like any other stream error.
type LLM struct {
	*Failover[llm.Provider]
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps primary. Add alternatives with [Failover.Add].
func NewLLM(name string, primary llm.Provider, cfg BreakerConfig) *LLM {
	return &LLM{NewFailover(name, primary, cfg)}
}

// StreamCompletion implements [llm.Provider].
func (l *LLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Call(ctx, l.Failover, func(ctx context.Context, p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// ListModels implements [llm.Provider] with the first reachable backend.
func (l *LLM) ListModels(ctx context.Context) ([]string, error) {
	return Call(ctx, l.Failover, func(ctx context.Context, p llm.Provider) ([]string, error) {
		return p.ListModels(ctx)
	})
}

// ─── STT ──────────────────────────────────────────────────────────────────────

// Transcriber is an [stt.Provider] that fails over between speech-to-text
// backends. An empty transcript is a result, not a failure.
type Transcriber struct {
	*Failover[stt.Provider]
}

var _ stt.Provider = (*Transcriber)(nil)

// NewTranscriber wraps primary.
func NewTranscriber(name string, primary stt.Provider, cfg BreakerConfig) *Transcriber {
	return &Transcriber{NewFailover(name, primary, cfg)}
}

// Transcribe implements [stt.Provider].
func (t *Transcriber) Transcribe(ctx context.Context, samples []int16, req stt.Request) (string, error) {
	return Call(ctx, t.Failover, func(ctx context.Context, p stt.Provider) (string, error) {
		return p.Transcribe(ctx, samples, req)
	})
}

// ─── TTS ──────────────────────────────────────────────────────────────────────

// Synthesizer is a [tts.Provider] that fails over between speech
// synthesizers.
type Synthesizer struct {
	*Failover[tts.Provider]
}

var _ tts.Provider = (*Synthesizer)(nil)

// NewSynthesizer wraps primary.
func NewSynthesizer(name string, primary tts.Provider, cfg BreakerConfig) *Synthesizer {
	return &Synthesizer{NewFailover(name, primary, cfg)}
}

// Synthesize implements [tts.Provider].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	return Call(ctx, s.Failover, func(ctx context.Context, p tts.Provider) (string, error) {
		return p.Synthesize(ctx, text)
	})
}

// Available implements [tts.Provider]. It succeeds when any backend is
// available.
func (s *Synthesizer) Available(ctx context.Context) error {
	_, err := Call(ctx, s.Failover, func(ctx context.Context, p tts.Provider) (struct{}, error) {
		return struct{}{}, p.Available(ctx)
	})
	return err
}
