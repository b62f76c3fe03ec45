// Package energy provides a pure-Go RMS energy voice activity detector. It is
// the fallback classifier used when no dedicated VAD model is configured.
//
// A frame is speech when its root-mean-square level exceeds the threshold.
// The engine ignores Config.Aggressiveness.
package energy

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/vad"
)

// DefaultThreshold is the RMS level, in PCM units, above which a frame is
// classified as speech.
const DefaultThreshold = 500.0

// Engine creates energy-threshold VAD sessions.
type Engine struct{}

// New returns an energy Engine.
func New() *Engine { return &Engine{} }

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("vad/energy: sample rate must be positive")
	}
	switch cfg.FrameSizeMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("vad/energy: unsupported frame size %d ms (want 10, 20 or 30)", cfg.FrameSizeMs)
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("vad/energy: threshold must not be negative, got %v", cfg.Threshold)
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &session{threshold: threshold}, nil
}

type session struct {
	mu        sync.Mutex
	threshold float64
	closed    bool
}

// Classify implements vad.SessionHandle.
func (s *session) Classify(frame []int16) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.Decision{}, errors.New("vad/energy: session closed")
	}
	level := audio.RMS(frame)
	// Probability saturates at twice the threshold.
	p := math.Min(level/(2*s.threshold), 1)
	return vad.Decision{Speech: level > s.threshold, Probability: p}, nil
}

// Reset implements vad.SessionHandle. The energy detector is stateless.
func (s *session) Reset() {}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
