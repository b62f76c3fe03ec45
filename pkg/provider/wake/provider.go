// Package wake defines the interface for trained wake-word classifiers.
//
// A classifier scores raw audio frames as they arrive: each frame yields a
// confidence in [0,1] that the wake phrase was just spoken. The wake gate
// compares the score against a threshold and applies its own cooldown, so
// implementations only need to score.
package wake

import "context"

// DefaultFrameSamples is the frame length classifiers expect by default:
// 100 ms at 16 kHz.
const DefaultFrameSamples = 1600

// Config describes a new scoring session.
type Config struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// Model names the wake-word model on the classifier side. Empty selects
	// the classifier's default.
	Model string
}

// Session scores a stream of frames. It is owned by one goroutine.
type Session interface {
	// Score returns the highest wake-word confidence for frame.
	Score(ctx context.Context, frame []int16) (float64, error)

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Scorer creates scoring sessions. Implementations must be safe for
// concurrent use.
type Scorer interface {
	NewSession(ctx context.Context, cfg Config) (Session, error)
}
