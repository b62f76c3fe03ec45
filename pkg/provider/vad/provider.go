// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech classifier (an energy threshold, a
// WebRTC-style detector, or a neural model) and surfaces it as a stateful,
// per-capture session. Each session keeps its own smoothing state so that the
// foreground listener, the wake gate and the barge-in monitor can classify
// independently.
//
// VAD is synchronous by design: Classify returns immediately with a decision,
// making it suitable for the endpoint detector's per-frame loop.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// frames passed to Classify.
	SampleRate int

	// FrameSizeMs is the duration of each frame in milliseconds (10, 20 or 30).
	FrameSizeMs int

	// Threshold is the engine-specific decision threshold. For the energy
	// engine it is an RMS level in PCM units; for model-based engines it is a
	// probability in [0, 1]. Zero selects the engine default.
	Threshold float64

	// Aggressiveness in [0, 3] trades recall for precision. Higher values
	// reject more non-speech at the cost of clipping quiet speech.
	Aggressiveness int
}

// Decision is the classification of a single frame.
type Decision struct {
	// Speech is true when the frame is judged voiced.
	Speech bool

	// Probability is the engine's speech confidence in [0, 1].
	Probability float64
}

// SessionHandle is an active VAD session for a single capture. It is an
// interface so that test code can supply scripted decisions.
type SessionHandle interface {
	// Classify analyses one frame of mono 16-bit samples.
	Classify(frame []int16) (Decision, error)

	// Reset clears accumulated smoothing state without closing the session.
	Reset()

	// Close releases session resources. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions.
type Engine interface {
	// NewSession creates a session with the given configuration. Returns an
	// error for unsupported sample rates, frame sizes or thresholds.
	NewSession(cfg Config) (SessionHandle, error)
}
