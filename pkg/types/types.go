// Package types defines the shared types used across bemo packages.
//
// These types are the lingua franca between providers, workers and the turn
// controller. Each package defines its own domain types; cross-cutting data
// structures and the error taxonomy live here to avoid circular imports.
package types

import (
	"errors"
	"time"
)

// Conversation roles understood by every LLM provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Images holds local file paths of still images attached to a vision turn.
	// Providers that cannot send images ignore this field.
	Images []string
}

// Utterance is one contiguous span of captured voiced audio, from trigger to
// endpoint. Samples are mono signed 16-bit PCM.
type Utterance struct {
	// Samples is the concatenated voiced audio.
	Samples []int16

	// SampleRate in Hz (16000 for every built-in speech backend).
	SampleRate int

	// Truncated is true when the capture hit its hard time limit before
	// trailing silence ended it.
	Truncated bool
}

// Empty reports whether the utterance carries no audio.
func (u Utterance) Empty() bool { return len(u.Samples) == 0 }

// Duration returns the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}

// Error taxonomy. Concrete errors wrap one of these with %w so callers can
// classify failures with [errors.Is]. Cancellation is reported as
// [context.Canceled] and is never one of these.
var (
	// ErrDevice reports an unavailable or failing microphone or speaker.
	ErrDevice = errors.New("audio device unavailable")

	// ErrTranscription reports a speech-to-text backend failure. It is distinct
	// from "no speech", which is an empty transcript.
	ErrTranscription = errors.New("transcription failed")

	// ErrInferenceTransport reports a network or protocol failure while talking
	// to the language-model service.
	ErrInferenceTransport = errors.New("inference transport failed")

	// ErrSynthesis reports a missing or failing speech synthesizer.
	ErrSynthesis = errors.New("speech synthesis failed")
)
