// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider renders one reply to a WAV file on local disk and returns its
// path. The playback worker owns the file from then on: it streams it to the
// speaker and removes it afterwards, whatever the outcome. Every built-in
// backend is a batch engine (the Piper CLI, a Coqui HTTP server), so there is
// no streaming variant.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text to a 16-bit PCM WAV file and returns its path.
	// The caller must remove the file. On error no file is left behind.
	Synthesize(ctx context.Context, text string) (string, error)

	// Available reports whether the backend is configured well enough to
	// synthesize. The returned error is suitable for showing to the user.
	Available(ctx context.Context) error
}
