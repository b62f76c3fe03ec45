// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider turns one finished utterance into text. All built-in
// backends are batch engines (whisper.cpp in its various forms), so the
// interface is a single blocking call rather than a stream: the caller hands
// over the whole utterance once the endpoint detector has closed it.
//
// An empty transcript with a nil error means "no speech". Backend failures are
// returned as errors; callers wrap them with types.ErrTranscription.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// Request describes how a single utterance should be transcribed.
type Request struct {
	// SampleRate is the rate of the supplied samples in Hz. All whisper
	// backends require 16000.
	SampleRate int

	// Model selects the recognition model by name (e.g. "tiny.en",
	// "small.en") or path. An empty string selects the provider default.
	Model string

	// Language is the ISO 639-1 language code (e.g. "en"). An empty string
	// selects the provider default.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in samples (mono 16-bit PCM).
	//
	// It returns "" and a nil error when the audio contains no recognisable
	// speech. ctx cancellation aborts the call where the backend allows it.
	Transcribe(ctx context.Context, samples []int16, req Request) (string, error)
}

// ErrUnsupportedRate is returned when a backend cannot accept the requested
// sample rate.
var ErrUnsupportedRate = errors.New("stt: unsupported sample rate")
