// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to script transcripts and to verify which requests were made.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"hey bemo", ""}}
//	text, _ := p.Transcribe(ctx, samples, stt.Request{SampleRate: 16000})
//	// text == "hey bemo"; p.Calls()[0].Req.SampleRate == 16000
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is the number of samples passed.
	Samples int
	// Req is the request passed.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts is consumed one entry per call. Once exhausted, Text is returned.
	Texts []string

	// Text is returned when Texts is empty.
	Text string

	// Fn, when set, overrides Texts and Text.
	Fn func(samples []int16, req stt.Request) (string, error)

	// Err, if non-nil, is returned by every call.
	Err error

	// Delay blocks each call for the given duration or until ctx is done.
	Delay time.Duration

	calls []TranscribeCall
}

// Transcribe records the call and returns the next scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, req stt.Request) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{Samples: len(samples), Req: req})
	delay := p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	if p.Fn != nil {
		return p.Fn(samples, req)
	}
	if len(p.Texts) > 0 {
		t := p.Texts[0]
		p.Texts = p.Texts[1:]
		return t, nil
	}
	return p.Text, nil
}

// Calls returns a copy of every recorded call. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
