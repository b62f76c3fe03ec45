// Package mock provides a test double for the tts.Provider interface.
//
// Provider writes a real WAV file for every successful Synthesize call, so the
// playback worker can be exercised end to end, and records the text it was
// given.
//
// Example:
//
//	p := &mock.Provider{Samples: make([]int16, 4096), Dir: t.TempDir()}
//	path, _ := p.Synthesize(ctx, "hello")
//	// p.Texts() == []string{"hello"}; path is a 4096-sample 16 kHz WAV
package mock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Samples is the PCM written to every synthesized file.
	Samples []int16

	// Format of the written file. Zero means 16 kHz mono.
	Format audio.Format

	// Dir is where files are written. Empty means os.TempDir().
	Dir string

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// AvailableErr is returned by Available.
	AvailableErr error

	// Delay blocks each Synthesize call for the given duration or until ctx
	// is done.
	Delay time.Duration

	texts          []string
	paths          []string
	availableCalls int
}

// Synthesize records text and writes Samples to a new WAV file.
func (p *Provider) Synthesize(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	p.texts = append(p.texts, text)
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
	if p.SynthesizeErr != nil {
		return "", p.SynthesizeErr
	}
	format := p.Format
	if format.SampleRate == 0 {
		format = audio.Format{SampleRate: 16000, Channels: 1}
	}
	f, err := os.CreateTemp(p.Dir, "mock-tts-*.wav")
	if err != nil {
		return "", err
	}
	name := f.Name()
	_ = f.Close()
	if err := audio.WriteWAVFile(name, p.Samples, format); err != nil {
		_ = os.Remove(name)
		return "", err
	}
	p.paths = append(p.paths, name)
	return name, nil
}

// Available returns AvailableErr.
func (p *Provider) Available(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.availableCalls++
	return p.AvailableErr
}

// Texts returns a copy of the text passed to every Synthesize call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// Paths returns the files written so far, including ones already removed by
// the caller.
func (p *Provider) Paths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.paths))
	copy(out, p.paths)
	return out
}

// AvailableCalls returns the number of Available invocations.
func (p *Provider) AvailableCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableCalls
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.texts = nil
	p.paths = nil
	p.availableCalls = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
