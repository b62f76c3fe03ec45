// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the inference worker sends the
// expected requests and to feed controlled chunk streams without a live model.
//
// Example:
//
//	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "Hi"}, {Text: "!", FinishReason: "stop"}}}
//	ch, _ := p.StreamCompletion(ctx, req)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	// Ctx is the context passed to StreamCompletion.
	Ctx context.Context
	// Req is the CompletionRequest passed to StreamCompletion.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// StreamChunks is emitted, in order, on every stream.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned by StreamCompletion instead of a
	// channel.
	StreamErr error

	// ChunkDelay is slept before each chunk.
	ChunkDelay time.Duration

	// IgnoreCancel keeps emitting chunks after ctx is cancelled, simulating a
	// backend that does not stop promptly. The channel is still closed once
	// StreamChunks is exhausted.
	IgnoreCancel bool

	// Models is returned by ListModels.
	Models []string

	// ModelsErr, if non-nil, is returned by ListModels.
	ModelsErr error

	streamCalls []StreamCall
	listCalls   int
}

// StreamCompletion records the call and replays StreamChunks.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	p.streamCalls = append(p.streamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([]llm.Chunk, len(p.StreamChunks))
	copy(chunks, p.StreamChunks)
	delay, ignore := p.ChunkDelay, p.IgnoreCancel
	p.mu.Unlock()

	ch := make(chan llm.Chunk)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if delay > 0 {
				time.Sleep(delay)
			}
			if ignore {
				ch <- c
				continue
			}
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// ListModels implements llm.Provider.
func (p *Provider) ListModels(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.ModelsErr != nil {
		return nil, p.ModelsErr
	}
	out := make([]string, len(p.Models))
	copy(out, p.Models)
	return out, nil
}

// StreamCalls returns a copy of every recorded StreamCompletion call.
func (p *Provider) StreamCalls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StreamCall, len(p.streamCalls))
	copy(out, p.streamCalls)
	return out
}

// ListCalls returns how many times ListModels was called.
func (p *Provider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamCalls = nil
	p.listCalls = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
