// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local chat model (a local Ollama instance
// by default, or any OpenAI-compatible API) and exposes a uniform streaming
// interface to the inference worker without coupling it to a specific SDK.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import (
	"context"

	"github.com/bemo-assistant/bemo/pkg/types"
)

// FinishReasonError marks a chunk that carries a mid-stream failure. Its Text
// holds the error message.
const FinishReasonError = "error"

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation, system prompt first. Images on a
	// message are sent by providers that support vision and ignored otherwise.
	Messages []types.Message

	// Model overrides the provider's configured model for this request.
	Model string

	// Temperature controls output randomness. Zero selects the provider
	// default.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means no cap.
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text. May be empty.
	Text string

	// FinishReason is set on the final chunk: "stop" for a natural end,
	// "length" when MaxTokens was reached, or [FinishReasonError].
	FinishReason string
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// chunks as they arrive. The channel is closed when generation finishes or
	// ctx is cancelled.
	//
	// The initial error is non-nil only for failures that prevent the stream
	// from starting. Later failures arrive as a chunk whose FinishReason is
	// [FinishReasonError]. The returned channel is never nil when err is nil.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// ListModels returns the model names the backend can serve. It doubles as
	// the reachability check used by the status checks.
	ListModels(ctx context.Context) ([]string, error)
}
