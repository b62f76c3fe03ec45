// Package session holds the conversation state that lives for one run of the
// assistant: the chat history sent to the language model and the memory
// notes the user asked it to remember. Nothing here is persisted.
package session

import (
	"strings"
	"sync"

	"github.com/bemo-assistant/bemo/pkg/types"
)

// DefaultHistoryWindow is how many history messages accompany each request.
const DefaultHistoryWindow = 12

// History is an append-only list of user and assistant messages.
//
// All methods are safe for concurrent use.
type History struct {
	mu       sync.Mutex
	messages []types.Message
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{messages: make([]types.Message, 0)}
}

// Append adds messages to the end of the history.
func (h *History) Append(msgs ...types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msgs...)
}

// AppendExchange adds a user message followed by the assistant's reply.
func (h *History) AppendExchange(user, assistant string) {
	h.Append(
		types.Message{Role: types.RoleUser, Content: user},
		types.Message{Role: types.RoleAssistant, Content: assistant},
	)
}

// Window returns a copy of the last n messages. n <= 0 returns every
// message.
func (h *History) Window(n int) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := 0
	if n > 0 && len(h.messages) > n {
		start = len(h.messages) - n
	}
	out := make([]types.Message, len(h.messages)-start)
	copy(out, h.messages[start:])
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Reset clears the history.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = h.messages[:0]
}

// Prompt assembles a chat request: the system prompt, the last window
// history messages and the new user text.
func (h *History) Prompt(system string, window int, user string) []types.Message {
	past := h.Window(window)
	out := make([]types.Message, 0, len(past)+2)
	out = append(out, types.Message{Role: types.RoleSystem, Content: strings.TrimSpace(system)})
	out = append(out, past...)
	out = append(out, types.Message{Role: types.RoleUser, Content: user})
	return out
}
