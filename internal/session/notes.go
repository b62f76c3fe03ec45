package session

import (
	"strings"
	"sync"
)

// DefaultBlurbNotes is how many of the newest notes appear in the blurb.
const DefaultBlurbNotes = 5

// Notes collects short facts the user asked the assistant to remember.
//
// All methods are safe for concurrent use.
type Notes struct {
	mu    sync.Mutex
	notes []string
	limit int
}

// NewNotes returns an empty Notes whose blurb lists at most limit notes.
// limit <= 0 selects [DefaultBlurbNotes].
func NewNotes(limit int) *Notes {
	if limit <= 0 {
		limit = DefaultBlurbNotes
	}
	return &Notes{limit: limit}
}

// Add stores note. Blank notes are ignored.
func (n *Notes) Add(note string) bool {
	note = strings.TrimSpace(note)
	if note == "" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return true
}

// All returns a copy of every note, oldest first.
func (n *Notes) All() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.notes))
	copy(out, n.notes)
	return out
}

// Blurb renders the newest notes for the end of the system prompt:
//
//	\nMemory:\n- first\n- second\n
//
// It returns "" when there are no notes.
func (n *Notes) Blurb() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notes) == 0 {
		return ""
	}
	recent := n.notes
	if len(recent) > n.limit {
		recent = recent[len(recent)-n.limit:]
	}
	var b strings.Builder
	b.WriteString("\nMemory:\n")
	for _, note := range recent {
		b.WriteString("- ")
		b.WriteString(note)
		b.WriteString("\n")
	}
	return b.String()
}
