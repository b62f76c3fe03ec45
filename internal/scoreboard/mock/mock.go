// Package mock provides an in-memory scoreboard.Store for tests.
package mock

import (
	"context"
	"sync"

	"github.com/bemo-assistant/bemo/internal/scoreboard"
)

// IncrementCall records one Increment invocation.
type IncrementCall struct {
	Game   string
	Result string
}

// Store is an in-memory [scoreboard.Store]. Set IncrementErr or GetErr to
// inject failures.
type Store struct {
	IncrementErr error
	GetErr       error

	mu     sync.Mutex
	counts map[string]scoreboard.Counts
	calls  []IncrementCall
}

var _ scoreboard.Store = (*Store)(nil)

func (s *Store) Increment(_ context.Context, game, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, IncrementCall{Game: game, Result: result})
	if s.IncrementErr != nil {
		return s.IncrementErr
	}
	if s.counts == nil {
		s.counts = make(map[string]scoreboard.Counts)
	}
	c := s.counts[game]
	switch result {
	case "win":
		c.Win++
	case "loss":
		c.Loss++
	case "tie":
		c.Tie++
	}
	s.counts[game] = c
	return nil
}

func (s *Store) Get(_ context.Context, game string) (scoreboard.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetErr != nil {
		return scoreboard.Counts{}, s.GetErr
	}
	return s.counts[game], nil
}

// Calls returns a copy of every Increment call.
func (s *Store) Calls() []IncrementCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]IncrementCall, len(s.calls))
	copy(out, s.calls)
	return out
}
