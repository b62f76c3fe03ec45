// Package mock provides test doubles for the wake package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/bemo-assistant/bemo/pkg/provider/wake"
)

// Scorer is a mock implementation of wake.Scorer. Every session it creates
// shares the same Scores script.
type Scorer struct {
	mu sync.Mutex

	// Scores is consumed one entry per Score call across all sessions. Once
	// exhausted, Score returns 0.
	Scores []float64

	// NewSessionErr, if non-nil, is returned by NewSession.
	NewSessionErr error

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	sessions int
	closed   int
	frames   int
}

// NewSession implements wake.Scorer.
func (s *Scorer) NewSession(_ context.Context, _ wake.Config) (wake.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NewSessionErr != nil {
		return nil, s.NewSessionErr
	}
	s.sessions++
	return &session{parent: s}, nil
}

// Sessions returns how many sessions were opened.
func (s *Scorer) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// Closed returns how many sessions were closed.
func (s *Scorer) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frames returns how many frames were scored.
func (s *Scorer) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

type session struct {
	parent *Scorer
	closed bool
}

func (ss *session) Score(_ context.Context, _ []int16) (float64, error) {
	s := ss.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if len(s.Scores) == 0 {
		return 0, nil
	}
	v := s.Scores[0]
	s.Scores = s.Scores[1:]
	return v, nil
}

func (ss *session) Close() error {
	s := ss.parent
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ss.closed {
		ss.closed = true
		s.closed++
	}
	return nil
}

// Ensure Scorer implements wake.Scorer at compile time.
var _ wake.Scorer = (*Scorer)(nil)
