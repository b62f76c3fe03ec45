// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script decisions and inspect the frames that were classified.
//
// Example:
//
//	sess := &mock.Session{Decide: func(f []int16) vad.Decision {
//	    return vad.Decision{Speech: f[0] != 0}
//	}}
//	eng := &mock.Engine{Session: sess}
//	handle, _ := eng.NewSession(cfg)
package mock

import (
	"sync"

	"github.com/bemo-assistant/bemo/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by NewSession. If nil, NewSession
	// returns a new default Session.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// NewSessionCalls records the Config of every call to NewSession in order.
	NewSessionCalls []vad.Config
}

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.NewSessionCalls = append(e.NewSessionCalls, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Decide, when set, computes the decision for each frame. Otherwise
	// DecisionResult is returned for every frame.
	Decide func(frame []int16) vad.Decision

	// DecisionResult is returned when Decide is nil.
	DecisionResult vad.Decision

	// ClassifyErr, if non-nil, is returned by every Classify call.
	ClassifyErr error

	// Frames holds a copy of each frame passed to Classify.
	Frames [][]int16

	// ResetCount and CloseCount record lifecycle calls.
	ResetCount int
	CloseCount int
}

// Classify implements vad.SessionHandle.
func (s *Session) Classify(frame []int16) (vad.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]int16, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	if s.ClassifyErr != nil {
		return vad.Decision{}, s.ClassifyErr
	}
	if s.Decide != nil {
		return s.Decide(frame), nil
	}
	return s.DecisionResult, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	return nil
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
