package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/pkg/types"
)

// DefaultAcquireTimeout bounds how long [ExclusiveInput] waits for the
// previous holder to release the device.
const DefaultAcquireTimeout = 2 * time.Second

// ExclusiveInput wraps an [InputDevice] so that at most one stream is open at
// a time. OpenInput blocks until the current holder closes its stream, or
// fails with [types.ErrDevice] once the acquire timeout elapses. Waiters that
// use [ExclusiveInput.OpenInputContext] give up with ctx.Err() instead when
// their context ends first.
//
// The wake gate, the foreground listen and the barge-in monitor all open the
// same ExclusiveInput, so a capture that is still winding down after
// cancellation can never overlap the next one.
type ExclusiveInput struct {
	dev     InputDevice
	timeout time.Duration
	sem     chan struct{}
}

// NewExclusiveInput wraps dev. A non-positive timeout selects
// [DefaultAcquireTimeout].
func NewExclusiveInput(dev InputDevice, timeout time.Duration) *ExclusiveInput {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	return &ExclusiveInput{dev: dev, timeout: timeout, sem: make(chan struct{}, 1)}
}

// OpenInput implements [InputDevice].
func (e *ExclusiveInput) OpenInput(format Format, frameSamples int) (InputStream, error) {
	return e.OpenInputContext(context.Background(), format, frameSamples)
}

// OpenInputContext implements [ContextInputDevice].
func (e *ExclusiveInput) OpenInputContext(ctx context.Context, format Format, frameSamples int) (InputStream, error) {
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("audio: input device busy after %v: %w", e.timeout, types.ErrDevice)
	}
	if err := ctx.Err(); err != nil {
		<-e.sem
		return nil, err
	}
	s, err := e.dev.OpenInput(format, frameSamples)
	if err != nil {
		<-e.sem
		return nil, err
	}
	return &exclusiveStream{InputStream: s, release: func() { <-e.sem }}, nil
}

// Busy reports whether a stream is currently open.
func (e *ExclusiveInput) Busy() bool {
	return len(e.sem) == 1
}

type exclusiveStream struct {
	InputStream
	once    sync.Once
	release func()
}

func (s *exclusiveStream) Close() error {
	err := s.InputStream.Close()
	s.once.Do(s.release)
	return err
}
