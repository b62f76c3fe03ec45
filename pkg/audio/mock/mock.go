// Package mock provides in-memory mock implementations of the [audio.InputDevice]
// and [audio.OutputDevice] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every open, read, write
// and close so that tests can assert on device acquisition, and they expose
// exported fields that the test can set to control behaviour.
//
// Typical usage:
//
//	mic := &mock.InputDevice{Frames: [][]int16{speech, speech, silence}}
//	s, _ := mic.OpenInput(audio.Format{SampleRate: 16000, Channels: 1}, 480)
//	frame, _ := s.ReadFrame()
//	_ = s.Close()
//	// mic.OpenCalls() == 1, mic.OpenStreams() == 0
package mock

import (
	"sync"
	"time"

	"github.com/bemo-assistant/bemo/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice  = (*InputDevice)(nil)
	_ audio.OutputDevice = (*OutputDevice)(nil)
)

// ─── InputDevice ─────────────────────────────────────────────────────────────

// InputDevice is a mock microphone. Frames are served from a single script
// shared by every stream the device opens, so consecutive captures see a
// continuous signal. Once the script is exhausted the device returns silence
// (or ReadErr, when set).
type InputDevice struct {
	mu sync.Mutex

	// Frames is the scripted frame sequence. Each frame is returned verbatim,
	// regardless of the frameSamples requested at open time.
	Frames [][]int16

	// OpenErr is returned by OpenInput when non-nil.
	OpenErr error

	// ReadErr, when non-nil, is returned by ReadFrame once Frames is exhausted.
	ReadErr error

	// ReadDelay is slept before every ReadFrame, simulating real-time capture.
	ReadDelay time.Duration

	cursor     int
	openCalls  int
	closeCalls int
	open       int
	reads      int
}

// OpenInput implements [audio.InputDevice].
func (d *InputDevice) OpenInput(format audio.Format, frameSamples int) (audio.InputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.open++
	return &inputStream{dev: d, size: frameSamples * max(format.Channels, 1)}, nil
}

// OpenCalls returns the number of OpenInput invocations, including failed ones.
func (d *InputDevice) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

// CloseCalls returns the number of streams closed.
func (d *InputDevice) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// OpenStreams returns the number of streams currently open.
func (d *InputDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Reads returns the total number of frames served.
func (d *InputDevice) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Append adds frames to the end of the script.
func (d *InputDevice) Append(frames ...[]int16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Frames = append(d.Frames, frames...)
}

type inputStream struct {
	dev    *InputDevice
	size   int
	closed bool
}

func (s *inputStream) ReadFrame() ([]int16, error) {
	d := s.dev
	d.mu.Lock()
	delay := d.ReadDelay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return nil, audio.ErrStreamClosed
	}
	d.reads++
	if d.cursor < len(d.Frames) {
		f := d.Frames[d.cursor]
		d.cursor++
		out := make([]int16, len(f))
		copy(out, f)
		return out, nil
	}
	if d.ReadErr != nil {
		return nil, d.ReadErr
	}
	return make([]int16, s.size), nil
}

func (s *inputStream) Close() error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	d.open--
	d.closeCalls++
	return nil
}

// ─── OutputDevice ────────────────────────────────────────────────────────────

// OutputDevice is a mock speaker that records every block written.
type OutputDevice struct {
	mu sync.Mutex

	// OpenErr is returned by OpenOutput when non-nil.
	OpenErr error

	// WriteErr is returned by every WriteBlock when non-nil.
	WriteErr error

	// WriteDelay is slept inside every WriteBlock, simulating device pacing.
	WriteDelay time.Duration

	openCalls  int
	closeCalls int
	open       int
	formats    []audio.Format
	blocks     [][]int16
}

// OpenOutput implements [audio.OutputDevice].
func (d *OutputDevice) OpenOutput(format audio.Format, blockFrames int) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openCalls++
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.open++
	d.formats = append(d.formats, format)
	return &outputStream{dev: d, size: blockFrames * max(format.Channels, 1)}, nil
}

// OpenCalls returns the number of OpenOutput invocations.
func (d *OutputDevice) OpenCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.openCalls
}

// OpenStreams returns the number of streams currently open.
func (d *OutputDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Blocks returns a copy of every block written so far.
func (d *OutputDevice) Blocks() [][]int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]int16, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Formats returns the formats passed to each successful OpenOutput.
func (d *OutputDevice) Formats() []audio.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]audio.Format, len(d.formats))
	copy(out, d.formats)
	return out
}

type outputStream struct {
	dev    *OutputDevice
	size   int
	closed bool
}

func (s *outputStream) WriteBlock(samples []int16) error {
	d := s.dev
	d.mu.Lock()
	delay := d.WriteDelay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	if d.WriteErr != nil {
		return d.WriteErr
	}
	block := make([]int16, s.size)
	copy(block, samples)
	d.blocks = append(d.blocks, block)
	return nil
}

func (s *outputStream) Close() error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	d.open--
	d.closeCalls++
	return nil
}
