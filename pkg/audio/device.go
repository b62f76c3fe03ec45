// Package audio defines the device abstractions and PCM helpers used by the
// capture and playback workers.
//
// The two primary abstractions are:
//
//   - [InputDevice] — opens an [InputStream] that yields fixed-size frames from
//     a microphone.
//   - [OutputDevice] — opens an [OutputStream] that accepts fixed-size blocks
//     for a speaker.
//
// Streams are exclusive resources. Callers open a stream for the duration of a
// single capture or playback and close it before returning, so at most one
// worker holds a device at any time. Concrete devices live in sub-packages
// (audio/portaudio); audio/mock provides recording fakes for tests.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// InputDevice opens capture streams on a microphone.
//
// Implementations must be safe for concurrent use, but callers are expected to
// hold at most one open stream per device.
type InputDevice interface {
	// OpenInput acquires the device and starts capturing. Every subsequent
	// [InputStream.ReadFrame] returns exactly frameSamples*format.Channels
	// interleaved samples.
	OpenInput(format Format, frameSamples int) (InputStream, error)
}

// ContextInputDevice is an [InputDevice] whose open may wait (for another
// holder, for the driver) and can be abandoned through ctx.
type ContextInputDevice interface {
	InputDevice
	OpenInputContext(ctx context.Context, format Format, frameSamples int) (InputStream, error)
}

// OpenInput opens dev under ctx. Devices that are not a
// [ContextInputDevice] are opened directly once ctx is checked. A ctx that
// ends while waiting yields ctx.Err(), never a device error.
func OpenInput(ctx context.Context, dev InputDevice, format Format, frameSamples int) (InputStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cd, ok := dev.(ContextInputDevice); ok {
		return cd.OpenInputContext(ctx, format, frameSamples)
	}
	return dev.OpenInput(format, frameSamples)
}

// InputStream is an open capture stream.
type InputStream interface {
	// ReadFrame blocks until one frame has been captured. The returned slice is
	// owned by the caller.
	ReadFrame() ([]int16, error)

	// Close stops capture and releases the device. Close is idempotent.
	Close() error
}

// OutputDevice opens playback streams on a speaker.
type OutputDevice interface {
	// OpenOutput acquires the device for playback of blocks of blockFrames
	// frames each.
	OpenOutput(format Format, blockFrames int) (OutputStream, error)
}

// OutputStream is an open playback stream.
type OutputStream interface {
	// WriteBlock blocks until the block has been handed to the device. A block
	// shorter than the configured size is padded with silence.
	WriteBlock(samples []int16) error

	// Close stops playback and releases the device. Close is idempotent.
	Close() error
}

// ErrStreamClosed is returned by stream operations after Close.
var ErrStreamClosed = errors.New("audio: stream closed")

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "16000Hz mono".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
