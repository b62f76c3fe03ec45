// Package portaudio implements [audio.InputDevice] and [audio.OutputDevice] on
// top of PortAudio using its blocking read/write API.
//
// [Initialize] must be called once before any stream is opened and [Terminate]
// once at shutdown. Devices are selected by name; an empty name selects the
// host's default device.
package portaudio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice  = (*Device)(nil)
	_ audio.OutputDevice = (*Device)(nil)
)

// Initialize initialises the PortAudio library.
func Initialize() error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio library.
func Terminate() error {
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

// DeviceNames lists the names of all devices that can capture (input true) or
// play (input false).
func DeviceNames(input bool) ([]string, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var names []string
	for _, d := range devs {
		if (input && d.MaxInputChannels > 0) || (!input && d.MaxOutputChannels > 0) {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Device is a named PortAudio device usable for capture, playback, or both.
type Device struct {
	name string
}

// New returns a Device that resolves name at open time. Matching is
// case-insensitive and accepts a substring. An empty name selects the default
// device.
func New(name string) *Device {
	return &Device{name: strings.TrimSpace(name)}
}

// OpenInput implements [audio.InputDevice].
func (d *Device) OpenInput(format audio.Format, frameSamples int) (audio.InputStream, error) {
	info, err := d.lookup(true)
	if err != nil {
		return nil, err
	}
	params := pa.LowLatencyParameters(info, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = frameSamples

	buf := make([]int16, frameSamples*format.Channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input %q: %w: %w", info.Name, types.ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input %q: %w: %w", info.Name, types.ErrDevice, err)
	}
	return &inputStream{stream: stream, buf: buf}, nil
}

// OpenOutput implements [audio.OutputDevice].
func (d *Device) OpenOutput(format audio.Format, blockFrames int) (audio.OutputStream, error) {
	info, err := d.lookup(false)
	if err != nil {
		return nil, err
	}
	params := pa.LowLatencyParameters(nil, info)
	params.Output.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = blockFrames

	buf := make([]int16, blockFrames*format.Channels)
	stream, err := pa.OpenStream(params, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output %q: %w: %w", info.Name, types.ErrDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output %q: %w: %w", info.Name, types.ErrDevice, err)
	}
	return &outputStream{stream: stream, buf: buf}, nil
}

// lookup resolves the configured name to a PortAudio device.
func (d *Device) lookup(input bool) (*pa.DeviceInfo, error) {
	if d.name == "" {
		var (
			info *pa.DeviceInfo
			err  error
		)
		if input {
			info, err = pa.DefaultInputDevice()
		} else {
			info, err = pa.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("portaudio: default device: %w: %w", types.ErrDevice, err)
		}
		return info, nil
	}

	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w: %w", types.ErrDevice, err)
	}
	want := strings.ToLower(d.name)
	var partial *pa.DeviceInfo
	for _, info := range devs {
		if input && info.MaxInputChannels == 0 || !input && info.MaxOutputChannels == 0 {
			continue
		}
		name := strings.ToLower(info.Name)
		if name == want {
			return info, nil
		}
		if partial == nil && strings.Contains(name, want) {
			partial = info
		}
	}
	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("portaudio: no device matching %q: %w", d.name, types.ErrDevice)
}

type inputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []int16
	closed bool
}

func (s *inputStream) ReadFrame() ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, audio.ErrStreamClosed
	}
	// Overflow only means samples were dropped; the frame is still usable.
	if err := s.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return nil, fmt.Errorf("portaudio: read: %w: %w", types.ErrDevice, err)
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("portaudio: close input: %w", err)
	}
	return nil
}

type outputStream struct {
	mu     sync.Mutex
	stream *pa.Stream
	buf    []int16
	closed bool
}

func (s *outputStream) WriteBlock(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrStreamClosed
	}
	n := copy(s.buf, samples)
	clear(s.buf[n:])
	if err := s.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
		return fmt.Errorf("portaudio: write: %w: %w", types.ErrDevice, err)
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	if err := errors.Join(stopErr, closeErr); err != nil {
		return fmt.Errorf("portaudio: close output: %w", err)
	}
	return nil
}
