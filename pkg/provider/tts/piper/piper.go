// Package piper implements tts.Provider by shelling out to the Piper neural
// TTS command-line binary.
//
// Each call creates a temporary WAV file and runs
//
//	<exe> --model <voice.onnx> --output_file <wav> [--speaker <id>]
//
// with the text on stdin. The file is returned to the caller, who removes it
// after playback.
package piper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bemo-assistant/bemo/pkg/provider/tts"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// DefaultVoice is the voice model used when none is configured.
var DefaultVoice = filepath.Join("models", "piper", "en_US-lessac-medium.onnx")

// Errors reported by Available and Synthesize. Their text is shown to the
// user as-is.
var (
	ErrExecutableNotFound = errors.New("Piper not found in PATH or configured path")
	ErrVoiceNotFound      = errors.New("Piper voice model not found. Set a valid .onnx path in Settings.")
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithExecutable sets an explicit path to the piper binary. When the path
// does not exist the binary is looked up on PATH instead.
func WithExecutable(path string) Option {
	return func(p *Provider) { p.exe = path }
}

// WithSpeaker selects a speaker ID for multi-speaker voice models.
func WithSpeaker(id string) Option {
	return func(p *Provider) { p.speaker = id }
}

// WithTempDir sets where output WAV files are written. Defaults to
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Provider) { p.tempDir = dir }
}

// Provider runs the Piper CLI once per reply.
type Provider struct {
	voice   string
	exe     string
	speaker string
	tempDir string

	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

// New creates a Provider that speaks with the given .onnx voice model. The
// voice file is not checked here; see [Provider.Available].
func New(voice string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(voice) == "" {
		return nil, errors.New("tts/piper: voice model path must not be empty")
	}
	p := &Provider{
		voice:    voice,
		lookPath: exec.LookPath,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Available reports whether both the binary and the voice model can be found.
func (p *Provider) Available(_ context.Context) error {
	if _, err := p.resolveExe(); err != nil {
		return err
	}
	_, err := p.resolveVoice()
	return err
}

func (p *Provider) resolveExe() (string, error) {
	if p.exe != "" {
		if _, err := os.Stat(p.exe); err == nil {
			return p.exe, nil
		}
	}
	exe, err := p.lookPath("piper")
	if err != nil {
		return "", ErrExecutableNotFound
	}
	return exe, nil
}

func (p *Provider) resolveVoice() (string, error) {
	if _, err := os.Stat(p.voice); err != nil {
		return "", ErrVoiceNotFound
	}
	return p.voice, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("tts/piper: text must not be empty")
	}
	exe, err := p.resolveExe()
	if err != nil {
		return "", err
	}
	voice, err := p.resolveVoice()
	if err != nil {
		return "", err
	}

	f, err := os.CreateTemp(p.tempDir, "bemo-tts-*.wav")
	if err != nil {
		return "", fmt.Errorf("tts/piper: create temp wav: %w", err)
	}
	out := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("tts/piper: create temp wav: %w", err)
	}

	args := []string{"--model", voice, "--output_file", out}
	if p.speaker != "" {
		args = append(args, "--speaker", p.speaker)
	}
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("tts/piper: run %s: %w: %s", filepath.Base(exe), err, lastLine(stderr.String()))
	}
	return out, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
