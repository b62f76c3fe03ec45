// Package whispercli implements stt.Provider by shelling out to the
// whisper.cpp command-line binary (whisper-cli, formerly "main").
//
// Each call writes the utterance to a temporary WAV file, runs
//
//	<exe> -m <model> -f <wav> -otxt -nt -l <lang>
//
// and reads the transcript from <wav>.txt. Both files are removed before
// Transcribe returns.
package whispercli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/stt/whisper"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModelDir sets the directory searched for ggml model files.
// Defaults to "models/whisper".
func WithModelDir(dir string) Option {
	return func(p *Provider) { p.modelDir = dir }
}

// WithLanguage sets the default language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithDefaultModel sets the model used when a request does not name one.
// Defaults to "small.en".
func WithDefaultModel(name string) Option {
	return func(p *Provider) { p.defaultModel = name }
}

// WithTempDir sets where temporary WAV files are written. Defaults to
// os.TempDir().
func WithTempDir(dir string) Option {
	return func(p *Provider) { p.tempDir = dir }
}

// Provider runs the whisper.cpp CLI once per utterance.
type Provider struct {
	exe          string
	modelDir     string
	defaultModel string
	language     string
	tempDir      string
}

// New creates a Provider that runs exe. exe may be a bare command name to be
// resolved on PATH.
func New(exe string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(exe) == "" {
		return nil, errors.New("whispercli: executable must not be empty")
	}
	p := &Provider{
		exe:          exe,
		modelDir:     filepath.Join("models", "whisper"),
		defaultModel: "small.en",
		language:     "en",
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Available reports whether the executable can be found.
func (p *Provider) Available() error {
	if _, err := exec.LookPath(p.exe); err != nil {
		return fmt.Errorf("whispercli: %w", err)
	}
	return nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, samples []int16, req stt.Request) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	rate := req.SampleRate
	if rate == 0 {
		rate = 16000
	}
	if rate != 16000 {
		return "", fmt.Errorf("whispercli: %w: %d Hz (want 16000)", stt.ErrUnsupportedRate, rate)
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	f, err := os.CreateTemp(p.tempDir, "bemo-stt-*.wav")
	if err != nil {
		return "", fmt.Errorf("whispercli: create temp wav: %w", err)
	}
	wavPath := f.Name()
	txtPath := wavPath + ".txt"
	defer func() {
		_ = os.Remove(wavPath)
		_ = os.Remove(txtPath)
	}()

	_, werr := f.Write(audio.EncodeWAV(samples, audio.Format{SampleRate: rate, Channels: 1}))
	if err := errors.Join(werr, f.Close()); err != nil {
		return "", fmt.Errorf("whispercli: write temp wav: %w", err)
	}

	args := []string{
		"-m", whisper.ResolveModelPath(p.modelDir, model),
		"-f", wavPath,
		"-otxt", "-nt",
		"-l", lang,
	}
	cmd := exec.CommandContext(ctx, p.exe, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("whispercli: run %s: %w: %s", filepath.Base(p.exe), err, lastLine(stderr.String()))
	}

	out, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("whispercli: read transcript: %w", err)
	}
	return strings.Join(strings.Fields(string(out)), " "), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
