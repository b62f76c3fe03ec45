// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings.
// Models are loaded lazily on first use and kept until Close, one per
// resolved model file, so the wake gate (tiny model) and dictation (small
// model) each pay the load cost once.
type NativeProvider struct {
	modelDir     string
	defaultModel string
	language     string

	// loadModel is swapped in tests.
	loadModel func(path string) (whisperlib.Model, error)

	mu     sync.Mutex
	models map[string]whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code used when a request does not
// name one. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeModelDir sets the directory searched for ggml model files.
// Defaults to "models/whisper".
func WithNativeModelDir(dir string) NativeOption {
	return func(p *NativeProvider) { p.modelDir = dir }
}

// NewNative creates a NativeProvider whose default model is defaultModel,
// given either as a name ("small.en") or a path to a ggml .bin file. The
// default model is loaded eagerly so configuration errors surface at startup.
func NewNative(defaultModel string, opts ...NativeOption) (*NativeProvider, error) {
	if defaultModel == "" {
		return nil, errors.New("whisper: default model must not be empty")
	}
	p := &NativeProvider{
		modelDir:     filepath.Join("models", "whisper"),
		defaultModel: defaultModel,
		language:     defaultLanguage,
		loadModel:    whisperlib.New,
		models:       make(map[string]whisperlib.Model),
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := p.model(defaultModel); err != nil {
		return nil, err
	}
	return p, nil
}

// ResolveModelPath maps a model name to a file path. Values that already
// point at an existing file are returned unchanged; otherwise the name is
// looked up as dir/ggml-<name>.bin.
func ResolveModelPath(dir, name string) string {
	if strings.ContainsRune(name, os.PathSeparator) || strings.HasSuffix(name, ".bin") {
		return name
	}
	if _, err := os.Stat(name); err == nil {
		return name
	}
	return filepath.Join(dir, "ggml-"+name+".bin")
}

// model returns the cached model for name, loading it on first use.
func (p *NativeProvider) model(name string) (whisperlib.Model, error) {
	path := ResolveModelPath(p.modelDir, name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.models[path]; ok {
		return m, nil
	}
	m, err := p.loadModel(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	slog.Info("whisper: model loaded", "model", name, "path", path)
	p.models[path] = m
	return m, nil
}

// Close releases every loaded model.
func (p *NativeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for path, m := range p.models {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("whisper: close %q: %w", path, err))
		}
		delete(p.models, path)
	}
	return errors.Join(errs...)
}

// Transcribe runs whisper.cpp inference on samples using a fresh context
// from the requested model. Inference itself cannot be interrupted; ctx is
// checked before and after.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []int16, req stt.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", nil
	}
	if req.SampleRate != 0 && req.SampleRate != defaultSampleRate {
		return "", fmt.Errorf("whisper: %w: %d Hz (want %d)", stt.ErrUnsupportedRate, req.SampleRate, defaultSampleRate)
	}

	name := req.Model
	if name == "" {
		name = p.defaultModel
	}
	m, err := p.model(name)
	if err != nil {
		return "", err
	}

	// Contexts are not thread-safe; the model is.
	wctx, err := m.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(audio.SamplesToFloat32(samples), nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return strings.Join(parts, " "), nil
}
