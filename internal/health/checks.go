package health

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// User-facing warnings for the built-in checks.
const (
	WarnInference   = "Ollama is not reachable. Start 'ollama serve'."
	WarnSynthesizer = "Piper TTS not found. Install Piper or set TTS voice path in Settings."
	WarnTranscriber = "Speech recognition is unavailable. Check the whisper model in Settings."
	WarnModel       = "The selected model is not installed. Run 'ollama pull' or pick another model in Settings."
)

// ModelLister is the inference check: a backend that can list its models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Availability reports whether a backend is configured well enough to be used.
type Availability interface {
	Available(ctx context.Context) error
}

// AvailabilityFunc adapts a plain function to [Availability].
type AvailabilityFunc func(ctx context.Context) error

// Available calls f(ctx).
func (f AvailabilityFunc) Available(ctx context.Context) error { return f(ctx) }

// Inference checks that the language model backend answers a list-models
// request.
func Inference(l ModelLister) Checker {
	return Checker{
		Name:    "llm",
		Warning: WarnInference,
		Check: func(ctx context.Context) error {
			_, err := l.ListModels(ctx)
			return err
		},
	}
}

// Model checks that model is among the models the backend serves. A backend
// that lists nothing is assumed to pull on demand.
func Model(l ModelLister, model func() string) Checker {
	return Checker{
		Name:    "model",
		Warning: WarnModel,
		Check: func(ctx context.Context) error {
			models, err := l.ListModels(ctx)
			if err != nil {
				return err
			}
			name := model()
			if len(models) == 0 || hasModel(models, name) {
				return nil
			}
			return fmt.Errorf("health: model %q not installed", name)
		},
	}
}

// hasModel matches Ollama's implicit ":latest" tag.
func hasModel(models []string, name string) bool {
	if slices.Contains(models, name) {
		return true
	}
	if !strings.Contains(name, ":") {
		return slices.Contains(models, name+":latest")
	}
	return false
}

// Synthesizer checks the text-to-speech backend.
func Synthesizer(p Availability) Checker {
	return Checker{Name: "tts", Warning: WarnSynthesizer, Check: p.Available}
}

// Transcriber checks the speech recognition backend.
func Transcriber(p Availability) Checker {
	return Checker{Name: "stt", Warning: WarnTranscriber, Check: p.Available}
}

// Verification is the result of [VerifyInference].
type Verification struct {
	OK      bool     `json:"ok"`
	Models  []string `json:"models"`
	Message string   `json:"message"`
}

// VerifyInference checks the backend for the settings form and summarises the
// result in one line, listing up to five model names.
func VerifyInference(ctx context.Context, l ModelLister) Verification {
	models, err := l.ListModels(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return Verification{Message: "Verification cancelled."}
		}
		return Verification{Message: "Ollama not reachable. Start 'ollama serve'."}
	}
	if len(models) == 0 {
		return Verification{OK: true, Models: []string{}, Message: "Ollama OK. No models listed yet."}
	}
	preview := models[:min(5, len(models))]
	return Verification{
		OK:      true,
		Models:  models,
		Message: fmt.Sprintf("Ollama OK. %d models. %s", len(models), strings.Join(preview, ", ")),
	}
}
