package whisper_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyModel_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative(""); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.NewNative("/nonexistent/path/to/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestResolveModelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, dir, model, want string
	}{
		{name: "bare name", dir: "models/whisper", model: "small.en", want: filepath.Join("models/whisper", "ggml-small.en.bin")},
		{name: "tiny", dir: "/opt/w", model: "tiny.en", want: filepath.Join("/opt/w", "ggml-tiny.en.bin")},
		{name: "explicit file", dir: "models", model: "custom.bin", want: "custom.bin"},
		{name: "path", dir: "models", model: "/abs/ggml-base.bin", want: "/abs/ggml-base.bin"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := whisper.ResolveModelPath(tc.dir, tc.model); got != tc.want {
				t.Errorf("ResolveModelPath(%q, %q) = %q, want %q", tc.dir, tc.model, got, tc.want)
			}
		})
	}
}

func TestNativeTranscribe_Silence(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	if _, err := p.Transcribe(context.Background(), make([]int16, 16000), stt.Request{SampleRate: 16000}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
}

func TestNativeTranscribe_RejectsOtherRates(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	if _, err := p.Transcribe(context.Background(), make([]int16, 100), stt.Request{SampleRate: 44100}); err == nil {
		t.Fatal("expected error for 44.1 kHz input")
	}
}
