package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type formRecord struct {
	fields map[string]string
	wav    audio.Clip
}

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText and records each parsed form.
func newMockServer(t *testing.T, responseText string) (*httptest.Server, func() []formRecord) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []formRecord
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec := formRecord{fields: map[string]string{}}
		for k, v := range r.MultipartForm.Value {
			rec.fields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		rec.wav, err = audio.DecodeWAV(f)
		_ = f.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		seen = append(seen, rec)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []formRecord {
		mu.Lock()
		defer mu.Unlock()
		return append([]formRecord(nil), seen...)
	}
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_SendsWavAndHints(t *testing.T) {
	t.Parallel()

	srv, seen := newMockServer(t, "  what time is it \n")
	p, err := whisper.New(srv.URL+"/", whisper.WithLanguage("de"), whisper.WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	text, err := p.Transcribe(context.Background(), samples, stt.Request{SampleRate: 16000, Model: "small.en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what time is it" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}

	recs := seen()
	if len(recs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(recs))
	}
	rec := recs[0]
	if rec.fields["language"] != "de" {
		t.Errorf("language = %q, want de", rec.fields["language"])
	}
	if rec.fields["model"] != "small.en" {
		t.Errorf("model = %q, want request model to override provider default", rec.fields["model"])
	}
	if rec.wav.Format.SampleRate != 16000 || rec.wav.Format.Channels != 1 {
		t.Errorf("wav format = %v, want 16000 Hz mono", rec.wav.Format)
	}
	if len(rec.wav.Samples) != len(samples) {
		t.Errorf("wav samples = %d, want %d", len(rec.wav.Samples), len(samples))
	}
}

func TestTranscribe_EmptyAudioSkipsServer(t *testing.T) {
	t.Parallel()

	srv, seen := newMockServer(t, "ghost")
	p, _ := whisper.New(srv.URL)
	text, err := p.Transcribe(context.Background(), nil, stt.Request{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
	if n := len(seen()); n != 0 {
		t.Errorf("server saw %d requests, want 0", n)
	}
}

func TestTranscribe_ServerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "http 500",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "{not json")
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			p, _ := whisper.New(srv.URL)
			if _, err := p.Transcribe(context.Background(), make([]int16, 160), stt.Request{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Transcribe(ctx, make([]int16, 160), stt.Request{})
	if err == nil || !strings.Contains(err.Error(), "context deadline exceeded") {
		t.Fatalf("err = %v, want deadline error", err)
	}
}
