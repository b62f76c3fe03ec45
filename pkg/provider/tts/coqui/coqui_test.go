package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bemo-assistant/bemo/pkg/audio"
)

// ---- test helpers ----

// testWAV returns a valid mono 16 kHz WAV holding n samples of value v.
func testWAV(n int, v int16) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return audio.EncodeWAV(samples, audio.Format{SampleRate: 16000, Channels: 1})
}

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:5002")
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("with options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002",
			WithLanguage("de"),
			WithTimeout(5*time.Second),
			WithAPIMode(APIModeXTTS),
			WithSpeaker("Ana Florence"),
		)
		if p.language != "de" {
			t.Errorf("language = %q, want %q", p.language, "de")
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, 5*time.Second)
		}
	})

	errCases := []struct {
		name string
		url  string
		opts []Option
	}{
		{name: "empty URL", url: ""},
		{name: "xtts without speaker", url: "http://x", opts: []Option{WithAPIMode(APIModeXTTS)}},
		{name: "unknown mode", url: "http://x", opts: []Option{WithAPIMode("bogus")}},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.url, tc.opts...); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

// ---- Synthesize ----

func TestSynthesize_StandardAPI(t *testing.T) {
	t.Parallel()

	wav := testWAV(160, 0x333)
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		got = r
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	tmp := t.TempDir()
	p := mustNew(t, srv.URL, WithSpeaker("p225"), WithTempDir(tmp))

	path, err := p.Synthesize(context.Background(), "Hello world.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer os.Remove(path)

	clip, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if clip.Frames() != 160 || clip.Samples[0] != 0x333 {
		t.Errorf("clip = %d frames, first %d; want 160 frames of 0x333", clip.Frames(), clip.Samples[0])
	}

	if got == nil {
		t.Fatal("server received no request")
	}
	q := got.URL.Query()
	if v := q.Get("text"); v != "Hello world." {
		t.Errorf("text = %q, want %q", v, "Hello world.")
	}
	if v := q.Get("speaker_id"); v != "p225" {
		t.Errorf("speaker_id = %q, want %q", v, "p225")
	}
	if v := q.Get("language_id"); v != "en" {
		t.Errorf("language_id = %q, want %q", v, "en")
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	var body ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(testWAV(32, 1))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("bemo.wav"), WithLanguage("en"), WithTempDir(t.TempDir()))
	path, err := p.Synthesize(context.Background(), "Beep boop!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer os.Remove(path)

	want := ttsRequest{Text: "Beep boop!", SpeakerWav: "bemo.wav", Language: "en"}
	if body != want {
		t.Errorf("request = %+v, want %+v", body, want)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "not a wav",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("definitely not audio"))
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			tmp := t.TempDir()
			p := mustNew(t, srv.URL, WithTempDir(tmp))
			if _, err := p.Synthesize(context.Background(), "hi"); err == nil {
				t.Fatal("expected error")
			}
			if left, _ := os.ReadDir(tmp); len(left) != 0 {
				t.Errorf("temp dir holds %d files after failure, want 0", len(left))
			}
		})
	}
}

func TestSynthesize_ContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := mustNew(t, srv.URL, WithTempDir(t.TempDir()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := p.Synthesize(ctx, "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	p := mustNew(t, "http://localhost:5002")
	if _, err := p.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

// ---- Available ----

func TestAvailable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     APIMode
		status   int
		wantPath string
		wantErr  bool
	}{
		{name: "standard ok", mode: APIModeStandard, status: http.StatusOK, wantPath: detailsEndpoint},
		{name: "xtts ok", mode: APIModeXTTS, status: http.StatusOK, wantPath: studioSpeakersEndpoint},
		{name: "server down", mode: APIModeStandard, status: http.StatusServiceUnavailable, wantPath: detailsEndpoint, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var path string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("{}"))
			}))
			defer srv.Close()

			p := mustNew(t, srv.URL, WithAPIMode(tc.mode), WithSpeaker("s"))
			err := p.Available(context.Background())
			if (err != nil) != tc.wantErr {
				t.Fatalf("Available = %v, wantErr %v", err, tc.wantErr)
			}
			if path != tc.wantPath {
				t.Errorf("checked %q, want %q", path, tc.wantPath)
			}
		})
	}
}

func TestAvailable_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if err := mustNew(t, url).Available(context.Background()); err == nil {
		t.Fatal("expected error for closed server")
	}
}
