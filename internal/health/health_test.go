package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	llmmock "github.com/bemo-assistant/bemo/pkg/provider/llm/mock"
)

func pass(context.Context) error { return nil }

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	New().Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{name: "no checkers", wantStatus: http.StatusOK, wantChecks: map[string]string{}},
		{
			name:       "all pass",
			checkers:   []Checker{{Name: "llm", Check: pass}, {Name: "tts", Check: pass}},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"llm": "ok", "tts": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "llm", Check: func(context.Context) error { return errors.New("connection refused") }},
				{Name: "tts", Check: pass},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"llm": "fail: connection refused", "tts": "ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			New(tt.checkers...).Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body result
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode JSON: %v", err)
			}
			for name, want := range tt.wantChecks {
				if body.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, body.Checks[name], want)
				}
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: pass}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestWarnings(t *testing.T) {
	t.Parallel()
	down := &llmmock.Provider{ModelsErr: errors.New("dial tcp: connection refused")}
	h := New(
		Inference(down),
		Synthesizer(AvailabilityFunc(func(context.Context) error { return errors.New("piper: not found") })),
		Transcriber(AvailabilityFunc(pass)),
		Checker{Name: "custom", Check: func(context.Context) error { return errors.New("custom broke") }},
	)
	got := h.Warnings(context.Background())
	want := []string{WarnInference, WarnSynthesizer, "custom broke"}
	if !slices.Equal(got, want) {
		t.Errorf("Warnings = %q, want %q", got, want)
	}
}

func TestModel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		models  []string
		model   string
		wantErr bool
	}{
		{name: "exact", models: []string{"tinyllama:chat", "llava:latest"}, model: "tinyllama:chat"},
		{name: "implicit latest", models: []string{"llava:latest"}, model: "llava"},
		{name: "empty list", models: nil, model: "anything"},
		{name: "missing", models: []string{"llava:latest"}, model: "tinyllama:chat", wantErr: true},
		{name: "tag mismatch", models: []string{"llava:13b"}, model: "llava", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Model(&llmmock.Provider{Models: tt.models}, func() string { return tt.model })
			if err := c.Check(context.Background()); (err != nil) != tt.wantErr {
				t.Errorf("Check = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifyInference(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		provider *llmmock.Provider
		want     Verification
	}{
		{
			name:     "unreachable",
			provider: &llmmock.Provider{ModelsErr: errors.New("refused")},
			want:     Verification{Message: "Ollama not reachable. Start 'ollama serve'."},
		},
		{
			name:     "no models",
			provider: &llmmock.Provider{},
			want:     Verification{OK: true, Models: []string{}, Message: "Ollama OK. No models listed yet."},
		},
		{
			name:     "preview of five",
			provider: &llmmock.Provider{Models: []string{"a", "b", "c", "d", "e", "f"}},
			want:     Verification{OK: true, Models: []string{"a", "b", "c", "d", "e", "f"}, Message: "Ollama OK. 6 models. a, b, c, d, e"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := VerifyInference(context.Background(), tt.provider)
			if got.OK != tt.want.OK || got.Message != tt.want.Message || !slices.Equal(got.Models, tt.want.Models) {
				t.Errorf("VerifyInference = %+v, want %+v", got, tt.want)
			}
		})
	}
}
