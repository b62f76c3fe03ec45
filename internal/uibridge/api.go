package uibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bemo-assistant/bemo/internal/health"
)

const (
	// maxSnapshotBytes bounds one uploaded camera still.
	maxSnapshotBytes = 10 << 20

	modelsTimeout  = 4 * time.Second
	sttTestTimeout = 30 * time.Second
)

// NoSpeech is the STT self-test result when nothing was recognised.
const NoSpeech = "(no speech detected)"

type stateResponse struct {
	State    string           `json:"state"`
	Settings settingsResponse `json:"settings"`
}

type settingsResponse struct {
	SystemPrompt  string  `json:"system_prompt"`
	Model         string  `json:"model"`
	Temperature   float64 `json:"temperature"`
	HistoryWindow int     `json:"history_window"`
	STTModel      string  `json:"stt_model"`
	Language      string  `json:"language"`
	WakePhrase    string  `json:"wake_phrase"`
	CameraEnabled bool    `json:"camera_enabled"`
}

type gameResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type sttTestResponse struct {
	OK   bool   `json:"ok"`
	Text string `json:"text"`
}

func (b *Bridge) handleState(w http.ResponseWriter, _ *http.Request) {
	ctrl := b.controller()
	if ctrl == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "assistant is starting"})
		return
	}
	s := ctrl.Settings()
	writeJSON(w, http.StatusOK, stateResponse{
		State: ctrl.State().String(),
		Settings: settingsResponse{
			SystemPrompt:  s.SystemPrompt,
			Model:         s.Model,
			Temperature:   s.Temperature,
			HistoryWindow: s.HistoryWindow,
			STTModel:      s.STTModel,
			Language:      s.Language,
			WakePhrase:    s.WakePhrase,
			CameraEnabled: s.CameraEnabled,
		},
	})
}

func (b *Bridge) handleModels(w http.ResponseWriter, r *http.Request) {
	if b.models == nil {
		writeJSON(w, http.StatusOK, health.Verification{Models: []string{}, Message: "Verify function not available."})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), modelsTimeout)
	defer cancel()
	writeJSON(w, http.StatusOK, health.VerifyInference(ctx, b.models))
}

func (b *Bridge) handleGames(w http.ResponseWriter, _ *http.Request) {
	out := []gameResponse{}
	if b.games != nil {
		for _, e := range b.games.Entries() {
			out = append(out, gameResponse{Key: e.Key, Label: e.Label})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Bridge) handleSTTTest(w http.ResponseWriter, r *http.Request) {
	if b.sttTest == nil {
		writeJSON(w, http.StatusNotImplemented, sttTestResponse{Text: "STT test not available."})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), sttTestTimeout)
	defer cancel()
	text, err := b.sttTest(ctx)
	if err != nil {
		slog.Warn("uibridge: stt self-test", "err", err)
		writeJSON(w, http.StatusOK, sttTestResponse{Text: err.Error()})
		return
	}
	if text = strings.TrimSpace(text); text == "" {
		text = NoSpeech
	}
	writeJSON(w, http.StatusOK, sttTestResponse{OK: true, Text: text})
}

func (b *Bridge) handleCamera(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSnapshotBytes))
	if err != nil {
		http.Error(w, "snapshot too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}
	ext, ok := imageExt(http.DetectContentType(data))
	if !ok {
		http.Error(w, "snapshot must be a JPEG or PNG image", http.StatusUnsupportedMediaType)
		return
	}
	if err := b.storeSnapshot(data, ext); err != nil {
		slog.Warn("uibridge: store snapshot", "err", err)
		http.Error(w, "could not store snapshot", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func imageExt(contentType string) (string, bool) {
	switch contentType {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	}
	return "", false
}

func (b *Bridge) storeSnapshot(data []byte, ext string) error {
	f, err := os.CreateTemp(b.snapshotDir, "bemo-camera-*"+ext)
	if err != nil {
		return fmt.Errorf("uibridge: create snapshot: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("uibridge: write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("uibridge: write snapshot: %w", err)
	}

	b.mu.Lock()
	prev := b.snapshot
	b.snapshot = f.Name()
	b.mu.Unlock()
	if prev != "" {
		os.Remove(prev)
	}
	return nil
}

// Snapshot returns the path of the last uploaded camera still.
func (b *Bridge) Snapshot(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	path := b.snapshot
	b.mu.Unlock()
	if path == "" {
		return "", ErrNoSnapshot
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoSnapshot
		}
		return "", fmt.Errorf("uibridge: snapshot: %w", err)
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("uibridge: write response", "err", err)
	}
}
