package wsscorer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/bemo-assistant/bemo/pkg/provider/wake"
	"github.com/bemo-assistant/bemo/pkg/provider/wake/wsscorer"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startScorer serves a classifier that answers every binary frame with the
// next entry of replies.
func startScorer(t *testing.T, replies []string, query *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if query != nil {
			query.Store(r.URL.RawQuery)
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for _, reply := range replies {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ != websocket.MessageBinary || len(data) == 0 {
				return
			}
			if err := conn.Write(r.Context(), websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
		_, _, _ = conn.Read(r.Context())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func scores(m map[string]float64) string {
	b, _ := json.Marshal(map[string]any{"scores": m})
	return string(b)
}

func TestScore_ReturnsMaxOverModels(t *testing.T) {
	t.Parallel()

	var query atomic.Value
	srv := startScorer(t, []string{
		scores(map[string]float64{"hey_bemo": 0.1, "alexa": 0.05}),
		scores(map[string]float64{"hey_bemo": 0.92, "alexa": 0.3}),
	}, &query)

	sc, err := wsscorer.New(wsURL(srv))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := sc.NewSession(ctx, wake.Config{SampleRate: 16000, Model: "hey_bemo"})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	frame := make([]int16, wake.DefaultFrameSamples)
	want := []float64{0.1, 0.92}
	for i, w := range want {
		got, err := sess.Score(ctx, frame)
		if err != nil {
			t.Fatalf("Score #%d: %v", i, err)
		}
		if got != w {
			t.Errorf("Score #%d = %v, want %v", i, got, w)
		}
	}

	q, _ := query.Load().(string)
	if !strings.Contains(q, "sample_rate=16000") || !strings.Contains(q, "model=hey_bemo") {
		t.Errorf("query = %q, want sample_rate and model", q)
	}
}

func TestScore_ServerError(t *testing.T) {
	t.Parallel()

	srv := startScorer(t, []string{`{"error":"model not loaded"}`}, nil)
	sc, _ := wsscorer.New(wsURL(srv))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := sc.NewSession(ctx, wake.Config{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer sess.Close()

	if _, err := sess.Score(ctx, make([]int16, 160)); err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v, want server error", err)
	}
}

func TestScore_AfterClose(t *testing.T) {
	t.Parallel()

	srv := startScorer(t, nil, nil)
	sc, _ := wsscorer.New(wsURL(srv))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sess, err := sc.NewSession(ctx, wake.Config{})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := sess.Score(ctx, make([]int16, 160)); err == nil {
		t.Fatal("expected error after Close")
	}
}

func TestNew_RejectsNonWebSocketScheme(t *testing.T) {
	t.Parallel()
	if _, err := wsscorer.New("http://localhost:9000"); err == nil {
		t.Fatal("expected error for http scheme")
	}
}
