// Package wsscorer implements wake.Scorer against a wake-word classifier
// service reachable over a WebSocket (for example an openWakeWord sidecar).
//
// Wire protocol, one exchange per frame:
//
//	client → server: binary message, 16-bit little-endian mono PCM
//	server → client: text message, {"scores": {"<model>": 0.93, ...}}
//
// The session URL carries the sample rate and optional model name as query
// parameters. The score reported for a frame is the maximum over all models.
package wsscorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/provider/wake"
)

// Compile-time interface assertion.
var _ wake.Scorer = (*Scorer)(nil)

// Option is a functional option for [Scorer].
type Option func(*Scorer)

// WithAPIKey sends key as a bearer token during the handshake.
func WithAPIKey(key string) Option {
	return func(s *Scorer) { s.apiKey = key }
}

// WithDialTimeout bounds the handshake. Default: 5 s.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Scorer) { s.dialTimeout = d }
}

// Scorer dials one WebSocket connection per session.
type Scorer struct {
	endpoint    string
	apiKey      string
	dialTimeout time.Duration
}

// New creates a Scorer for the ws:// or wss:// endpoint.
func New(endpoint string, opts ...Option) (*Scorer, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("wsscorer: parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("wsscorer: endpoint scheme must be ws or wss, got %q", u.Scheme)
	}
	s := &Scorer{endpoint: endpoint, dialTimeout: 5 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Scorer) buildURL(cfg wake.Config) string {
	u, _ := url.Parse(s.endpoint) // validated in New
	q := u.Query()
	rate := cfg.SampleRate
	if rate == 0 {
		rate = 16000
	}
	q.Set("sample_rate", strconv.Itoa(rate))
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// NewSession implements wake.Scorer.
func (s *Scorer) NewSession(ctx context.Context, cfg wake.Config) (wake.Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	var opts *websocket.DialOptions
	if s.apiKey != "" {
		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+s.apiKey)
		opts = &websocket.DialOptions{HTTPHeader: headers}
	}
	conn, _, err := websocket.Dial(dialCtx, s.buildURL(cfg), opts)
	if err != nil {
		return nil, fmt.Errorf("wsscorer: dial: %w", err)
	}
	return &session{conn: conn}, nil
}

type scoreMessage struct {
	Scores map[string]float64 `json:"scores"`
	Error  string             `json:"error,omitempty"`
}

type session struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Score sends frame and waits for the matching score message.
func (s *session) Score(ctx context.Context, frame []int16) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.New("wsscorer: session is closed")
	}
	if err := s.conn.Write(ctx, websocket.MessageBinary, audio.SamplesToBytes(frame)); err != nil {
		return 0, fmt.Errorf("wsscorer: send frame: %w", err)
	}
	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("wsscorer: read score: %w", err)
	}
	if typ != websocket.MessageText {
		return 0, fmt.Errorf("wsscorer: unexpected %v message", typ)
	}
	var msg scoreMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return 0, fmt.Errorf("wsscorer: decode score: %w", err)
	}
	if msg.Error != "" {
		return 0, fmt.Errorf("wsscorer: server: %s", msg.Error)
	}
	var best float64
	for _, v := range msg.Scores {
		best = max(best, v)
	}
	return best, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}
