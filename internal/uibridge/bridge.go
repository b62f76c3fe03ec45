// Package uibridge connects the desktop UI to the turn controller.
//
// The UI opens a websocket on /ws. Every [turn.Notification] is broadcast to
// all connected clients as one JSON text message, and every text message a
// client sends is decoded as a [Command] and forwarded to the controller.
// A handful of plain HTTP endpoints back the settings form and the camera:
//
//	GET  /api/state          current state and settings
//	GET  /api/models         inference verification for the settings form
//	GET  /api/games          the games hub
//	POST /api/stt-test       record a few seconds and transcribe them
//	POST /api/camera         upload the latest camera still (JPEG or PNG)
//
// The bridge also implements [turn.Camera]: Snapshot returns the last still
// the UI uploaded.
package uibridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/bemo-assistant/bemo/internal/games"
	"github.com/bemo-assistant/bemo/internal/health"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/turn"
)

const (
	// clientBuffer is how many messages may queue for one client before
	// further notifications to it are dropped.
	clientBuffer = 64

	writeTimeout = 5 * time.Second

	// maxCommandBytes bounds one websocket command.
	maxCommandBytes = 64 << 10
)

// ErrNoSnapshot is returned by [Bridge.Snapshot] before the UI uploaded a
// camera still.
var ErrNoSnapshot = errors.New("uibridge: no camera snapshot available")

// Controller is the part of the turn controller the UI drives.
type Controller interface {
	Listen()
	Stop()
	Submit(text string)
	StartGame(key string)
	GameInput(text string)
	CameraRequest()
	UpdateSettings(s turn.Settings)
	Settings() turn.Settings
	State() turn.State
}

// STTTest records a short clip and returns its transcript.
type STTTest func(ctx context.Context) (string, error)

// Option is a functional option for [Bridge].
type Option func(*Bridge)

// WithModels sets the backend queried by GET /api/models.
func WithModels(l health.ModelLister) Option {
	return func(b *Bridge) { b.models = l }
}

// WithSTTTest enables POST /api/stt-test.
func WithSTTTest(f STTTest) Option {
	return func(b *Bridge) { b.sttTest = f }
}

// WithGames lists the registry's games on GET /api/games.
func WithGames(r *games.Registry) Option {
	return func(b *Bridge) { b.games = r }
}

// WithSnapshotDir sets where camera stills are stored. Default: os.TempDir().
func WithSnapshotDir(dir string) Option {
	return func(b *Bridge) { b.snapshotDir = dir }
}

// WithOriginPatterns allows cross-origin websocket clients matching the
// given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(b *Bridge) { b.origins = patterns }
}

// WithSettingsHook is called after a settings command was applied, for
// example to persist the new values.
func WithSettingsHook(f func(turn.Settings)) Option {
	return func(b *Bridge) { b.onSettings = f }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

// Bridge is the UI surface. It is safe for concurrent use.
type Bridge struct {
	ctrl        Controller
	models      health.ModelLister
	sttTest     STTTest
	games       *games.Registry
	snapshotDir string
	origins     []string
	onSettings  func(turn.Settings)
	metrics     *observe.Metrics

	mu       sync.Mutex
	clients  map[*client]struct{}
	snapshot string
	closed   bool
}

var (
	_ turn.Notifier = (*Bridge)(nil)
	_ turn.Camera   = (*Bridge)(nil)
)

// New creates a Bridge. Call [Bridge.Bind] before serving when the
// controller is created after the bridge.
func New(ctrl Controller, opts ...Option) *Bridge {
	b := &Bridge{
		ctrl:        ctrl,
		snapshotDir: os.TempDir(),
		clients:     make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Bind sets the controller. The controller needs the bridge as its notifier
// and camera, so the app creates the bridge first and binds it afterwards.
func (b *Bridge) Bind(ctrl Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctrl = ctrl
}

func (b *Bridge) controller() Controller {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctrl
}

// Register adds the websocket and API routes to mux.
func (b *Bridge) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", b.serveWS)
	mux.HandleFunc("GET /api/state", b.handleState)
	mux.HandleFunc("GET /api/models", b.handleModels)
	mux.HandleFunc("GET /api/games", b.handleGames)
	mux.HandleFunc("POST /api/stt-test", b.handleSTTTest)
	mux.HandleFunc("POST /api/camera", b.handleCamera)
}

// Notify broadcasts n to every client. It never blocks: a client whose queue
// is full misses the message.
func (b *Bridge) Notify(n turn.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		slog.Warn("uibridge: encode notification", "kind", n.Kind, "err", err)
		return
	}
	b.broadcast(data)
}

func (b *Bridge) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			c.dropped++
			if c.dropped == 1 {
				slog.Warn("uibridge: client is slow, dropping notifications")
			}
		}
	}
}

// Clients returns the number of connected websocket clients.
func (b *Bridge) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client and removes the stored camera still.
func (b *Bridge) Close() error {
	b.mu.Lock()
	b.closed = true
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	snap := b.snapshot
	b.snapshot = ""
	b.mu.Unlock()

	for _, c := range clients {
		c.conn.Close(websocket.StatusGoingAway, "assistant shutting down")
	}
	if snap != "" {
		if err := os.Remove(snap); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("uibridge: remove snapshot: %w", err)
		}
	}
	return nil
}

// ─── websocket ────────────────────────────────────────────────────────────

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	dropped int
}

func (b *Bridge) add(c *client) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.clients[c] = struct{}{}
	return true
}

func (b *Bridge) remove(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, c)
}

func (b *Bridge) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: b.origins})
	if err != nil {
		slog.Warn("uibridge: websocket accept", "err", err)
		return
	}
	conn.SetReadLimit(maxCommandBytes)

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if !b.add(c) {
		conn.Close(websocket.StatusGoingAway, "assistant shutting down")
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	b.metrics.UIClients.Add(ctx, 1)
	defer b.metrics.UIClients.Add(context.WithoutCancel(ctx), -1)
	defer b.remove(c)
	slog.Info("uibridge: client connected", "remote", r.RemoteAddr)

	if ctrl := b.controller(); ctrl != nil {
		hello, _ := json.Marshal(turn.Notification{Kind: turn.KindState, State: ctrl.State().String()})
		c.send <- hello
	}

	go b.writeLoop(ctx, cancel, c)
	err = b.readLoop(ctx, c)
	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
	case errors.Is(err, context.Canceled):
	default:
		slog.Debug("uibridge: client read ended", "err", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("uibridge: client disconnected", "remote", r.RemoteAddr)
}

func (b *Bridge) writeLoop(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			wcancel()
			if err != nil {
				slog.Debug("uibridge: write to client", "err", err)
				return
			}
		}
	}
}

func (b *Bridge) readLoop(ctx context.Context, c *client) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			b.reply(c, turn.Notification{Kind: turn.KindWarning, Text: "Malformed command."})
			continue
		}
		if err := b.Dispatch(cmd); err != nil {
			b.reply(c, turn.Notification{Kind: turn.KindWarning, Text: err.Error()})
		}
	}
}

func (b *Bridge) reply(c *client, n turn.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
