// Package turn implements the turn controller: the state machine that
// sequences wake, capture, transcription, inference or game replies,
// playback and barge-in for one conversation.
//
// A single control goroutine ([Controller.Run]) owns the state and every
// transition. Each long operation runs in its own goroutine under its own
// context and reports back through an event channel. Every worker start
// takes a fresh generation number; events carrying an outdated generation
// are dropped, so a worker that finishes after it was cancelled cannot move
// the state machine.
//
//	Idle --(wake | Listen)--> Listening --(text)--> Thinking --(final)--> Speaking --> Idle
//	                                      \-(game)------------------------/
//	any --(Stop | barge-in)--> Idle
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bemo-assistant/bemo/internal/games"
	"github.com/bemo-assistant/bemo/internal/inference"
	"github.com/bemo-assistant/bemo/internal/intent"
	"github.com/bemo-assistant/bemo/internal/normalize"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/phrase"
	"github.com/bemo-assistant/bemo/internal/playback"
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/session"
	"github.com/bemo-assistant/bemo/internal/transcribe"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// Reply texts and warnings shown to the user.
const (
	MsgTTSUnavailable = "TTS unavailable. Set a valid Piper executable and voice in Settings."
	MsgCameraDisabled = "Camera is disabled in Settings."
	MsgCameraNoAccess = "I can't access the camera right now."

	prefixListenError = "Listen error: "
	prefixLLMError    = "LLM error: "
	prefixTTSError    = "TTS error: "
	prefixVisionError = "Vision error: "
)

const (
	defaultShutdown     = 2 * time.Second
	defaultCheckTimeout = 5 * time.Second
)

// Turn outcomes recorded in metrics.
const (
	outcomeReply    = "reply"
	outcomeGame     = "game"
	outcomeVision   = "vision"
	outcomeNoSpeech = "no_speech"
	outcomeStopped  = "stopped"
	outcomeBargeIn  = "barge_in"
	outcomeError    = "error"
)

// Capturer records one utterance. *capture.Worker satisfies it.
type Capturer interface {
	Capture(ctx context.Context, c segmenter.Constraints) (types.Utterance, error)
}

// Transcriber turns an utterance into text. *transcribe.Gateway satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, u types.Utterance, opts transcribe.Options) (string, error)
}

// Streamer streams a reply. *inference.Worker satisfies it.
type Streamer interface {
	Stream(ctx context.Context, req inference.Request) <-chan inference.Event
}

// Speaker synthesizes and plays a reply. *playback.Worker satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string, onLevel playback.LevelFunc) error
	Available(ctx context.Context) error
}

// BargeIn listens for "stop" while a reply plays. *bargein.Monitor
// satisfies it.
type BargeIn interface {
	Run(ctx context.Context, language string, onStop func()) error
}

// WakeGate is paused while the controller owns the microphone.
// *wake.Gate satisfies it.
type WakeGate interface {
	Pause()
	Resume()
}

// Camera returns the path of a recent still image.
type Camera interface {
	Snapshot(ctx context.Context) (string, error)
}

// Config holds the collaborators of a [Controller]. Capture, Transcriber,
// Inference, Speaker, BargeIn and Games are required.
type Config struct {
	Capture     Capturer
	Transcriber Transcriber
	Inference   Streamer
	Speaker     Speaker
	BargeIn     BargeIn
	Games       *games.Manager

	// Wake is optional; nil means no wake gate.
	Wake WakeGate

	// Camera is optional; nil answers camera questions with a no-access
	// reply.
	Camera Camera

	// Notifier receives UI events. Optional.
	Notifier Notifier

	Settings Settings
}

// Option is a functional option for [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithIntents replaces the keyword filter. Default: intent.New().
func WithIntents(f *intent.Filter) Option {
	return func(c *Controller) { c.intents = f }
}

// WithMatcher sets the matcher used to spot wake-phrase-only transcripts.
// Default: a plain substring matcher.
func WithMatcher(m *phrase.Matcher) Option {
	return func(c *Controller) { c.matcher = m }
}

// WithShutdownTimeout bounds how long Run waits for workers on shutdown.
// Default: 2s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Controller) { c.shutdownTimeout = d }
}

// worker is the bookkeeping for one running worker goroutine.
type worker struct {
	gen    uint64
	cancel context.CancelFunc
}

// owns reports whether an event with generation gen belongs to the running
// worker.
func (w *worker) owns(gen uint64) bool { return w.cancel != nil && w.gen == gen }

func (w *worker) stop() {
	if w.cancel != nil {
		w.cancel()
	}
	*w = worker{}
}

// turnInfo describes the turn in flight.
type turnInfo struct {
	id      string
	started time.Time
	ctx     context.Context
	span    trace.Span
}

// Controller is the turn state machine. Construct it with [New] and drive it
// with [Controller.Run]; every other exported method is safe for concurrent
// use and returns immediately.
type Controller struct {
	capture     Capturer
	transcriber Transcriber
	inference   Streamer
	speaker     Speaker
	bargein     BargeIn
	games       *games.Manager
	wake        WakeGate
	camera      Camera
	notifier    Notifier

	intents         *intent.Filter
	matcher         *phrase.Matcher
	metrics         *observe.Metrics
	shutdownTimeout time.Duration

	settings atomic.Pointer[Settings]
	state    atomic.Int32
	running  atomic.Bool
	events   chan event
	done     chan struct{}
	wg       sync.WaitGroup

	history *session.History
	notes   *session.Notes

	// Owned by the control goroutine.
	ctx        context.Context
	gen        uint64
	listen     worker
	infer      worker
	speak      worker
	barge      worker
	turn       *turnInfo
	snap       Settings
	wakePaused bool
	synthErr   error
	userText   string
	vision     bool
	outcome    string
}

// New creates a Controller in the Idle state.
func New(cfg Config, opts ...Option) (*Controller, error) {
	var errs []error
	if cfg.Capture == nil {
		errs = append(errs, errors.New("capture worker must not be nil"))
	}
	if cfg.Transcriber == nil {
		errs = append(errs, errors.New("transcriber must not be nil"))
	}
	if cfg.Inference == nil {
		errs = append(errs, errors.New("inference worker must not be nil"))
	}
	if cfg.Speaker == nil {
		errs = append(errs, errors.New("speaker must not be nil"))
	}
	if cfg.BargeIn == nil {
		errs = append(errs, errors.New("barge-in monitor must not be nil"))
	}
	if cfg.Games == nil {
		errs = append(errs, errors.New("game manager must not be nil"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("turn: %w", errors.Join(errs...))
	}

	c := &Controller{
		capture:         cfg.Capture,
		transcriber:     cfg.Transcriber,
		inference:       cfg.Inference,
		speaker:         cfg.Speaker,
		bargein:         cfg.BargeIn,
		games:           cfg.Games,
		wake:            cfg.Wake,
		camera:          cfg.Camera,
		notifier:        cfg.Notifier,
		shutdownTimeout: defaultShutdown,
		events:          make(chan event, 64),
		done:            make(chan struct{}),
		history:         session.NewHistory(),
		notes:           session.NewNotes(session.DefaultBlurbNotes),
		ctx:             context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.notifier == nil {
		c.notifier = discard{}
	}
	if c.intents == nil {
		c.intents = intent.New()
	}
	if c.matcher == nil {
		c.matcher = phrase.New()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	s := cfg.Settings.withDefaults()
	c.settings.Store(&s)
	return c, nil
}

// ─── Commands ────────────────────────────────────────────────────────────────

// Listen starts a foreground listen. It is ignored unless the controller is
// Idle, so pressing talk twice starts one capture.
func (c *Controller) Listen() { c.post(event{kind: evListen}) }

// Wake is the wake gate callback. It behaves like [Controller.Listen].
func (c *Controller) Wake() { c.post(event{kind: evWake}) }

// Stop cancels every worker of the current turn and returns to Idle.
func (c *Controller) Stop() { c.post(event{kind: evStop}) }

// Submit handles typed user text as if it had been transcribed.
func (c *Controller) Submit(text string) { c.post(event{kind: evText, text: text}) }

// StartGame starts the game registered under key.
func (c *Controller) StartGame(key string) { c.post(event{kind: evStartGame, text: key}) }

// GameInput sends text to the active game. It is ignored when no game is
// active.
func (c *Controller) GameInput(text string) { c.post(event{kind: evGameInput, text: text}) }

// CameraRequest asks about the current camera image.
func (c *Controller) CameraRequest() { c.post(event{kind: evCamera}) }

// UpdateSettings replaces the settings snapshot used from the next turn on
// and re-checks the synthesizer.
func (c *Controller) UpdateSettings(s Settings) {
	s = s.withDefaults()
	c.post(event{kind: evSettings, settings: &s})
}

// State returns the current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// Settings returns the latest settings.
func (c *Controller) Settings() Settings { return *c.settings.Load() }

// Notes returns every remembered note.
func (c *Controller) Notes() []string { return c.notes.All() }

// History returns a copy of the conversation history.
func (c *Controller) History() []types.Message { return c.history.Window(0) }

func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// tryPost drops ev when the event queue is full. The playback loop uses it
// for amplitude levels, which must never hold up the next audio block.
func (c *Controller) tryPost(ev event) {
	select {
	case c.events <- ev:
	default:
	}
}

// ─── Control loop ────────────────────────────────────────────────────────────

// Run owns the state machine until ctx is cancelled. It then cancels every
// live worker and waits up to the shutdown timeout for them to exit.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("turn: controller already running")
	}
	defer close(c.done)
	c.ctx = ctx

	pctx, cancel := context.WithTimeout(ctx, defaultCheckTimeout)
	c.synthErr = c.speaker.Available(pctx)
	cancel()
	if c.synthErr != nil {
		slog.Warn("turn: synthesizer unavailable", "err", c.synthErr)
	}
	slog.Info("turn: controller started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) shutdown() {
	c.stopWorkers()
	if c.turn != nil {
		c.endTurn(outcomeStopped)
	}
	c.state.Store(int32(Idle))

	waited := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		slog.Info("turn: controller stopped")
	case <-time.After(c.shutdownTimeout):
		slog.Warn("turn: workers still running after shutdown timeout", "timeout", c.shutdownTimeout)
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evListen, evWake:
		if c.State() != Idle {
			slog.Debug("turn: listen ignored", "state", c.State(), "source", ev.kind)
			return
		}
		c.beginTurn()
		c.startListening()

	case evStop:
		if c.State() == Idle {
			return
		}
		c.stopAll(outcomeStopped)

	case evText:
		text := strings.TrimSpace(ev.text)
		if text == "" {
			return
		}
		c.beginTurn()
		c.transcript(SpeakerUser, text)
		c.handleUserText(text)

	case evStartGame:
		c.restartTurn()
		c.startGame(ev.text)

	case evGameInput:
		if !c.games.Active() {
			return
		}
		c.restartTurn()
		c.transcript(SpeakerUser, ev.text)
		c.routeGame(ev.text)

	case evCamera:
		c.restartTurn()
		if !c.snap.CameraEnabled {
			c.reply(MsgCameraDisabled, outcomeVision)
			return
		}
		c.cameraQuery("camera")

	case evSettings:
		c.settings.Store(ev.settings)
		c.recheckSynth()

	case evSynthCheck:
		c.synthErr = ev.err
		if ev.err != nil {
			slog.Warn("turn: synthesizer unavailable", "err", ev.err)
		}

	case evTranscript:
		if !c.listen.owns(ev.gen) {
			return
		}
		c.listen = worker{}
		c.resumeWake()
		c.handleTranscript(ev.text)

	case evListenError:
		if !c.listen.owns(ev.gen) {
			return
		}
		c.listen = worker{}
		c.warn(prefixListenError + ev.err.Error())
		c.idle(outcomeError)

	case evPartial:
		if c.infer.owns(ev.gen) {
			c.notify(Notification{Kind: KindPartial, Text: ev.text})
		}

	case evFinal:
		if !c.infer.owns(ev.gen) {
			return
		}
		c.infer = worker{}
		c.onFinal(ev.text)

	case evInferenceError:
		if !c.infer.owns(ev.gen) {
			return
		}
		c.infer = worker{}
		if c.vision {
			c.reply(prefixVisionError+ev.err.Error(), outcomeError)
			return
		}
		c.warn(prefixLLMError + ev.err.Error())
		c.idle(outcomeError)

	case evLevel:
		if c.speak.owns(ev.gen) {
			c.notify(Notification{Kind: KindLevel, Level: ev.level})
		}

	case evSpeechDone:
		if !c.speak.owns(ev.gen) {
			return
		}
		c.speak = worker{}
		c.barge.stop()
		c.idle(c.outcome)

	case evSpeechError:
		if !c.speak.owns(ev.gen) {
			return
		}
		c.speak = worker{}
		c.barge.stop()
		c.warn(prefixTTSError + ev.err.Error())
		c.idle(outcomeError)

	case evBargeIn:
		if !c.barge.owns(ev.gen) || c.State() != Speaking {
			return
		}
		slog.Info("turn: reply interrupted by the user", "turn_id", c.turnID())
		c.stopAll(outcomeBargeIn)
	}
}

// ─── Routing ────────────────────────────────────────────────────────────────

func (c *Controller) handleTranscript(text string) {
	if text == "" || c.matcher.Only(text, c.snap.WakePhrase) {
		c.idle(outcomeNoSpeech)
		return
	}
	c.transcript(SpeakerUser, text)
	c.handleUserText(text)
}

// handleUserText routes one user line: memory capture, then the active game,
// then game start keywords, then camera questions, then a plain stop while
// speaking, and otherwise the language model.
func (c *Controller) handleUserText(text string) {
	if note, ok := intent.Remember(text); ok && c.notes.Add(note) {
		slog.Info("turn: remembered note", "turn_id", c.turnID(), "notes", len(c.notes.All()))
	}

	if c.games.Active() {
		c.routeGame(text)
		return
	}
	if key, ok := c.intents.Game(text); ok {
		c.startGame(key)
		return
	}

	var camera, stop bool
	for _, in := range c.intents.Match(text) {
		switch in.Kind {
		case intent.Camera:
			camera = true
		case intent.Stop:
			stop = true
		}
	}
	if camera && c.snap.CameraEnabled {
		c.cameraQuery(text)
		return
	}
	if stop && c.State() == Speaking {
		c.stopAll(outcomeStopped)
		return
	}
	c.askLLM(text)
}

func (c *Controller) startGame(key string) {
	u, err := c.games.Start(key)
	if err != nil {
		slog.Warn("turn: start game", "game", key, "err", err)
		c.warn(fmt.Sprintf("Unknown game %q.", key))
		c.idle(outcomeError)
		return
	}
	c.showGame(u, true)
	c.reply(u.Text, outcomeGame)
}

func (c *Controller) routeGame(text string) {
	u, ok := c.games.HandleInput(c.turnCtx(), text)
	if !ok {
		c.idle(outcomeNoSpeech)
		return
	}
	c.showGame(u, u.Score != "")
	c.reply(u.Text, outcomeGame)
}

func (c *Controller) showGame(u games.Update, withScore bool) {
	n := Notification{Kind: KindGame, Game: &u}
	if withScore {
		if sum, err := c.games.Summary(c.turnCtx(), u.Game); err != nil {
			slog.Warn("turn: scoreboard summary", "game", u.Game, "err", err)
		} else {
			n.Score = sum
		}
	}
	c.notify(n)
	c.transcript(SpeakerAssistant, u.Text)
	if u.Done {
		c.notify(Notification{Kind: KindGameEnded})
	}
}

func (c *Controller) cameraQuery(text string) {
	if c.camera == nil {
		c.reply(MsgCameraNoAccess, outcomeVision)
		return
	}
	path, err := c.camera.Snapshot(c.turnCtx())
	if err != nil {
		slog.Warn("turn: camera snapshot", "err", err)
		c.reply(MsgCameraNoAccess, outcomeVision)
		return
	}
	msgs := []types.Message{
		{Role: types.RoleSystem, Content: c.snap.SystemPrompt},
		{Role: types.RoleUser, Content: text, Images: []string{path}},
	}
	c.startInference(msgs, text, true)
}

func (c *Controller) askLLM(text string) {
	msgs := c.history.Prompt(c.snap.SystemPrompt+c.notes.Blurb(), c.snap.HistoryWindow, text)
	c.startInference(msgs, text, false)
}

func (c *Controller) onFinal(raw string) {
	if c.vision {
		c.transcript(SpeakerAssistant, raw)
		c.reply(raw, outcomeVision)
		return
	}
	text := normalize.Reply(raw, c.userText)
	if text != "" {
		c.history.AppendExchange(c.userText, text)
	}
	c.notify(Notification{Kind: KindReply, Text: text})
	c.reply(text, outcomeReply)
}

// reply speaks text and listens for barge-in meanwhile. An empty text ends
// the turn; an unavailable synthesizer ends it with a warning.
func (c *Controller) reply(text, outcome string) {
	c.stopWorkers()
	if strings.TrimSpace(text) == "" {
		c.idle(outcome)
		return
	}
	if c.synthErr != nil {
		c.warn(MsgTTSUnavailable)
		c.idle(outcomeError)
		return
	}
	c.outcome = outcome
	c.setState(Speaking)
	c.pauseWake()
	c.startSpeaking(text)
	c.startBargeIn()
}

// ─── State and turn bookkeeping ──────────────────────────────────────────────

func (c *Controller) setState(to State) {
	from := c.State()
	if from == to {
		return
	}
	c.state.Store(int32(to))
	c.metrics.RecordTransition(c.turnCtx(), from.String(), to.String())
	slog.Debug("turn: state", "from", from, "to", to, "turn_id", c.turnID())
	c.notify(Notification{Kind: KindState, State: to.String()})
}

// beginTurn starts a turn unless one is in flight and takes the settings
// snapshot for it.
func (c *Controller) beginTurn() {
	if c.turn != nil {
		return
	}
	id := uuid.NewString()
	ctx, span := observe.StartTurn(c.ctx, id)
	c.turn = &turnInfo{id: id, started: time.Now(), ctx: ctx, span: span}
	c.snap = *c.settings.Load()
	c.metrics.ActiveTurns.Add(ctx, 1)
	observe.Logger(ctx).Info("turn: begin", "turn_id", id)
}

// restartTurn abandons whatever the current turn is doing and opens a new one.
func (c *Controller) restartTurn() {
	if c.turn != nil && c.State() != Idle {
		c.stopAll(outcomeStopped)
	}
	c.beginTurn()
}

func (c *Controller) endTurn(outcome string) {
	t := c.turn
	if t == nil {
		return
	}
	c.turn = nil
	d := time.Since(t.started)
	t.span.SetAttributes(attribute.String("outcome", outcome))
	t.span.End()
	c.metrics.RecordTurn(t.ctx, outcome)
	c.metrics.RecordTurnDuration(t.ctx, outcome, d)
	c.metrics.ActiveTurns.Add(t.ctx, -1)
	observe.Logger(t.ctx).Info("turn: end", "turn_id", t.id, "outcome", outcome, "duration", d)
}

// idle returns to Idle and closes the turn.
func (c *Controller) idle(outcome string) {
	c.resumeWake()
	c.setState(Idle)
	c.endTurn(outcome)
}

// stopAll cancels every worker and returns to Idle.
func (c *Controller) stopAll(outcome string) {
	c.stopWorkers()
	c.idle(outcome)
}

func (c *Controller) stopWorkers() {
	c.listen.stop()
	c.infer.stop()
	c.speak.stop()
	c.barge.stop()
}

func (c *Controller) pauseWake() {
	if c.wake != nil && !c.wakePaused {
		c.wake.Pause()
		c.wakePaused = true
	}
}

func (c *Controller) resumeWake() {
	if c.wake != nil && c.wakePaused {
		c.wake.Resume()
		c.wakePaused = false
	}
}

func (c *Controller) turnCtx() context.Context {
	if c.turn != nil {
		return c.turn.ctx
	}
	return c.ctx
}

func (c *Controller) turnID() string {
	if c.turn != nil {
		return c.turn.id
	}
	return ""
}

func (c *Controller) notify(n Notification) {
	if n.TurnID == "" {
		n.TurnID = c.turnID()
	}
	c.notifier.Notify(n)
}

func (c *Controller) transcript(speaker, text string) {
	c.notify(Notification{Kind: KindTranscript, Speaker: speaker, Text: text})
}

func (c *Controller) warn(msg string) {
	slog.Warn("turn: "+strings.TrimSuffix(msg, "."), "turn_id", c.turnID())
	c.notify(Notification{Kind: KindWarning, Text: msg})
}
