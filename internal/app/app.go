// Package app wires the bemo subsystems into a running assistant.
//
// New builds every worker from the config and the provider registry and
// connects them to the turn controller and the UI bridge. Run starts the
// control loop, the wake gate and the status server; Shutdown tears
// everything down in order.
//
// For testing, inject devices and stores via [Devices] and functional
// options. When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bemo-assistant/bemo/internal/bargein"
	"github.com/bemo-assistant/bemo/internal/capture"
	"github.com/bemo-assistant/bemo/internal/config"
	"github.com/bemo-assistant/bemo/internal/games"
	"github.com/bemo-assistant/bemo/internal/health"
	"github.com/bemo-assistant/bemo/internal/inference"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/phrase"
	"github.com/bemo-assistant/bemo/internal/playback"
	"github.com/bemo-assistant/bemo/internal/scoreboard"
	pgscore "github.com/bemo-assistant/bemo/internal/scoreboard/postgres"
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/transcribe"
	"github.com/bemo-assistant/bemo/internal/turn"
	"github.com/bemo-assistant/bemo/internal/uibridge"
	"github.com/bemo-assistant/bemo/internal/wake"
	"github.com/bemo-assistant/bemo/pkg/audio"
	"github.com/bemo-assistant/bemo/pkg/types"
)

// sttTestWindow bounds the settings-form microphone self-test.
var sttTestWindow = segmenter.Constraints{MaxRecordMs: 5000, MinRecordMs: 300, SilenceMs: 800}

const warningTimeout = 10 * time.Second

// Devices are the audio endpoints. Both are required.
type Devices struct {
	Input  audio.InputDevice
	Output audio.OutputDevice
}

// App owns all subsystem lifetimes.
type App struct {
	reg       *config.Registry
	providers *Providers
	metrics   *observe.Metrics

	mu  sync.Mutex
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	input      *audio.ExclusiveInput
	capture    *capture.Worker
	dictation  *transcribe.Gateway
	wakeSTT    *transcribe.Gateway
	matcher    *phrase.Matcher
	synth      *synthesizer
	gate       *wake.Gate
	board      *scoreboard.Board
	scores     scoreboard.Store
	games      *games.Registry
	controller *turn.Controller
	bridge     *uibridge.Bridge
	health     *health.Handler
	server     *http.Server

	configPath   string
	settingsPath string
	levelVar     *slog.LevelVar
	listener     net.Listener

	runCtx   context.Context
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithScoreStore injects a score store instead of creating one from the
// scoreboard config.
func WithScoreStore(s scoreboard.Store) Option {
	return func(a *App) { a.scores = s }
}

// WithConfigPath enables hot reload of the YAML file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithSettingsFile persists settings changed from the UI to a flat
// settings.json at path.
func WithSettingsFile(path string) Option {
	return func(a *App) { a.settingsPath = path }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithListener serves the status server on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Providers are built
// from reg.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, dev Devices, opts ...Option) (*App, error) {
	if dev.Input == nil || dev.Output == nil {
		return nil, errors.New("app: input and output devices are required")
	}
	a := &App{cfg: cfg, reg: reg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	providers, err := BuildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	a.providers = providers
	a.closers = append(a.closers, providers.Close)

	// ── 1. Audio in ──────────────────────────────────────────────────────
	if err := a.initCapture(dev.Input); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 2. Scoreboard and games ──────────────────────────────────────────
	if err := a.initScores(ctx); err != nil {
		return nil, fmt.Errorf("app: init scoreboard: %w", err)
	}

	// ── 3. Wake gate ─────────────────────────────────────────────────────
	if err := a.initWake(); err != nil {
		return nil, fmt.Errorf("app: init wake gate: %w", err)
	}

	// ── 4. Workers, bridge and controller ────────────────────────────────
	if err := a.initTurn(dev.Output); err != nil {
		return nil, fmt.Errorf("app: init turn controller: %w", err)
	}

	// ── 5. Health and status server ──────────────────────────────────────
	a.initHealth()
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initCapture(in audio.InputDevice) error {
	cfg := a.cfg
	a.input = audio.NewExclusiveInput(in, audio.DefaultAcquireTimeout)

	var err error
	a.capture, err = capture.New(a.input, a.providers.VAD, capture.Config{
		SampleRate:     cfg.Audio.SampleRate,
		FrameMs:        cfg.Audio.FrameMs,
		Aggressiveness: cfg.Audio.VADAggressiveness,
	}, capture.WithObserver(func(d time.Duration, u types.Utterance, err error) {
		a.metrics.RecordCapture(context.Background(), "utterance", d)
		slog.Debug("capture finished", "duration", d, "samples", len(u.Samples), "truncated", u.Truncated, "err", err)
	}))
	if err != nil {
		return err
	}

	lang := transcribe.WithLanguage(cfg.Assistant.Language)
	met := transcribe.WithMetrics(a.metrics)
	a.dictation, err = transcribe.New(a.providers.STT, lang, met, transcribe.WithProviderName(cfg.Providers.STT.Name))
	if err != nil {
		return err
	}
	wakeName := cfg.Providers.WakeSTT.Name
	if wakeName == "" {
		wakeName = cfg.Providers.STT.Name
	}
	a.wakeSTT, err = transcribe.New(a.providers.WakeSTT, lang, met, transcribe.WithProviderName(wakeName))
	if err != nil {
		return err
	}
	a.matcher = phrase.New(phrase.WithFuzzy(cfg.Wake.Fuzzy))
	return nil
}

// initScores selects the score store and builds the game manager's
// collaborators.
func (a *App) initScores(ctx context.Context) error {
	sc := a.cfg.Scoreboard
	if a.scores == nil {
		switch sc.Backend {
		case config.ScorePostgres:
			pool, err := pgxpool.New(ctx, sc.PostgresDSN)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return fmt.Errorf("ping postgres: %w", err)
			}
			store := pgscore.NewStore(pool)
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return err
			}
			a.scores = store
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
		default:
			path := sc.Path
			if path == "" {
				path = filepath.Join(a.cfg.Server.DataDir, scoreboard.DefaultFileName)
			}
			store, err := scoreboard.NewFileStore(path)
			if err != nil {
				return err
			}
			a.scores = store
		}
	}

	var err error
	if a.board, err = scoreboard.New(a.scores); err != nil {
		return err
	}
	var opts []games.TriviaOption
	if f := a.cfg.Assistant.TriviaFile; f != "" {
		opts = append(opts, games.WithQuestionFile(f))
	}
	a.games = games.NewRegistry(opts...)
	return nil
}

func (a *App) initTurn(out audio.OutputDevice) error {
	cfg := a.cfg
	a.synth = newSynthesizer(a.providers.TTS)
	speaker, err := playback.New(a.synth, out,
		playback.WithMetrics(a.metrics),
		playback.WithProviderName(cfg.Providers.TTS.Name),
	)
	if err != nil {
		return err
	}

	streamer, err := inference.New(a.providers.LLM,
		inference.WithMetrics(a.metrics),
		inference.WithProviderName(cfg.Providers.LLM.Name),
	)
	if err != nil {
		return err
	}

	monitor, err := bargein.New(a.capture, a.wakeSTT, bargein.Config{
		Word:    cfg.Wake.StopWord,
		Model:   cfg.Providers.WakeSTT.Model,
		Matcher: a.matcher,
	}, bargein.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	manager, err := games.NewManager(a.games, a.board, games.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	a.bridge = uibridge.New(nil,
		uibridge.WithModels(a.providers.LLM),
		uibridge.WithSTTTest(a.sttTest),
		uibridge.WithGames(a.games),
		uibridge.WithOriginPatterns(cfg.Server.AllowedOrigins...),
		uibridge.WithSettingsHook(a.onSettings),
		uibridge.WithMetrics(a.metrics),
	)
	a.closers = append(a.closers, a.bridge.Close)

	tc := turn.Config{
		Capture:     a.capture,
		Transcriber: a.dictation,
		Inference:   streamer,
		Speaker:     speaker,
		BargeIn:     monitor,
		Games:       manager,
		Camera:      a.bridge,
		Notifier:    a.bridge,
		Settings:    SettingsFromConfig(cfg),
	}
	if a.gate != nil {
		tc.Wake = a.gate
	}
	a.controller, err = turn.New(tc, turn.WithMetrics(a.metrics), turn.WithMatcher(a.matcher))
	if err != nil {
		return err
	}
	a.bridge.Bind(a.controller)
	return nil
}

func (a *App) initWake() error {
	if a.cfg.Wake.Mode == config.WakeOff {
		slog.Info("wake gate disabled")
		return nil
	}
	strategy, err := a.buildStrategy(a.cfg)
	if err != nil {
		return err
	}
	// The controller and bridge are created afterwards; neither callback
	// runs before Run starts the gate.
	a.gate, err = wake.New(strategy, func() { a.controller.Wake() },
		wake.WithMetrics(a.metrics),
		wake.WithErrorHandler(func(err error) {
			slog.Error("wake gate stopped", "err", err)
			a.bridge.Notify(turn.Notification{Kind: turn.KindWarning, Text: "Wake word listener stopped: " + err.Error()})
		}),
	)
	return err
}

func (a *App) buildStrategy(cfg *config.Config) (wake.Strategy, error) {
	if cfg.Wake.Mode == config.WakeClassifier {
		if a.providers.WakeScorer == nil {
			return nil, errors.New("classifier mode requires a wake scorer")
		}
		return wake.NewClassifierStrategy(a.input, a.providers.WakeScorer, wake.ClassifierConfig{
			SampleRate: cfg.Audio.SampleRate,
			Threshold:  cfg.Wake.Threshold,
			Model:      cfg.Providers.WakeScorer.Model,
		})
	}
	return wake.NewTranscribeStrategy(a.capture, a.wakeSTT, wake.TranscribeConfig{
		Phrase:   cfg.Wake.Phrase,
		Model:    cfg.Providers.WakeSTT.Model,
		Language: cfg.Assistant.Language,
		Cooldown: time.Duration(cfg.Wake.CooldownMs) * time.Millisecond,
		Matcher:  phrase.New(phrase.WithFuzzy(cfg.Wake.Fuzzy)),
	})
}

func (a *App) initHealth() {
	checkers := []health.Checker{
		health.Inference(a.providers.LLM),
		health.Model(a.providers.LLM, func() string { return a.controller.Settings().Model }),
		health.Synthesizer(a.synth),
	}
	if p := transcriberAvailability(a.providers.STT); p != nil {
		checkers = append(checkers, health.Transcriber(p))
	}
	a.health = health.New(checkers...)
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Handler returns the status server's routes: health checks, the UI bridge
// and Prometheus metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	a.bridge.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Controller returns the turn controller.
func (a *App) Controller() *turn.Controller { return a.controller }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the control loop, the wake gate and the status server and
// blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
			return fmt.Errorf("app: listen %s: %w", a.server.Addr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if w := a.newWatcher(); w != nil {
		g.Go(func() error { return w.Run(ctx) })
	}
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	g.Go(func() error { return a.controller.Run(ctx) })
	g.Go(func() error {
		slog.Info("status server listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: status server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(sctx)
	})
	if a.gate != nil {
		a.gate.Start(ctx)
	}
	go a.reportWarnings(ctx)

	slog.Info("assistant running", "wake_mode", a.cfg.Wake.Mode)
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// reportWarnings checks every backend and shows each problem in the UI.
func (a *App) reportWarnings(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, warningTimeout)
	defer cancel()
	for _, w := range a.health.Warnings(ctx) {
		slog.Warn("backend check failed", "warning", w)
		a.bridge.Notify(turn.Notification{Kind: turn.KindWarning, Text: w})
	}
}

// errSTTTestBusy is shown in the settings form when a turn holds the
// microphone.
var errSTTTestBusy = errors.New("Finish the current conversation before testing the microphone.")

// sttTest records a short clip and transcribes it with the dictation
// settings. It only runs while the controller is idle; the wake gate stays
// paused for the recording.
func (a *App) sttTest(ctx context.Context) (string, error) {
	if a.controller.State() != turn.Idle {
		return "", errSTTTestBusy
	}
	if a.gate != nil {
		a.gate.Pause()
		defer a.gate.Resume()
	}
	u, err := a.capture.Capture(ctx, sttTestWindow)
	if err != nil {
		return "", err
	}
	if len(u.Samples) == 0 {
		return "", nil
	}
	s := a.controller.Settings()
	return a.dictation.Transcribe(ctx, u, transcribe.Options{Model: s.STTModel, Language: s.Language})
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.gate != nil {
			if err := a.gate.Stop(ctx); err != nil {
				slog.Warn("wake gate stop error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
