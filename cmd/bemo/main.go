// Command bemo is the entry point of the Bemo voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bemo-assistant/bemo/internal/app"
	"github.com/bemo-assistant/bemo/internal/config"
	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/pkg/audio/portaudio"
	"github.com/bemo-assistant/bemo/pkg/provider/llm"
	"github.com/bemo-assistant/bemo/pkg/provider/llm/anyllm"
	oaillm "github.com/bemo-assistant/bemo/pkg/provider/llm/openai"
	"github.com/bemo-assistant/bemo/pkg/provider/stt"
	"github.com/bemo-assistant/bemo/pkg/provider/stt/whisper"
	"github.com/bemo-assistant/bemo/pkg/provider/stt/whispercli"
	"github.com/bemo-assistant/bemo/pkg/provider/tts"
	"github.com/bemo-assistant/bemo/pkg/provider/tts/coqui"
	"github.com/bemo-assistant/bemo/pkg/provider/tts/piper"
	"github.com/bemo-assistant/bemo/pkg/provider/vad"
	"github.com/bemo-assistant/bemo/pkg/provider/vad/energy"
	wakeword "github.com/bemo-assistant/bemo/pkg/provider/wake"
	"github.com/bemo-assistant/bemo/pkg/provider/wake/wsscorer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// defaultScorerURL is where a local wake word classifier usually listens.
const defaultScorerURL = "ws://127.0.0.1:9002/score"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (default: <data dir>/config.yaml)")
	listDevices := flag.Bool("list-devices", false, "print the audio devices and exit")
	flag.Parse()

	// ── Audio host ────────────────────────────────────────────────────────────
	if err := portaudio.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "bemo: %v\n", err)
		return 1
	}
	defer func() { _ = portaudio.Terminate() }()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, opts, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bemo: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	opts = append(opts, app.WithLevelVar(level))

	slog.Info("bemo starting",
		"version", version,
		"data_dir", cfg.Server.DataDir,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}
	opts = append(opts, app.WithMetrics(metrics))

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Server.DataDir)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	devices := app.Devices{
		Input:  portaudio.New(cfg.Audio.InputDevice),
		Output: portaudio.New(cfg.Audio.OutputDevice),
	}
	application, err := app.New(ctx, cfg, reg, devices, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("assistant ready, press Ctrl+C to quit")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// loadConfig reads the YAML config when it exists and otherwise imports the
// desktop app's settings.json from the data directory. Settings changed in
// the UI are written back to settings.json only in the second case.
func loadConfig(path string) (*config.Config, []app.Option, error) {
	dataDir := config.DefaultDataDir()
	explicit := path != ""
	if !explicit {
		path = filepath.Join(dataDir, "config.yaml")
	}

	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, []app.Option{app.WithConfigPath(path)}, nil
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, nil, err
	}

	legacyPath := filepath.Join(dataDir, config.LegacyFileName)
	s, found, err := config.LoadLegacy(legacyPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg, err = s.Config(dataDir); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", legacyPath, err)
	}
	if !found {
		if err := config.SaveLegacy(legacyPath, s); err != nil {
			return nil, nil, fmt.Errorf("write default settings: %w", err)
		}
	}
	return cfg, []app.Option{app.WithSettingsFile(legacyPath)}, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders maps provider roles to the implementations that ship with
// Bemo. Used for startup logging.
var builtinProviders = map[string][]string{
	"llm":         {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":         {"whisper-native", "whisper-cli", "whisper"},
	"tts":         {"piper", "coqui"},
	"vad":         {"energy"},
	"wake_scorer": {"websocket"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Model files that are given by name are looked up below dataDir/models.
func registerBuiltinProviders(reg *config.Registry, dataDir string) {
	modelDir := func(e config.ProviderEntry, sub string) string {
		if d := e.Option("model_dir"); d != "" {
			return d
		}
		return filepath.Join(dataDir, "models", sub)
	}

	// ── LLM ───────────────────────────────────────────────────────────────────
	// Every any-llm backend takes the same optional API key and base URL.
	for _, providerName := range []string{
		"ollama", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllm.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// openai talks to the official SDK so organisation and retry settings
	// are honoured.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.NativeOption{whisper.WithNativeModelDir(modelDir(entry, "whisper"))}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(entry.Model, opts...)
	})

	reg.RegisterSTT("whisper-cli", func(entry config.ProviderEntry) (stt.Provider, error) {
		exe := entry.Option("executable")
		if exe == "" {
			exe = "whisper-cli"
		}
		opts := []whispercli.Option{whispercli.WithModelDir(modelDir(entry, "whisper"))}
		if entry.Model != "" {
			opts = append(opts, whispercli.WithDefaultModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whispercli.WithLanguage(lang))
		}
		return whispercli.New(exe, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("piper", func(entry config.ProviderEntry) (tts.Provider, error) {
		voice := entry.Model
		if voice != "" && !filepath.IsAbs(voice) && filepath.Dir(voice) == "." {
			voice = filepath.Join(modelDir(entry, "piper"), voice)
		}
		var opts []piper.Option
		if exe := entry.Option("executable"); exe != "" {
			opts = append(opts, piper.WithExecutable(exe))
		}
		if sp := entry.Option("speaker"); sp != "" {
			opts = append(opts, piper.WithSpeaker(sp))
		}
		return piper.New(voice, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.Option("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if sp := entry.Option("speaker"); sp != "" {
			opts = append(opts, coqui.WithSpeaker(sp))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// ── Wake scorer ───────────────────────────────────────────────────────────

	reg.RegisterWakeScorer("websocket", func(entry config.ProviderEntry) (wakeword.Scorer, error) {
		endpoint := entry.BaseURL
		if endpoint == "" {
			endpoint = defaultScorerURL
		}
		var opts []wsscorer.Option
		if entry.APIKey != "" {
			opts = append(opts, wsscorer.WithAPIKey(entry.APIKey))
		}
		return wsscorer.New(endpoint, opts...)
	})

	for kind, names := range builtinProviders {
		slog.Debug("built-in providers", "kind", kind, "names", names)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Bemo — startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, filepath.Base(cfg.Providers.TTS.Model))
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	fmt.Printf("║  Wake mode       : %-19s ║\n", cfg.Wake.Mode)
	if cfg.Wake.Mode == config.WakeTranscribe {
		fmt.Printf("║  Wake phrase     : %-19s ║\n", truncate(cfg.Wake.Phrase))
	}
	fmt.Printf("║  Scoreboard      : %-19s ║\n", cfg.Scoreboard.Backend)
	fallbacks := len(cfg.Providers.Fallbacks.LLM) + len(cfg.Providers.Fallbacks.STT) + len(cfg.Providers.Fallbacks.TTS)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", fallbacks)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" && model != "." {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, truncate(value))
}

func truncate(s string) string {
	if len(s) > 19 {
		return s[:16] + "…"
	}
	return s
}

func printDevices() int {
	for _, input := range []bool{true, false} {
		names, err := portaudio.DeviceNames(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bemo: %v\n", err)
			return 1
		}
		kind := "output"
		if input {
			kind = "input"
		}
		fmt.Printf("%s devices:\n", kind)
		for _, n := range names {
			fmt.Printf("  %s\n", n)
		}
	}
	return 0
}
