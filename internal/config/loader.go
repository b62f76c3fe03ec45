package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":         {"ollama", "openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":         {"whisper-cli", "whisper", "whisper-native"},
	"tts":         {"piper", "coqui"},
	"vad":         {"energy"},
	"wake_scorer": {"websocket"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.WakeSTT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("wake_scorer", cfg.Providers.WakeScorer.Name)
	fb := cfg.Providers.Fallbacks
	for kind, entries := range map[string][]ProviderEntry{"llm": fb.LLM, "stt": fb.STT, "tts": fb.TTS} {
		for i, e := range entries {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.fallbacks.%s[%d]: name is required", kind, i))
				continue
			}
			validateProviderName(kind, e.Name)
		}
	}

	a := cfg.Audio
	if a.SampleRate != 0 && a.SampleRate != 16000 {
		slog.Warn("audio.sample_rate is not 16000; whisper backends will reject the audio", "sample_rate", a.SampleRate)
	}
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", a.SampleRate))
	}
	switch a.FrameMs {
	case 0, 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is invalid; valid values: 10, 20, 30", a.FrameMs))
	}
	if a.MinRecordMs < 0 || a.MaxRecordMs < 0 || a.SilenceMs < 0 {
		errs = append(errs, errors.New("audio: record durations must not be negative"))
	}
	if a.MaxRecordMs != 0 && a.MinRecordMs > a.MaxRecordMs {
		errs = append(errs, fmt.Errorf("audio.min_record_ms %d exceeds audio.max_record_ms %d", a.MinRecordMs, a.MaxRecordMs))
	}
	if a.VADAggressiveness < 0 || a.VADAggressiveness > 3 {
		errs = append(errs, fmt.Errorf("audio.vad_aggressiveness %d is out of range [0, 3]", a.VADAggressiveness))
	}

	w := cfg.Wake
	if w.Mode != "" && !w.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("wake.mode %q is invalid; valid values: simple, classifier, off", w.Mode))
	}
	if w.Threshold < 0 || w.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %.2f is out of range [0, 1]", w.Threshold))
	}
	if w.Mode == WakeClassifier && cfg.Providers.WakeScorer.Name == "" {
		errs = append(errs, errors.New("wake.mode \"classifier\" requires providers.wake_scorer"))
	}

	as := cfg.Assistant
	if as.Temperature != nil && (*as.Temperature < 0 || *as.Temperature > 2) {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", *as.Temperature))
	}
	if as.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("assistant.history_window %d must not be negative", as.HistoryWindow))
	}

	sb := cfg.Scoreboard
	if sb.Backend != "" && !sb.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("scoreboard.backend %q is invalid; valid values: file, postgres", sb.Backend))
	}
	if sb.Backend == ScorePostgres && sb.PostgresDSN == "" {
		errs = append(errs, errors.New("scoreboard.postgres_dsn is required when scoreboard.backend is postgres"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
