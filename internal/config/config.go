// Package config provides the configuration schema, loader, provider registry
// and hot-reload watcher for the bemo assistant.
package config

import (
	"os"
	"path/filepath"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// WakeMode selects how the wake gate listens.
type WakeMode string

const (
	// WakeTranscribe transcribes short windows and looks for the phrase.
	WakeTranscribe WakeMode = "simple"

	// WakeClassifier streams frames to a trained wake-word scorer.
	WakeClassifier WakeMode = "classifier"

	// WakeOff disables hands-free activation.
	WakeOff WakeMode = "off"
)

// IsValid reports whether m is a recognised wake mode.
func (m WakeMode) IsValid() bool {
	switch m {
	case WakeTranscribe, WakeClassifier, WakeOff:
		return true
	}
	return false
}

// ScoreBackend selects where game scores are persisted.
type ScoreBackend string

const (
	ScoreFile     ScoreBackend = "file"
	ScorePostgres ScoreBackend = "postgres"
)

// IsValid reports whether b is a recognised score backend.
func (b ScoreBackend) IsValid() bool { return b == ScoreFile || b == ScorePostgres }

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = "127.0.0.1:8765"
	DefaultDataDirName   = ".bemo_assistant"
	DefaultLLMProvider   = "ollama"
	DefaultLLMBaseURL    = "http://localhost:11434"
	DefaultLLMModel      = "tinyllama:chat"
	DefaultSTTProvider   = "whisper-cli"
	DefaultSTTModel      = "small.en"
	DefaultWakeModel     = "tiny.en"
	DefaultTTSProvider   = "piper"
	DefaultTTSVoice      = "models/piper/en_US-lessac-medium.onnx"
	DefaultVADProvider   = "energy"
	DefaultSampleRate    = 16000
	DefaultFrameMs       = 30
	DefaultMinRecordMs   = 300
	DefaultMaxRecordMs   = 12000
	DefaultSilenceMs     = 800
	DefaultVADLevel      = 2
	DefaultWakePhrase    = "hey bemo"
	DefaultWakeThreshold = 0.6
	DefaultTemperature   = 0.6
	DefaultHistory       = 12
	DefaultLanguage      = "en"
)

// Config is the root configuration structure. It is typically loaded from a
// YAML file with [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Audio      AudioConfig      `yaml:"audio"`
	Wake       WakeConfig       `yaml:"wake"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Scoreboard ScoreboardConfig `yaml:"scoreboard"`
}

// ServerConfig holds the status server and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the status and UI server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// DataDir holds settings.json, scoreboard.json and the log file.
	// Default: ~/.bemo_assistant.
	DataDir string `yaml:"data_dir"`

	// AllowedOrigins lists host patterns allowed to open the UI websocket
	// from another origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig selects the backend for each role. Each entry is looked up
// in the [Registry] by name.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`

	// WakeSTT is used for wake windows and barge-in. When unset the STT
	// backend is shared with model [DefaultWakeModel].
	WakeSTT ProviderEntry `yaml:"wake_stt"`

	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`

	// WakeScorer is the wake-word classifier used in classifier mode.
	WakeScorer ProviderEntry `yaml:"wake_scorer"`

	// Fallbacks are tried in order when the primary backend of a role
	// fails repeatedly.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists alternative backends per role.
type FallbacksConfig struct {
	LLM []ProviderEntry `yaml:"llm"`
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "ollama", "piper").
	Name string `yaml:"name"`

	// APIKey authenticates against hosted backends.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the backend's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model, voice or scorer within the backend.
	Model string `yaml:"model"`

	// Options holds backend-specific values (e.g. "executable", "speaker").
	Options map[string]any `yaml:"options"`
}

// Option returns the string option key, or "" when unset or not a string.
func (e ProviderEntry) Option(key string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return ""
}

// AudioConfig holds device and endpointing parameters.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	FrameMs    int `yaml:"frame_ms"`

	// InputDevice and OutputDevice select devices by name substring; empty
	// selects the system default.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	MinRecordMs int `yaml:"min_record_ms"`
	MaxRecordMs int `yaml:"max_record_ms"`
	SilenceMs   int `yaml:"silence_ms"`

	// VADAggressiveness in [0,3] trades missed speech for false triggers.
	VADAggressiveness int `yaml:"vad_aggressiveness"`
}

// WakeConfig configures hands-free activation.
type WakeConfig struct {
	Mode      WakeMode `yaml:"mode"`
	Phrase    string   `yaml:"phrase"`
	Threshold float64  `yaml:"threshold"`

	// CooldownMs is the pause after a detection in simple mode.
	CooldownMs int `yaml:"cooldown_ms"`

	// Fuzzy enables phonetic phrase matching.
	Fuzzy bool `yaml:"fuzzy"`

	// StopWord interrupts a reply while it is spoken. Default: "stop".
	StopWord string `yaml:"stop_word"`
}

// AssistantConfig holds the conversation settings.
type AssistantConfig struct {
	// SystemPrompt overrides the built-in persona.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is a pointer so an explicit 0 is distinguishable from
	// unset.
	Temperature *float64 `yaml:"temperature"`

	HistoryWindow int    `yaml:"history_window"`
	CameraEnabled bool   `yaml:"camera_enabled"`
	KioskMode     bool   `yaml:"kiosk_mode"`
	Language      string `yaml:"language"`

	// TriviaFile replaces the built-in trivia questions.
	TriviaFile string `yaml:"trivia_file"`
}

// ScoreboardConfig selects score persistence.
type ScoreboardConfig struct {
	Backend ScoreBackend `yaml:"backend"`

	// Path of the JSON file for the file backend. Default:
	// <data_dir>/scoreboard.json.
	Path string `yaml:"path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DefaultDataDir returns ~/.bemo_assistant, or a relative directory when the
// home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultDataDirName
	}
	return filepath.Join(home, DefaultDataDirName)
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.DataDir == "" {
		s.DataDir = DefaultDataDir()
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = DefaultLLMProvider
	}
	if p.LLM.Name == DefaultLLMProvider && p.LLM.BaseURL == "" {
		p.LLM.BaseURL = DefaultLLMBaseURL
	}
	if p.LLM.Model == "" {
		p.LLM.Model = DefaultLLMModel
	}
	if p.STT.Name == "" {
		p.STT.Name = DefaultSTTProvider
	}
	if p.STT.Model == "" {
		p.STT.Model = DefaultSTTModel
	}
	if p.WakeSTT.Model == "" {
		p.WakeSTT.Model = DefaultWakeModel
	}
	if p.TTS.Name == "" {
		p.TTS.Name = DefaultTTSProvider
	}
	if p.TTS.Name == DefaultTTSProvider && p.TTS.Model == "" {
		p.TTS.Model = DefaultTTSVoice
	}
	if p.VAD.Name == "" {
		p.VAD.Name = DefaultVADProvider
	}

	a := &cfg.Audio
	if a.SampleRate == 0 {
		a.SampleRate = DefaultSampleRate
	}
	if a.FrameMs == 0 {
		a.FrameMs = DefaultFrameMs
	}
	if a.MinRecordMs == 0 {
		a.MinRecordMs = DefaultMinRecordMs
	}
	if a.MaxRecordMs == 0 {
		a.MaxRecordMs = DefaultMaxRecordMs
	}
	if a.SilenceMs == 0 {
		a.SilenceMs = DefaultSilenceMs
	}
	if a.VADAggressiveness == 0 {
		a.VADAggressiveness = DefaultVADLevel
	}

	w := &cfg.Wake
	if w.Mode == "" {
		w.Mode = WakeTranscribe
	}
	if w.Phrase == "" {
		w.Phrase = DefaultWakePhrase
	}
	if w.Threshold == 0 {
		w.Threshold = DefaultWakeThreshold
	}
	if w.StopWord == "" {
		w.StopWord = "stop"
	}

	as := &cfg.Assistant
	if as.Temperature == nil {
		t := DefaultTemperature
		as.Temperature = &t
	}
	if as.HistoryWindow == 0 {
		as.HistoryWindow = DefaultHistory
	}
	if as.Language == "" {
		as.Language = DefaultLanguage
	}

	sb := &cfg.Scoreboard
	if sb.Backend == "" {
		sb.Backend = ScoreFile
	}
	if sb.Backend == ScoreFile && sb.Path == "" {
		sb.Path = filepath.Join(s.DataDir, "scoreboard.json")
	}
}
