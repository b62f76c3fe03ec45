package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// LegacyFileName is the flat settings file of the desktop app, kept in the
// data directory.
const LegacyFileName = "settings.json"

// LegacySettings mirrors settings.json. Unknown keys are ignored and missing
// keys keep their defaults.
type LegacySettings struct {
	OllamaBaseURL     string  `json:"ollama_base_url"`
	OllamaModel       string  `json:"ollama_model"`
	OllamaTemperature float64 `json:"ollama_temperature"`

	SystemPrompt string `json:"system_prompt"`

	WakewordMode          string  `json:"wakeword_mode"`
	WakewordModel         string  `json:"wakeword_model"`
	WakewordThreshold     float64 `json:"wakeword_threshold"`
	OpenWakewordModelPath string  `json:"openwakeword_model_path"`

	STTEngine          string `json:"stt_engine"`
	WhisperModel       string `json:"whisper_model"`
	WhisperDevice      string `json:"whisper_device"`
	WhisperComputeType string `json:"whisper_compute_type"`
	WhisperCppPath     string `json:"whisper_cpp_path"`
	WhisperCppModel    string `json:"whisper_cpp_model"`

	TTSVoice   string `json:"tts_voice"`
	TTSSpeaker string `json:"tts_speaker"`
	PiperPath  string `json:"piper_path"`

	MicDevice         string `json:"mic_device"`
	SpeakerDevice     string `json:"speaker_device"`
	SampleRate        int    `json:"sample_rate"`
	VADAggressiveness int    `json:"vad_aggressiveness"`
	MinRecordMs       int    `json:"min_record_ms"`
	MaxRecordMs       int    `json:"max_record_ms"`
	SilenceMs         int    `json:"silence_ms"`

	HistoryMaxMessages int `json:"history_max_messages"`

	CameraEnabled bool   `json:"camera_enabled"`
	KioskMode     bool   `json:"kiosk_mode"`
	Language      string `json:"language"`
}

// DefaultLegacySettings returns the values a fresh settings.json holds.
func DefaultLegacySettings() LegacySettings {
	return LegacySettings{
		OllamaBaseURL:      DefaultLLMBaseURL,
		OllamaModel:        DefaultLLMModel,
		OllamaTemperature:  DefaultTemperature,
		WakewordMode:       "simple",
		WakewordModel:      DefaultWakeModel,
		WakewordThreshold:  DefaultWakeThreshold,
		STTEngine:          "faster-whisper",
		WhisperModel:       DefaultSTTModel,
		WhisperDevice:      "cpu",
		WhisperComputeType: "int8",
		TTSVoice:           DefaultTTSVoice,
		SampleRate:         DefaultSampleRate,
		VADAggressiveness:  DefaultVADLevel,
		MinRecordMs:        DefaultMinRecordMs,
		MaxRecordMs:        DefaultMaxRecordMs,
		SilenceMs:          DefaultSilenceMs,
		HistoryMaxMessages: DefaultHistory,
		Language:           DefaultLanguage,
	}
}

// LoadLegacy reads a settings.json. A missing file yields the defaults and
// found == false.
func LoadLegacy(path string) (s LegacySettings, found bool, err error) {
	s = DefaultLegacySettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultLegacySettings(), true, fmt.Errorf("config: decode %q: %w", path, err)
	}
	return s, true, nil
}

// DecodeLegacy returns a [Decoder] for settings.json content, for watching
// the file with [WithDecoder].
func DecodeLegacy(dataDir string) Decoder {
	return func(data []byte) (*Config, error) {
		s := DefaultLegacySettings()
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("config: decode settings: %w", err)
		}
		return s.Config(dataDir)
	}
}

// SaveLegacy writes s to path with two-space indentation. The file is
// replaced atomically.
func SaveLegacy(path string, s LegacySettings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %q: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("config: write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: write settings: %w", err)
	}
	return nil
}

// Config converts the flat settings into a validated [Config] with defaults
// applied. dataDir becomes server.data_dir.
func (s LegacySettings) Config(dataDir string) (*Config, error) {
	temp := s.OllamaTemperature
	cfg := &Config{
		Server: ServerConfig{DataDir: dataDir},
		Providers: ProvidersConfig{
			LLM: ProviderEntry{Name: "ollama", BaseURL: s.OllamaBaseURL, Model: s.OllamaModel},
			TTS: ProviderEntry{Name: "piper", Model: s.TTSVoice, Options: options("executable", s.PiperPath, "speaker", s.TTSSpeaker)},
		},
		Audio: AudioConfig{
			SampleRate:        s.SampleRate,
			InputDevice:       s.MicDevice,
			OutputDevice:      s.SpeakerDevice,
			MinRecordMs:       s.MinRecordMs,
			MaxRecordMs:       s.MaxRecordMs,
			SilenceMs:         s.SilenceMs,
			VADAggressiveness: s.VADAggressiveness,
		},
		Wake: WakeConfig{Threshold: s.WakewordThreshold},
		Assistant: AssistantConfig{
			SystemPrompt:  s.SystemPrompt,
			Temperature:   &temp,
			HistoryWindow: s.HistoryMaxMessages,
			CameraEnabled: s.CameraEnabled,
			KioskMode:     s.KioskMode,
			Language:      s.Language,
		},
	}

	switch s.STTEngine {
	case "whisper.cpp":
		model := s.WhisperModel
		if s.WhisperCppModel != "" {
			model = s.WhisperCppModel
		}
		cfg.Providers.STT = ProviderEntry{Name: "whisper-cli", Model: model, Options: options("executable", s.WhisperCppPath)}
	default:
		cfg.Providers.STT = ProviderEntry{Name: "whisper-native", Model: s.WhisperModel}
	}

	switch s.WakewordMode {
	case "openwakeword":
		cfg.Wake.Mode = WakeClassifier
		model := s.WakewordModel
		if s.OpenWakewordModelPath != "" {
			model = s.OpenWakewordModelPath
		}
		cfg.Providers.WakeScorer = ProviderEntry{Name: "websocket", Model: model}
	default:
		cfg.Wake.Mode = WakeTranscribe
		cfg.Providers.WakeSTT = ProviderEntry{Model: s.WakewordModel}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LegacyFromConfig flattens cfg back into settings.json form.
func LegacyFromConfig(cfg *Config) LegacySettings {
	s := DefaultLegacySettings()
	p := cfg.Providers
	s.OllamaBaseURL = p.LLM.BaseURL
	s.OllamaModel = p.LLM.Model
	if cfg.Assistant.Temperature != nil {
		s.OllamaTemperature = *cfg.Assistant.Temperature
	}
	s.SystemPrompt = cfg.Assistant.SystemPrompt

	s.WakewordThreshold = cfg.Wake.Threshold
	if cfg.Wake.Mode == WakeClassifier {
		s.WakewordMode = "openwakeword"
		s.OpenWakewordModelPath = p.WakeScorer.Model
	} else {
		s.WakewordMode = "simple"
		s.WakewordModel = p.WakeSTT.Model
	}

	s.WhisperModel = p.STT.Model
	if p.STT.Name == "whisper-cli" {
		s.STTEngine = "whisper.cpp"
		s.WhisperCppModel = p.STT.Model
		s.WhisperCppPath = p.STT.Option("executable")
	}

	s.TTSVoice = p.TTS.Model
	s.TTSSpeaker = p.TTS.Option("speaker")
	s.PiperPath = p.TTS.Option("executable")

	a := cfg.Audio
	s.MicDevice, s.SpeakerDevice = a.InputDevice, a.OutputDevice
	s.SampleRate = a.SampleRate
	s.VADAggressiveness = a.VADAggressiveness
	s.MinRecordMs, s.MaxRecordMs, s.SilenceMs = a.MinRecordMs, a.MaxRecordMs, a.SilenceMs

	s.HistoryMaxMessages = cfg.Assistant.HistoryWindow
	s.CameraEnabled = cfg.Assistant.CameraEnabled
	s.KioskMode = cfg.Assistant.KioskMode
	s.Language = cfg.Assistant.Language
	return s
}

// options builds an options map from key/value pairs, skipping empty values.
func options(kv ...string) map[string]any {
	var m map[string]any
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			continue
		}
		if m == nil {
			m = make(map[string]any)
		}
		m[kv[i]] = kv[i+1]
	}
	return m
}
