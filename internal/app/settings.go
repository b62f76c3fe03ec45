package app

import (
	"log/slog"

	"github.com/bemo-assistant/bemo/internal/config"
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/turn"
)

// SettingsFromConfig derives the per-turn settings snapshot from cfg.
func SettingsFromConfig(cfg *config.Config) turn.Settings {
	s := turn.Settings{
		SystemPrompt:  cfg.Assistant.SystemPrompt,
		Model:         cfg.Providers.LLM.Model,
		HistoryWindow: cfg.Assistant.HistoryWindow,
		STTModel:      cfg.Providers.STT.Model,
		Language:      cfg.Assistant.Language,
		WakePhrase:    cfg.Wake.Phrase,
		CameraEnabled: cfg.Assistant.CameraEnabled,
		Dictation: segmenter.Constraints{
			MaxRecordMs: cfg.Audio.MaxRecordMs,
			MinRecordMs: cfg.Audio.MinRecordMs,
			SilenceMs:   cfg.Audio.SilenceMs,
		},
	}
	if cfg.Assistant.Temperature != nil {
		s.Temperature = *cfg.Assistant.Temperature
	}
	return s
}

// applySettings copies the UI-editable fields of s into a copy of cfg.
func applySettings(cfg *config.Config, s turn.Settings) *config.Config {
	next := *cfg
	next.Assistant.SystemPrompt = s.SystemPrompt
	next.Providers.LLM.Model = s.Model
	temp := s.Temperature
	next.Assistant.Temperature = &temp
	next.Assistant.HistoryWindow = s.HistoryWindow
	next.Providers.STT.Model = s.STTModel
	if s.Language != "" {
		next.Assistant.Language = s.Language
	}
	next.Wake.Phrase = s.WakePhrase
	next.Assistant.CameraEnabled = s.CameraEnabled
	return &next
}

// onSettings runs after the UI changed the settings. It keeps the wake
// phrase and language in sync, persists the result and checks the backends again so
// warnings show before the next turn.
func (a *App) onSettings(s turn.Settings) {
	a.mu.Lock()
	old := a.cfg
	a.cfg = applySettings(old, s)
	next := a.cfg
	ctx := a.runCtx
	a.mu.Unlock()

	if next.Wake.Phrase != old.Wake.Phrase || next.Assistant.Language != old.Assistant.Language {
		a.swapStrategy(next)
	}
	if a.settingsPath != "" {
		if err := config.SaveLegacy(a.settingsPath, config.LegacyFromConfig(next)); err != nil {
			slog.Warn("cannot persist settings", "path", a.settingsPath, "err", err)
			a.bridge.Notify(turn.Notification{Kind: turn.KindWarning, Text: "Settings could not be saved: " + err.Error()})
		}
	}
	if ctx != nil {
		go a.reportWarnings(ctx)
	}
}

// applyConfig is the hot-reload callback. Sections that cannot change
// while running are logged and otherwise ignored.
func (a *App) applyConfig(_, next *config.Config, d config.ConfigDiff) {
	a.mu.Lock()
	cur := a.cfg
	merged := *cur
	merged.Assistant = next.Assistant
	// The wake mode decides which backends exist, so it stays until restart.
	merged.Wake = next.Wake
	merged.Wake.Mode = cur.Wake.Mode
	merged.Providers.LLM.Model = next.Providers.LLM.Model
	merged.Providers.STT.Model = next.Providers.STT.Model
	merged.Providers.WakeSTT.Model = next.Providers.WakeSTT.Model
	merged.Server.LogLevel = next.Server.LogLevel
	a.cfg = &merged
	ctx := a.runCtx
	a.mu.Unlock()

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AssistantChanged {
		a.controller.UpdateSettings(SettingsFromConfig(&merged))
	}
	if d.WakeChanged && next.Wake.Mode != cur.Wake.Mode {
		d.RestartRequired = append(d.RestartRequired, "wake.mode")
	}
	if d.WakeChanged || merged.Assistant.Language != cur.Assistant.Language {
		a.swapStrategy(&merged)
	}
	if d.TTSChanged {
		p, err := buildTTS(next.Providers, a.reg)
		if err != nil {
			slog.Warn("keeping previous synthesizer", "err", err)
		} else {
			a.synth.set(p)
			slog.Info("synthesizer replaced", "name", next.Providers.TTS.Name)
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes need a restart", "sections", d.RestartRequired)
	}
	if (d.AssistantChanged || d.TTSChanged) && ctx != nil {
		go a.reportWarnings(ctx)
	}
}

// newWatcher watches whichever file the config came from: the YAML config,
// or settings.json when the app runs on the desktop settings. It returns nil
// when neither is set or the file cannot be read.
func (a *App) newWatcher() *config.Watcher {
	path, opts := a.configPath, []config.WatcherOption(nil)
	if path == "" && a.settingsPath != "" {
		path = a.settingsPath
		opts = append(opts, config.WithDecoder(config.DecodeLegacy(a.cfg.Server.DataDir)))
	}
	if path == "" {
		return nil
	}
	w, err := config.NewWatcher(path, a.applyConfig, opts...)
	if err != nil {
		slog.Warn("config hot reload disabled", "path", path, "err", err)
		return nil
	}
	return w
}

func (a *App) swapStrategy(cfg *config.Config) {
	if a.gate == nil {
		return
	}
	s, err := a.buildStrategy(cfg)
	if err != nil {
		slog.Warn("keeping previous wake strategy", "err", err)
		return
	}
	a.gate.SetStrategy(s)
	slog.Info("wake strategy updated", "strategy", s.Name(), "phrase", cfg.Wake.Phrase)
}

// slogLevel maps a config level to its slog equivalent.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SlogLevel is the exported form of slogLevel used by main when building the
// handler.
func SlogLevel(l config.LogLevel) slog.Level { return slogLevel(l) }
