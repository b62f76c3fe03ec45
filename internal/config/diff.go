package config

import "slices"

// ConfigDiff describes what changed between two configs. Only settings that
// apply without a restart are tracked individually; everything else is
// summarised in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AssistantChanged is set when any assistant setting, the LLM model or
	// the STT model changed. These apply from the next turn on.
	AssistantChanged bool

	// WakeChanged is set when the wake mode, phrase, threshold or fuzzy
	// matching changed. The wake gate swaps its strategy.
	WakeChanged bool

	// TTSChanged is set when the synthesizer entry changed. The backend is
	// rebuilt and checked again.
	TTSChanged bool

	// RestartRequired lists sections whose changes need a restart.
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.AssistantChanged || d.WakeChanged || d.TTSChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !assistantEqual(old.Assistant, new.Assistant) ||
		old.Providers.LLM.Model != new.Providers.LLM.Model ||
		old.Providers.STT.Model != new.Providers.STT.Model {
		d.AssistantChanged = true
	}

	if old.Wake != new.Wake || old.Providers.WakeSTT.Model != new.Providers.WakeSTT.Model {
		d.WakeChanged = true
	}

	if !entryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.TTSChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.DataDir != new.Server.DataDir {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !entryEqual(withoutModel(old.Providers.LLM), withoutModel(new.Providers.LLM)) ||
		!entryEqual(withoutModel(old.Providers.STT), withoutModel(new.Providers.STT)) ||
		!entryEqual(withoutModel(old.Providers.WakeSTT), withoutModel(new.Providers.WakeSTT)) ||
		!entryEqual(old.Providers.VAD, new.Providers.VAD) ||
		!entryEqual(old.Providers.WakeScorer, new.Providers.WakeScorer) ||
		!fallbacksEqual(old.Providers.Fallbacks, new.Providers.Fallbacks) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Scoreboard != new.Scoreboard {
		d.RestartRequired = append(d.RestartRequired, "scoreboard")
	}
	return d
}

func assistantEqual(a, b AssistantConfig) bool {
	ta, tb := a.Temperature, b.Temperature
	if (ta == nil) != (tb == nil) || (ta != nil && *ta != *tb) {
		return false
	}
	a.Temperature, b.Temperature = nil, nil
	return a == b
}

func fallbacksEqual(a, b FallbacksConfig) bool {
	return slices.EqualFunc(a.LLM, b.LLM, entryEqual) &&
		slices.EqualFunc(a.STT, b.STT, entryEqual) &&
		slices.EqualFunc(a.TTS, b.TTS, entryEqual)
}

func withoutModel(e ProviderEntry) ProviderEntry {
	e.Model = ""
	return e
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !scalarEqual(v, w) {
			return false
		}
	}
	return true
}

// scalarEqual compares YAML option values. Nested maps and lists compare
// unequal so any change to them is reported.
func scalarEqual(a, b any) bool {
	switch a.(type) {
	case string, bool, int, int64, float64, nil:
		return a == b
	}
	return false
}
