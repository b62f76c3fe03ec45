package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bemo-assistant/bemo/internal/config"
)

const watcherBaseYAML = `
server:
  log_level: info
providers:
  llm:
    name: ollama
    model: tinyllama:chat
assistant:
  temperature: 0.6
`

const watcherNewModelYAML = `
server:
  log_level: debug
providers:
  llm:
    name: ollama
    model: llama3
assistant:
  temperature: 0.6
`

const watcherBrokenYAML = `
server:
  log_level: bananas
`

type change struct {
	old, new *config.Config
	diff     config.ConfigDiff
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

// bumpMtime moves the file's mtime forward so the next poll re-reads it
// even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	ts := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

// watch starts a fast-polling watcher on path and returns the channel its
// changes arrive on.
func watch(t *testing.T, path string, opts ...config.WatcherOption) (*config.Watcher, <-chan change) {
	t.Helper()
	changes := make(chan change, 4)
	opts = append(opts, config.WithInterval(20*time.Millisecond))
	w, err := config.NewWatcher(path, func(old, new *config.Config, d config.ConfigDiff) {
		changes <- change{old: old, new: new, diff: d}
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	})
	return w, changes
}

func expectNoChange(t *testing.T, changes <-chan change) {
	t.Helper()
	select {
	case c := <-changes:
		t.Fatalf("unexpected change: %+v", c.diff)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherBaseYAML)

	w, _ := watch(t, path)
	if got := w.Current().Providers.LLM.Model; got != "tinyllama:chat" {
		t.Errorf("model = %q, want tinyllama:chat", got)
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestWatcher_ReportsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherBaseYAML)
	w, changes := watch(t, path)

	writeFile(t, path, watcherNewModelYAML)
	bumpMtime(t, path)

	var c change
	select {
	case c = <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported")
	}
	if c.old.Server.LogLevel != config.LogInfo || c.new.Server.LogLevel != config.LogDebug {
		t.Errorf("log level %q -> %q, want info -> debug", c.old.Server.LogLevel, c.new.Server.LogLevel)
	}
	if !c.diff.LogLevelChanged || !c.diff.AssistantChanged || len(c.diff.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want log level and assistant changes only", c.diff)
	}
	if got := w.Current().Providers.LLM.Model; got != "llama3" {
		t.Errorf("Current model = %q, want llama3", got)
	}
}

func TestWatcher_BrokenEditKeepsConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherBaseYAML)
	w, changes := watch(t, path)

	writeFile(t, path, watcherBrokenYAML)
	bumpMtime(t, path)
	expectNoChange(t, changes)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current log level = %q, want the previous info", got)
	}
}

func TestWatcher_SameBytesDoNotFire(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherBaseYAML)
	_, changes := watch(t, path)

	writeFile(t, path, watcherBaseYAML)
	bumpMtime(t, path)
	expectNoChange(t, changes)
}

func TestWatcher_LegacySettings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, config.LegacyFileName)
	s := config.DefaultLegacySettings()
	if err := config.SaveLegacy(path, s); err != nil {
		t.Fatalf("SaveLegacy: %v", err)
	}
	w, changes := watch(t, path, config.WithDecoder(config.DecodeLegacy(dir)))
	if got := w.Current().Server.DataDir; got != dir {
		t.Errorf("data dir = %q, want %q", got, dir)
	}

	s.OllamaModel = "llama3"
	if err := config.SaveLegacy(path, s); err != nil {
		t.Fatalf("SaveLegacy: %v", err)
	}
	bumpMtime(t, path)

	select {
	case c := <-changes:
		if c.new.Providers.LLM.Model != "llama3" {
			t.Errorf("model = %q, want llama3", c.new.Providers.LLM.Model)
		}
		if !c.diff.AssistantChanged {
			t.Errorf("diff = %+v, want an assistant change", c.diff)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change reported for settings.json")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherBaseYAML)
	w, err := config.NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
