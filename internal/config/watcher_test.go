package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/solinvox/medscribe/internal/config"
)

const watcherBaseYAML = `
server:
  log_level: info
diarizer:
  base_url: "https://diarize.example.com"
pipeline:
  match_threshold: 0.5
`

// Raises the continuity threshold, one of the hot-reloadable tunables.
const watcherTunedYAML = `
server:
  log_level: info
diarizer:
  base_url: "https://diarize.example.com"
pipeline:
  match_threshold: 0.7
`

const watcherBrokenYAML = `
server:
  log_level: shouting
`

// writeConfig writes content to a fresh temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewriteConfig(t, path, content)
	return path
}

func rewriteConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, watcherBaseYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.Pipeline.MatchThreshold != 0.5 {
		t.Errorf("match_threshold = %v, want 0.5", cfg.Pipeline.MatchThreshold)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/config.yaml", nil); err == nil {
		t.Fatal("NewWatcher with a missing file returned nil error")
	}
}

func TestWatcher_ReloadsEditedTunable(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, watcherBaseYAML)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	reloaded := make(chan struct{}, 1)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewriteConfig(t, path, watcherTunedYAML)

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("edit was never reported")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld == nil || gotNew == nil {
		t.Fatal("callback received nil configs")
	}
	if gotOld.Pipeline.MatchThreshold != 0.5 {
		t.Errorf("old match_threshold = %v, want 0.5", gotOld.Pipeline.MatchThreshold)
	}
	if gotNew.Pipeline.MatchThreshold != 0.7 {
		t.Errorf("new match_threshold = %v, want 0.7", gotNew.Pipeline.MatchThreshold)
	}
	if cur := w.Current(); cur.Pipeline.MatchThreshold != 0.7 {
		t.Errorf("Current() match_threshold = %v, want 0.7", cur.Pipeline.MatchThreshold)
	}
}

func TestWatcher_BadEditKeepsLastGoodConfig(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, watcherBaseYAML)

	var mu sync.Mutex
	calls := 0

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewriteConfig(t, path, watcherBrokenYAML)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 0 {
		t.Errorf("callback fired %d times for an invalid edit, want 0", got)
	}
	if cur := w.Current(); cur.Server.LogLevel != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the pre-edit %q", cur.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_TouchWithoutEdit(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, watcherBaseYAML)

	var mu sync.Mutex
	calls := 0

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Bump the mtime only; the content digest is unchanged.
	time.Sleep(100 * time.Millisecond)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 0 {
		t.Errorf("callback fired %d times for a touch, want 0", got)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, watcherBaseYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	w.Stop()
	w.Stop()
	w.Stop()
}
