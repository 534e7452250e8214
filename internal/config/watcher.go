package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultPollInterval is how often a [Watcher] re-checks the config file.
const DefaultPollInterval = 5 * time.Second

// Watcher polls a config file and reports edits through a callback, so the
// hot-reloadable tunables (log level, pipeline continuity settings, the
// finalize wait timeout) can change without restarting the server and
// interrupting live recordings.
//
// An edit that fails to parse or validate is logged and ignored; the last
// good configuration stays current. Polling compares the file's mtime first
// and its content digest second, so a touch without a content change never
// fires the callback.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu       sync.Mutex
	current  *Config
	modTime  time.Time
	digest   [sha256.Size]byte
	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption is a functional option for [NewWatcher].
type WatcherOption func(*Watcher)

// WithInterval overrides [DefaultPollInterval]. Non-positive values are
// ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. onChange runs outside the watcher's lock with the previous and
// the freshly loaded config; it may call [Watcher.Current]. A nil onChange
// still keeps Current up to date.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, digest, modTime, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.digest = digest
	w.modTime = modTime

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload applies one polling pass: mtime fast path, then digest comparison,
// then swap-and-notify when the content genuinely changed.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config reload: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	modTime := w.modTime
	w.mu.Unlock()

	if info.ModTime().Equal(modTime) {
		return
	}

	cfg, digest, newModTime, err := w.read()
	if err != nil {
		slog.Warn("config reload: keeping last good configuration",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if digest == w.digest {
		// Touched, not edited.
		w.modTime = newModTime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.digest = digest
	w.modTime = newModTime
	w.mu.Unlock()

	slog.Info("configuration reloaded", "path", w.path)

	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// read loads, parses, and validates the config file once, returning it with
// the file's content digest and modification time.
func (w *Watcher) read() (*Config, [sha256.Size]byte, time.Time, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, time.Time{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zero, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
