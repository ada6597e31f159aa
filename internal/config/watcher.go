package config

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and reloads it on change.
type Watcher struct {
	path     string
	onReload func(*Config, error)
	current  *Config
	fsw      *fsnotify.Watcher
	mu       sync.RWMutex
	reloads  atomic.Uint32
}

// NewWatcher loads the config at path and starts watching it. onReload is
// called after every reload attempt with either the new config or the error.
func NewWatcher(path string, onReload func(*Config, error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch config file %s: %w", path, err)
	}

	watcher := &Watcher{
		path:     path,
		onReload: onReload,
		current:  cfg,
		fsw:      fsw,
	}

	go watcher.watch()

	return watcher, nil
}

// watch watches for configuration changes.
func (cw *Watcher) watch() {
	var timer *time.Timer
	const debounce = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-cw.fsw.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer != nil {
					timer.Stop()
				}

				timer = time.AfterFunc(debounce, cw.reload)
			}

		case err, ok := <-cw.fsw.Errors:
			if !ok {
				return
			}

			slog.Error("Watcher error", "error", err)
		}
	}
}

// reload reloads the config file.
func (cw *Watcher) reload() {
	count := cw.reloads.Add(1)
	slog.Info("Reloading config file", "path", cw.path, "count", count)

	cfg, err := Load(cw.path)

	cw.mu.Lock()
	if err == nil {
		cw.current = cfg
	}
	onReload := cw.onReload
	cw.mu.Unlock()

	if err != nil {
		slog.Error("Failed to reload config", "error", err)
	} else {
		slog.Info("Config reloaded successfully", "count", count)
	}

	if onReload != nil {
		onReload(cfg, err)
	}
}

// OnReload replaces the callback invoked after each reload attempt.
func (cw *Watcher) OnReload(fn func(*Config, error)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.onReload = fn
}

// Snapshot returns the current config snapshot (thread-safe).
func (cw *Watcher) Snapshot() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()

	return cw.current
}

// ReloadCount returns the number of times the config has been reloaded.
func (cw *Watcher) ReloadCount() uint32 {
	return cw.reloads.Load()
}

// Close stops watching.
func (cw *Watcher) Close() error {
	return cw.fsw.Close()
}
