package modloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherRunning is returned when Start is called twice.
var ErrWatcherRunning = errors.New("config watcher already running")

// ConfigWatcher re-reads a config file whenever it changes and applies it to
// a loader. The containing directory is watched so editors that replace the
// file on save are handled.
type ConfigWatcher struct {
	path     string
	loader   *Loader
	logger   Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher for path. Call Start to begin watching.
func NewConfigWatcher(path string, loader *Loader) *ConfigWatcher {
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		loader:   loader,
		logger:   loader.Logger(),
		debounce: 100 * time.Millisecond,
	}
}

// Start begins watching until ctx is done or Stop is called.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return ErrWatcherRunning
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.watcher = watcher
	w.done = make(chan struct{})
	go w.run(ctx, watcher, w.done)

	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher, w.done = nil, nil
	w.mu.Unlock()

	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close file watcher: %w", err)
	}
	return nil
}

func (w *ConfigWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "path", w.path, "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfigFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload config", "path", w.path, "error", err)
		return
	}
	if err := w.loader.ApplyConfig(cfg); err != nil {
		w.logger.Error("Failed to apply reloaded config", "path", w.path, "error", err)
		return
	}
	w.logger.Info("Config reloaded", "path", w.path)
}
