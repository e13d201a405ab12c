package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher hot-reloads the configuration when the file named by
// CONFIG_FILE changes. Reloading is only active in development; in any
// other environment the watcher is inert and just hands out the initial
// config.
type Watcher struct {
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)

	logger  *zap.Logger
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher creates a watcher around initial
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		config: initial,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	path := os.Getenv("CONFIG_FILE")
	if !initial.IsDevelopment() || path == "" {
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// the watch on the file itself.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	w.watcher = fsWatcher
	go w.watchLoop(path)

	logger.Info("config hot reload enabled", zap.String("file", path))
	return w, nil
}

// Get returns the current configuration
func (w *Watcher) Get() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnChange registers a callback invoked after every successful reload
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

// Stop shuts the watcher down
func (w *Watcher) Stop() {
	if w.watcher != nil {
		close(w.stopCh)
		w.watcher.Close()
	}
}

func (w *Watcher) watchLoop(path string) {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Error("config reload rejected", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = cfg
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded",
		zap.String("log_level", cfg.LogLevel),
		zap.Bool("cors", cfg.Features.EnableCORS))

	for _, fn := range callbacks {
		go fn(cfg)
	}
}
