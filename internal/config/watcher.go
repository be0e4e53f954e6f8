package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/clipd/internal/ports"
)

// DefaultDebounceDelay is how long the watcher waits after the last change
// before reloading.
const DefaultDebounceDelay = 100 * time.Millisecond

// Watcher reloads the config file into a Handle whenever it changes.
// A reload that fails to parse or validate is logged and the previous
// config stays live.
type Watcher struct {
	loader   Loader
	handle   *Handle
	logger   ports.Logger
	delay    time.Duration
	onReload func(*Config)

	mu       sync.Mutex
	debounce *time.Timer
}

// NewWatcher creates a watcher for loader.Path.
func NewWatcher(loader Loader, handle *Handle, logger ports.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		handle: handle,
		logger: logger,
		delay:  DefaultDebounceDelay,
	}
}

// OnReload registers fn to run after each successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.onReload = fn
}

// Run watches the config file's directory until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.loader.Path == "" {
		return nil
	}
	dir := filepath.Dir(w.loader.Path)
	name := filepath.Base(w.loader.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("config watcher: failed to create watcher", ports.Err(err))
		return nil
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		w.logger.Warn("config watcher: directory not watchable, hot reload disabled",
			ports.String("dir", dir), ports.Err(err))
		return nil
	}
	w.logger.Debug("config watcher started", ports.String("path", w.loader.Path))

	defer w.stopDebounce()
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config watcher: watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) debounceReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.delay, w.Reload)
}

func (w *Watcher) stopDebounce() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
}

// Reload loads the file now and swaps it into the handle on success.
func (w *Watcher) Reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Error("config reload rejected, keeping previous config", ports.Err(err))
		return
	}
	w.handle.Store(cfg)
	w.logger.Info("config reloaded", ports.Strings("boards", cfg.BoardNames()))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
