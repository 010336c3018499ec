package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the orchestrator's YAML configuration file on change and
// emits the new value on a channel. It watches the config file's parent
// directory rather than the file itself (directory watches survive editors
// that replace the file via rename-on-save) and filters events down to the
// exact path.
type Watcher struct {
	configPath string
	getenv     func(string) string
	watcher    *fsnotify.Watcher

	mu         sync.Mutex
	isWatching bool
}

// NewWatcher opens an fsnotify watcher for configPath's parent directory.
// It does not start watching until Watch is called.
func NewWatcher(configPath string, getenv func(string) string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	return &Watcher{configPath: configPath, getenv: getenv, watcher: w}, nil
}

// Watch begins watching and returns a channel of successfully reloaded
// configs and a channel of reload errors. Both channels close when ctx is
// cancelled or Stop is called. Calling Watch twice is a no-op returning
// closed channels.
func (w *Watcher) Watch(ctx context.Context) (<-chan OrchestratorConfig, <-chan error) {
	changes := make(chan OrchestratorConfig, 10)
	errs := make(chan error, 10)

	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		close(changes)
		close(errs)
		return changes, errs
	}

	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Unlock()
		errs <- fmt.Errorf("watch config directory %s: %w", dir, err)
		close(changes)
		close(errs)
		return changes, errs
	}
	w.isWatching = true
	w.mu.Unlock()

	absPath, err := filepath.Abs(w.configPath)
	if err != nil {
		absPath = w.configPath
	}

	go func() {
		defer close(changes)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				eventPath, err := filepath.Abs(event.Name)
				if err != nil {
					eventPath = event.Name
				}
				if eventPath != absPath {
					continue
				}
				if event.Op&fsnotify.Write != fsnotify.Write {
					continue
				}
				if _, err := os.Stat(w.configPath); err != nil {
					continue
				}
				cfg, err := LoadOrchestratorConfig(w.configPath, w.getenv)
				if err != nil {
					errs <- err
					continue
				}
				changes <- cfg
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				errs <- err
			}
		}
	}()

	return changes, errs
}

// Stop closes the underlying fsnotify watcher. Idempotent.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	return w.watcher.Close()
}
