// Package config provides policy file hot reload.
package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"admission/internal/admission/observability"
)

// Watcher re-reads the policy file on change and applies the new thresholds.
// Only tunable values are hot-reloadable; structural settings need a restart.
type Watcher struct {
	path   string
	apply  func(*PolicyFile)
	logger observability.Logger
}

// NewWatcher constructs a watcher. apply receives each validated reload.
func NewWatcher(path string, apply func(*PolicyFile), logger observability.Logger) *Watcher {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Watcher{path: path, apply: apply, logger: logger}
}

// Start watches until the context is cancelled. Reload failures keep the
// previous configuration and log a warning.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.path == "" || w.apply == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files rather than write in place.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("policy watcher error", map[string]any{"error": err.Error()})
		}
	}
}

func (w *Watcher) reload() {
	file, err := LoadPolicyFile(w.path)
	if err != nil {
		w.logger.Warn("policy reload rejected", map[string]any{
			"path":  w.path,
			"error": err.Error(),
		})
		return
	}
	w.apply(file)
	w.logger.Info("policy reloaded", map[string]any{"path": w.path})
}
