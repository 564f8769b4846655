package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/logger"
)

// Watcher reloads a config file when it changes and hands every valid
// result to a callback. Invalid files are logged and ignored, so the
// previous configuration stays in effect. Empty files are treated as a save
// in progress and skipped.
type Watcher struct {
	path     string
	logger   logger.Logger
	onChange func(*Config)
	applied  []byte
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, log logger.Logger, onChange func(*Config)) *Watcher {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	w := &Watcher{
		path:     filepath.Clean(path),
		logger:   log.Named("config"),
		onChange: onChange,
	}

	if data, err := os.ReadFile(w.path); err == nil {
		w.applied = data
	}

	return w
}

// Run watches until ctx is done. The parent directory is watched so
// editors that replace the file by rename are followed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return irqerrors.ErrConfigError("failed to create file watcher", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return irqerrors.ErrConfigError("failed to watch directory "+dir, err)
	}

	w.logger.Info("watching config file", logger.String("path", w.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			w.handle(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.Error("config watch error", logger.String("path", w.path), logger.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("cannot read changed config", logger.String("path", w.path), logger.Error(err))
		return
	}

	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(data, w.applied) {
		return
	}

	cfg, err := load(w.path, data)
	if err != nil {
		w.logger.Warn("ignoring invalid config change", logger.String("path", w.path), logger.Error(err))
		return
	}

	w.applied = data

	w.logger.Info("config reloaded", logger.String("path", w.path))
	w.onChange(cfg)
}
