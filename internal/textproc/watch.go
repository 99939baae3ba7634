package textproc

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"resumechat/internal/logger"
)

// Watcher reloads a processor's corrections whenever the rules file changes.
type Watcher struct {
	path      string
	processor *Processor
	log       *logger.Logger
	fs        *fsnotify.Watcher
	onReload  func(*Engine, error)
}

// NewWatcher starts watching the directory holding path. Editors often
// replace files instead of writing them, so the file itself is not watched.
func NewWatcher(path string, processor *Processor, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch rules directory for %q: %w", path, err)
	}
	return &Watcher{
		path:      filepath.Clean(path),
		processor: processor,
		log:       log.WithComponent("rules-watcher"),
		fs:        fsWatcher,
	}, nil
}

// OnReload registers a callback invoked after every reload attempt.
func (w *Watcher) OnReload(fn func(*Engine, error)) {
	w.onReload = fn
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("rules watcher error")
		}
	}
}

func (w *Watcher) reload() {
	engine, err := NewEngine(w.path)
	if err != nil {
		w.log.WithError(err).Warn("keeping previous corrections")
	} else {
		w.processor.SetEngine(engine)
		w.log.Info("corrections reloaded", logger.Fields("rules", engine.Len()))
	}
	if w.onReload != nil {
		w.onReload(engine, err)
	}
}
