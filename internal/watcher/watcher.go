package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/source"
)

// Watcher monitors the local document root and triggers an incremental
// sync after changes settle. Directories are watched recursively;
// ignored paths and dot-directories never trigger.
type Watcher struct {
	root      string
	ignore    *source.IgnoreMatcher
	logger    mirror.Logger
	window    time.Duration
	trigger   func(ctx context.Context)
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
}

// New creates a Watcher over root. trigger is invoked once per settled
// burst of changes.
func New(root string, ignore *source.IgnoreMatcher, logger mirror.Logger, window time.Duration, trigger func(ctx context.Context)) *Watcher {
	if logger == nil {
		logger = mirror.NewNopLogger()
	}
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Watcher{
		root:    root,
		ignore:  ignore,
		logger:  logger,
		window:  window,
		trigger: trigger,
	}
}

// Start begins watching. It blocks until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	defer fsw.Close()

	w.debouncer = NewDebouncer(w.window, func() {
		w.trigger(ctx)
	})
	defer w.debouncer.Stop()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "root", w.root)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if w.shouldIgnore(ev.Name) {
		return
	}

	// New directories need their own watches.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.debouncer.Touch()
}

// addRecursive walks root and watches every directory that is not
// ignored.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") && base != "." {
		return true
	}
	if w.ignore != nil && w.ignore.Match(rel) {
		return true
	}
	return false
}
