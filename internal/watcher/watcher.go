// Package watcher re-imports repository export documents when they change
// on disk.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"etlrepo/internal/service"
)

// Importer imports one export document
type Importer interface {
	ImportFile(ctx context.Context, path string, opts service.ImportOptions, fb service.Feedback) (*service.ImportResult, error)
}

// ImportFunc is called after every import triggered by the watcher
type ImportFunc func(path string, result *service.ImportResult, err error)

// Watcher watches export files, or directories of them, and imports a file
// once it has stopped changing for the debounce interval.
type Watcher struct {
	paths    []string
	importer Importer
	opts     service.ImportOptions
	debounce time.Duration
	logger   *zap.Logger
	onImport ImportFunc
}

// New creates a watcher over paths. A path naming a directory matches
// every *.xml file in it.
func New(importer Importer, opts service.ImportOptions, paths ...string) *Watcher {
	return &Watcher{
		paths:    paths,
		importer: importer,
		opts:     opts,
		debounce: 500 * time.Millisecond,
		logger:   zap.NewNop(),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// WithLogger sets the logger
func (w *Watcher) WithLogger(logger *zap.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// OnImport registers a callback run after each import
func (w *Watcher) OnImport(fn ImportFunc) *Watcher {
	w.onImport = fn
	return w
}

// Watch blocks until ctx is cancelled. Imports run one at a time on the
// calling goroutine.
func (w *Watcher) Watch(ctx context.Context) error {
	changed := make(chan string, 16)
	errc := make(chan error, 1)
	go func() {
		errc <- w.watchFiles(ctx, func(path string) {
			select {
			case changed <- path:
			case <-ctx.Done():
			}
		})
	}()

	for {
		select {
		case path := <-changed:
			w.importFile(ctx, path)
		case err := <-errc:
			return err
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) {
	w.logger.Info("export file changed, importing", zap.String("path", path))
	fb := service.NewLogFeedback(w.logger, w.opts.Overwrite == service.OverwriteAlways, w.opts.ContinueOnError)
	result, err := w.importer.ImportFile(ctx, path, w.opts, fb)
	if err != nil {
		w.logger.Error("import failed", zap.String("path", path), zap.Error(err))
	} else {
		w.logger.Info("import finished", zap.String("path", path), zap.String("summary", result.Summary()))
	}
	if w.onImport != nil {
		w.onImport(path, result, err)
	}
}

// watchFiles calls onChange for a matching file once writes to it have
// settled.
func (w *Watcher) watchFiles(ctx context.Context, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory containing each file.
	// This handles cases where the file is replaced (e.g., by editors)
	watchedDirs := make(map[string]bool)
	fileSet := make(map[string]bool)
	dirSet := make(map[string]bool)

	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		dir := filepath.Dir(absPath)
		if info, err := os.Stat(absPath); err == nil && info.IsDir() {
			dir = absPath
			dirSet[absPath] = true
		} else {
			fileSet[absPath] = true
		}

		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
				continue
			}
			watchedDirs[dir] = true
		}
		w.logger.Info("watching for changes", zap.String("path", absPath))
	}

	var mu sync.Mutex
	debounceTimers := make(map[string]*time.Timer)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if !fileSet[absPath] && !(dirSet[filepath.Dir(absPath)] && strings.EqualFold(filepath.Ext(absPath), ".xml")) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				mu.Lock()
				if timer, exists := debounceTimers[absPath]; exists {
					timer.Stop()
				}
				debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
					mu.Lock()
					delete(debounceTimers, absPath)
					mu.Unlock()
					onChange(absPath)
				})
				mu.Unlock()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ctx.Done():
			mu.Lock()
			for _, timer := range debounceTimers {
				timer.Stop()
			}
			mu.Unlock()
			return ctx.Err()
		}
	}
}
