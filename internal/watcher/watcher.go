// Package watcher reports file changes under the projects root as
// workspace file events.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"lsgw/internal/config"
	"lsgw/internal/protocol"
	"lsgw/internal/slogutil"
)

// Event is one change to a workspace path.
type Event struct {
	Type      protocol.FileChangeType
	Path      string
	Timestamp time.Time
}

// ChangeHandler is called with each debounced batch of changes.
type ChangeHandler func(events []Event)

// Watcher watches a directory tree with fsnotify. New directories are
// picked up as they appear.
type Watcher struct {
	root    string
	config  config.WatcherConfig
	logger  *slog.Logger
	handler ChangeHandler

	fsw   *fsnotify.Watcher
	batch *BatchDebouncer

	mu       sync.RWMutex
	watching bool
	dirs     int
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher for root. Paths in events are relative to root,
// with a leading slash.
func New(root string, cfg config.WatcherConfig, logger *slog.Logger, handler ChangeHandler) *Watcher {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	w := &Watcher{
		root:    filepath.Clean(root),
		config:  cfg,
		logger:  logger,
		handler: handler,
		done:    make(chan struct{}),
	}
	w.batch = NewBatchDebouncer(time.Duration(cfg.DebounceMs)*time.Millisecond, w.emit)
	return w
}

// Start begins watching. It is a no-op when the watcher is disabled.
// Cancelling ctx stops event processing and drops the pending batch; Stop
// emits it instead.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.config.Enabled {
		w.logger.Info("File watcher is disabled")
		return nil
	}

	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fsw = fsw
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root, false); err != nil {
		_ = fsw.Close()
		return err
	}

	w.logger.Info("Starting file watcher",
		"root", w.root,
		"debounceMs", w.config.DebounceMs,
		"directories", w.Stats()["directories"],
	)

	w.wg.Add(1)
	go w.processEvents(ctx)
	return nil
}

// Stop stops watching and emits pending events.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.RLock()
		fsw := w.fsw
		w.mu.RUnlock()
		if fsw != nil {
			_ = fsw.Close()
		}
		w.wg.Wait()
		w.batch.Flush()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		w.logger.Info("File watcher stopped")
	})
}

// addRecursive watches dir and its subdirectories. With report set, the
// files found are reported as created, so files written into a new
// directory before it was watched are not lost.
func (w *Watcher) addRecursive(dir string, report bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if w.IsIgnored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if report {
				w.add(protocol.FileCreated, path)
			}
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("Cannot watch directory", "path", path, "error", err.Error())
			return nil
		}
		w.mu.Lock()
		w.dirs++
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			w.batch.Cancel()
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if w.IsIgnored(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name, true)
			return
		}
		w.add(protocol.FileCreated, ev.Name)
	case ev.Has(fsnotify.Write):
		w.add(protocol.FileChanged, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// a renamed path is gone; its new name arrives as a create
		w.add(protocol.FileDeleted, ev.Name)
	}
}

func (w *Watcher) add(t protocol.FileChangeType, path string) {
	ws, ok := w.workspacePath(path)
	if !ok {
		return
	}
	w.batch.Add(Event{Type: t, Path: ws, Timestamp: time.Now()})
}

func (w *Watcher) emit(events []Event) {
	w.logger.Debug("File changes detected", "eventCount", len(events))
	if w.handler != nil {
		w.handler(events)
	}
}

func (w *Watcher) workspacePath(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return "/" + filepath.ToSlash(rel), true
}

// IsIgnored reports whether a path matches an ignore pattern. Patterns are
// matched against every path element below the root.
func (w *Watcher) IsIgnored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, elem := range strings.Split(filepath.ToSlash(rel), "/") {
		for _, pattern := range w.config.Ignore {
			if elem == pattern {
				return true
			}
			if matched, _ := filepath.Match(pattern, elem); matched {
				return true
			}
		}
	}
	return false
}

// Stats returns watcher statistics
func (w *Watcher) Stats() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return map[string]interface{}{
		"enabled":        w.config.Enabled,
		"watching":       w.watching,
		"directories":    w.dirs,
		"debounceMs":     w.config.DebounceMs,
		"ignorePatterns": len(w.config.Ignore),
		"pendingEvents":  w.batch.EventCount(),
	}
}
