// Package watch provides an fsnotify-driven trigger that re-runs an
// incremental indexer slice whenever a watched directory tree
// changes. The indexer re-derives its own exclude list on every
// slice, so the watcher only needs to know when to re-trigger, not
// what changed.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// IndexFunc runs one incremental indexing pass over roots.
type IndexFunc func(ctx context.Context, roots []string) error

// Config controls debounce timing.
type Config struct {
	// Debounce is how long to wait after the last observed event
	// before triggering a reindex, coalescing bursts of saves.
	Debounce time.Duration
}

// DefaultConfig returns the stock debounce window.
func DefaultConfig() Config {
	return Config{Debounce: 500 * time.Millisecond}
}

// Watcher watches a set of root directories and calls reindex after
// each debounced burst of filesystem activity.
type Watcher struct {
	fsw     *fsnotify.Watcher
	roots   []string
	reindex IndexFunc
	cfg     Config
	logger  *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Watcher over roots, recursively registering every
// existing subdirectory with fsnotify.
func New(roots []string, reindex IndexFunc, cfg Config, logger *slog.Logger) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: open fsnotify watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, roots: roots, reindex: reindex, cfg: cfg, logger: logger}
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.fsw.Add(path); err != nil {
				return fmt.Errorf("watch: register %s: %w", path, err)
			}
		}
		return nil
	})
}

// Run blocks, debouncing fsnotify events into reindex calls, until ctx
// is cancelled or the watcher's event channel closes.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err != nil {
						w.logger.Warn("watch: register new directory", "path", event.Name, "error", err)
					}
				}
			}
			w.scheduleReindex(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch: fsnotify error", "error", err)
		}
	}
}

// scheduleReindex (re)arms a debounce timer that fires reindex after
// cfg.Debounce has elapsed since the most recent event.
func (w *Watcher) scheduleReindex(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.logger.Info("watch: change detected, reindexing", "roots", w.roots)
		if err := w.reindex(ctx, w.roots); err != nil {
			w.logger.Error("watch: reindex failed", "error", err)
		}
	})
}

// Close releases the underlying fsnotify watcher. Safe to call after
// Run has already returned.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
