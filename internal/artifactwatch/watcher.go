// Package artifactwatch triggers a verification run whenever freshly built
// package files land in the artifact directory.
package artifactwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault covers a build dropping several package files in quick
// succession: one run fires after the directory goes quiet.
const debounceDefault = 2 * time.Second

// pollDefault is the polling interval when fsnotify is unavailable.
const pollDefault = 5 * time.Second

// RunFunc executes one verification run.
type RunFunc func(ctx context.Context) error

// Config holds watcher configuration.
type Config struct {
	Dir      string        // artifact directory to watch
	Debounce time.Duration // quiet period before triggering; defaults to debounceDefault
	PollMode bool          // fall back to polling instead of fsnotify
	Run      RunFunc
}

// Watcher waits for new artifacts and fires the run function.
type Watcher struct {
	cfg Config

	mu    sync.Mutex
	timer *time.Timer

	// runMu serializes runs: the host package manager is not reentrant.
	runMu sync.Mutex
}

// New creates a watcher with validated configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = debounceDefault
	}
	return &Watcher{cfg: cfg}, nil
}

// Watch blocks until ctx is canceled, triggering a run each time new package
// files appear and the directory has gone quiet.
func (w *Watcher) Watch(ctx context.Context) error {
	if w.cfg.PollMode {
		return w.runPollWatcher(ctx)
	}
	return w.runFSWatcher(ctx)
}

// runFSWatcher watches the artifact directory using fsnotify.
func (w *Watcher) runFSWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.cfg.Dir); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}

	slog.Info("watching for new artifacts", "mode", "fsnotify", "dir", w.cfg.Dir)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			slog.Info("watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isArtifact(filepath.Base(event.Name)) {
				continue
			}
			slog.Debug("artifact changed", "file", filepath.Base(event.Name))
			w.arm(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		}
	}
}

// runPollWatcher watches the artifact directory by comparing listings.
func (w *Watcher) runPollWatcher(ctx context.Context) error {
	slog.Info("watching for new artifacts", "mode", "poll", "dir", w.cfg.Dir, "interval", pollDefault)

	seen, err := w.listing()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(pollDefault)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			slog.Info("watcher stopped")
			return nil

		case <-ticker.C:
			current, err := w.listing()
			if err != nil {
				slog.Warn("poll error", "error", err)
				continue
			}
			if changed(seen, current) {
				seen = current
				w.arm(ctx)
			}
		}
	}
}

// arm starts (or restarts) the debounce timer.
func (w *Watcher) arm(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.runMu.Lock()
		defer w.runMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		slog.Info("artifacts settled, starting verification run")
		if err := w.cfg.Run(ctx); err != nil {
			slog.Error("verification run failed", "error", err)
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// listing maps artifact names to their modification times.
func (w *Watcher) listing() (map[string]time.Time, error) {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact dir: %w", err)
	}
	m := make(map[string]time.Time)
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		m[e.Name()] = info.ModTime()
	}
	return m, nil
}

func changed(old, current map[string]time.Time) bool {
	if len(old) != len(current) {
		return true
	}
	for name, mtime := range current {
		if prev, ok := old[name]; !ok || !prev.Equal(mtime) {
			return true
		}
	}
	return false
}

func isArtifact(name string) bool {
	return strings.HasSuffix(name, ".rpm")
}
