package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/desertthunder/cassette/internal/shared"
)

// DownloadWatcher drops library download rows when their files leave the downloads directory.
type DownloadWatcher struct {
	dir     string
	library PathForgetter
	logger  *log.Logger
	ready   chan struct{}
}

// NewDownloadWatcher creates a watcher for dir.
func NewDownloadWatcher(dir string, library PathForgetter, logger *log.Logger) *DownloadWatcher {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &DownloadWatcher{
		dir:     dir,
		library: library,
		logger:  shared.WithLogger(logger, "component", "download-watcher"),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the directory is being watched.
func (w *DownloadWatcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled.
//
// The directory is created when missing. Only the top level is watched, which is
// where the download service writes files.
func (w *DownloadWatcher) Run(ctx context.Context, prog chan<- ProgressUpdate) error {
	if w.library == nil {
		return fmt.Errorf("%w: library not initialized", shared.ErrServiceUnavailable)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create downloads directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching downloads", "dir", w.dir)
	sendProgress(prog, watchStartedUpdate(w.dir))
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event, prog)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
			sendProgress(prog, watchErrorUpdate(err))
		}
	}
}

func (w *DownloadWatcher) handle(event fsnotify.Event, prog chan<- ProgressUpdate) {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !shared.IsAudioFile(event.Name) {
		return
	}

	ids := w.forget(event.Name)
	if len(ids) == 0 {
		return
	}
	w.logger.Info("download removed", "path", event.Name, "tracks", ids)
	sendProgress(prog, watchForgotUpdate(event.Name, ids))
}

// forget drops rows stored under the plain path and under its file:// URL.
func (w *DownloadWatcher) forget(path string) []int64 {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	var ids []int64
	seen := make(map[string]bool)
	for _, candidate := range []string{path, abs, shared.FileURL(abs)} {
		if seen[candidate] {
			continue
		}
		seen[candidate] = true

		dropped, err := w.library.ForgetDownloadPath(candidate)
		if err != nil {
			w.logger.Warn("failed to forget download", "path", candidate, "error", err)
			continue
		}
		ids = append(ids, dropped...)
	}
	return ids
}
