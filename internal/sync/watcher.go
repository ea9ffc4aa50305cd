package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Notifier receives coalesced change signals from the watcher. *Trigger
// is the real implementation.
type Notifier interface {
	Notify()
}

// Watcher subscribes to the local sync root recursively and forwards a
// "something changed" signal for every relevant event. Debouncing is the
// Trigger's job; the watcher only filters and forwards.
type Watcher struct {
	root     string
	notifier Notifier
	logger   *slog.Logger

	// newWatcher is injectable for tests.
	newWatcher func() (*fsnotify.Watcher, error)
}

// NewWatcher creates a Watcher for the given root directory.
func NewWatcher(root string, notifier Notifier, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:       root,
		notifier:   notifier,
		logger:     logger,
		newWatcher: fsnotify.NewWatcher,
	}
}

// Run watches until the context is canceled. The root and every
// subdirectory are registered; directories created later are added as
// their create events arrive, so changes deep in fresh trees are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("sync: creating filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}

	w.logger.Info("filesystem watcher started", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}

			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleEvent filters an event and forwards a change signal when it
// concerns synced content.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if ignoredPath(event.Name) {
		return
	}

	// Newly created directories must join the watch set before anything
	// inside them changes.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, event.Name); err != nil {
				w.logger.Warn("watching new directory failed",
					slog.String("path", event.Name),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	w.logger.Debug("filesystem event",
		slog.String("path", event.Name),
		slog.String("op", event.Op.String()),
	)

	w.notifier.Notify()
}

// addRecursive registers dir and all its subdirectories, skipping hidden
// trees.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Races with deletions are expected; skip what disappeared.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("sync: registering watches under %s: %w", dir, err)
	}

	return nil
}

// ignoredPath reports whether an event path is outside sync scope:
// hidden files and directories, and in-flight partial downloads.
func ignoredPath(p string) bool {
	if strings.HasSuffix(p, partialSuffix) {
		return true
	}

	return strings.Contains(p, string(filepath.Separator)+".")
}
