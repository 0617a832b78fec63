// Package watcher feeds the processing queue from the intake directory,
// combining filesystem events with a periodic reconcile scan so files are
// never lost to a missed event.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mediavault/mediavault/internal/config"
	"github.com/mediavault/mediavault/internal/processor"
	"github.com/mediavault/mediavault/internal/repository"
)

// Watcher watches the intake directory and enqueues supported files.
type Watcher struct {
	importDir string
	queue     repository.QueueRepository
	cfg       config.WatcherConfig
	logger    *slog.Logger
}

// New creates a Watcher over importDir.
func New(importDir string, queue repository.QueueRepository, cfg config.WatcherConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		importDir: importDir,
		queue:     queue,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "watcher")),
	}
}

// ReconcileOnce walks the intake tree and enqueues every supported file,
// including files in subdirectories. Enqueueing is idempotent, so files
// already queued are no-ops. Returns the number of supported files submitted.
func (w *Watcher) ReconcileOnce(ctx context.Context) (int, error) {
	submitted, err := w.enqueueTree(ctx, w.importDir)
	if err != nil {
		return submitted, fmt.Errorf("scanning intake dir %s: %w", w.importDir, err)
	}
	w.logger.Debug("reconcile scan finished", slog.Int("submitted", submitted))
	return submitted, nil
}

// enqueueTree enqueues every supported file under root.
func (w *Watcher) enqueueTree(ctx context.Context, root string) (int, error) {
	submitted := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		mediaType, ok := processor.ClassifyPath(path)
		if !ok {
			return nil
		}
		if err := w.queue.Enqueue(ctx, path, mediaType); err != nil {
			// Skip this file; the next scan retries it.
			w.logger.Error("failed to enqueue during scan",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return nil
		}
		submitted++
		return nil
	})
	return submitted, err
}

// watchTree registers root and every subdirectory below it for events.
func (w *Watcher) watchTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(path)
	})
}

// Run watches for filesystem events and runs the periodic reconcile scan
// until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.watchTree(fsw, w.importDir); err != nil {
		return fmt.Errorf("watching %s: %w", w.importDir, err)
	}
	w.logger.Info("watching intake directory", slog.String("dir", w.importDir))

	ticker := time.NewTicker(w.cfg.TickGranularity)
	defer ticker.Stop()

	nextScan := time.Now().Add(w.cfg.ReconcileInterval)
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed")
			}
			w.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed")
			}
			w.logger.Error("fsnotify error", slog.String("error", err.Error()))

		case now := <-ticker.C:
			if now.Before(nextScan) {
				continue
			}
			if _, err := w.ReconcileOnce(ctx); err != nil {
				consecutiveErrors++
				delay := w.scanBackoff(consecutiveErrors)
				w.logger.Error("reconcile scan failed",
					slog.Int("consecutive_errors", consecutiveErrors),
					slog.Duration("retry_in", delay),
					slog.String("error", err.Error()),
				)
				if consecutiveErrors >= w.cfg.BackoffFloorAfter {
					consecutiveErrors = 0
				}
				nextScan = now.Add(delay)
				continue
			}
			consecutiveErrors = 0
			nextScan = now.Add(w.cfg.ReconcileInterval)
		}
	}
}

// handleEvent enqueues newly created supported files. New directories are
// added to the watch set and their existing content enqueued, since files
// moved in with them never raise their own events. Failures are only
// logged; the reconcile scan picks the file up later.
func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := w.watchTree(fsw, event.Name); err != nil {
			w.logger.Error("failed to watch new directory",
				slog.String("dir", event.Name),
				slog.String("error", err.Error()),
			)
		}
		if _, err := w.enqueueTree(ctx, event.Name); err != nil {
			w.logger.Error("failed to scan new directory",
				slog.String("dir", event.Name),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	mediaType, ok := processor.ClassifyPath(event.Name)
	if !ok {
		return
	}
	if err := w.queue.Enqueue(ctx, event.Name, mediaType); err != nil {
		w.logger.Error("failed to enqueue new file",
			slog.String("path", event.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Info("new file queued",
		slog.String("path", event.Name),
		slog.String("file_type", string(mediaType)),
	)
}

// scanBackoff grows linearly with consecutive failures and caps at the
// configured maximum once the failure streak persists.
func (w *Watcher) scanBackoff(consecutiveErrors int) time.Duration {
	if consecutiveErrors >= w.cfg.BackoffFloorAfter {
		return w.cfg.BackoffMax
	}
	return time.Duration(consecutiveErrors) * w.cfg.BackoffStep
}
