package schemas

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dtokit/internal/storage"
)

// EventCallback is called after a watcher-driven registry change.
// kind is one of KindCreated, KindUpdated, KindDeleted; file is relative to
// the schema directory.
type EventCallback func(kind string, file string)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the schema directory and keeps reg in
// sync until ctx is cancelled. New subdirectories are watched as they
// appear. Renames schedule a debounced reconciliation pass.
func Watch(ctx context.Context, reg *Registry, store storage.Provider, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, dir); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("dir", dir))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, file string) {
		if cb != nil && kind != "" {
			cb(kind, file)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(reg, store, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may land in the directory before it is watched.
					scheduleReconcile()
					continue
				}
			}

			if !storage.IsSchemaFile(ev.Name) {
				continue
			}
			rel, relErr := filepath.Rel(dir, ev.Name)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind, loadErr := loadFile(reg, store, rel, logger)
				if loadErr != nil {
					logger.Warn("watcher: load failed", slog.String("file", rel), slog.String("error", loadErr.Error()))
					continue
				}
				notify(kind, rel)
				reclaim(reg, store, logger, notify)

			case ev.Op&fsnotify.Remove != 0:
				if reg.Checksum(rel) == "" {
					continue
				}
				reg.Remove(rel)
				logger.Debug("watcher: removed", slog.String("file", rel))
				notify(KindDeleted, rel)
				reclaim(reg, store, logger, notify)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new path arrives as
				// its own Create when it stays inside a watched directory.
				if reg.Checksum(rel) != "" {
					reg.Remove(rel)
					notify(KindDeleted, rel)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile drops schemas whose file is gone and loads files that are new
// or changed on disk.
func reconcile(reg *Registry, store storage.Provider, logger *slog.Logger, notify EventCallback) {
	metas, err := store.List("")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	known := reg.Files()
	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}

	for file := range known {
		if _, ok := disk[file]; !ok {
			reg.Remove(file)
			logger.Debug("reconcile: removed stale", slog.String("file", file))
			notify(KindDeleted, file)
		}
	}

	for file, cs := range disk {
		if known[file] == cs {
			continue
		}
		kind, loadErr := loadFile(reg, store, file, logger)
		if loadErr != nil {
			logger.Warn("reconcile: load failed", slog.String("file", file), slog.String("error", loadErr.Error()))
			continue
		}
		notify(kind, file)
	}

	reclaim(reg, store, logger, notify)
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
