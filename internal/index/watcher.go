package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/casefile/internal/checksum"
	"github.com/starford/casefile/internal/storage"
)

// Payload change kinds passed to PayloadCallback.
const (
	PayloadCreated  = "created"
	PayloadModified = "modified"
	PayloadDeleted  = "deleted"
)

// DefaultDebounce is used when Watch is given a non-positive debounce.
const DefaultDebounce = 200 * time.Millisecond

// PayloadCallback is called after a payload's recorded checksum changes.
type PayloadCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the payload root and processes file
// change events until ctx is cancelled. Events are debounced per path; once
// a path settles its checksum is compared with the recorded one and cb (if
// non-nil) is called when it differs.
//
// New directories created at runtime are automatically added to the watch
// list. Hidden files (in-flight atomic writes) are ignored.
func Watch(ctx context.Context, db AuditIndex, payloads storage.Provider, root string, debounce time.Duration, logger *slog.Logger, cb PayloadCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(rel string) {
		pending[rel] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			for rel := range pending {
				reconcilePayload(db, payloads, rel, logger, cb)
			}
			clear(pending)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", absPath))
					}
					for _, rel := range filesUnder(root, absPath) {
						schedule(rel)
					}
					continue
				}
			}

			if strings.HasPrefix(filepath.Base(absPath), ".") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			schedule(filepath.ToSlash(rel))

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcilePayload compares the payload at rel with its recorded checksum
// and records the change.
func reconcilePayload(db AuditIndex, payloads storage.Provider, rel string, logger *slog.Logger, cb PayloadCallback) {
	checksums, err := db.PayloadChecksums()
	if err != nil {
		logger.Warn("watcher: payload checksums failed", slog.String("error", err.Error()))
		return
	}
	recorded, known := checksums[rel]

	data, readErr := payloads.Read(rel)
	if readErr != nil {
		if !errors.Is(readErr, fs.ErrNotExist) {
			logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return
		}
		if !known {
			return
		}
		if delErr := db.DeletePayload(rel); delErr != nil {
			logger.Warn("watcher: delete payload failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			return
		}
		logger.Warn("watcher: payload removed", slog.String("path", rel))
		if cb != nil {
			cb(PayloadDeleted, rel)
		}
		return
	}

	sum := checksum.Sum(data)
	if known && sum == recorded {
		return
	}
	info := storage.PayloadInfo{Path: rel, Checksum: sum, Size: int64(len(data)), ModTime: time.Now()}
	if upErr := db.UpsertPayload(info); upErr != nil {
		logger.Warn("watcher: upsert payload failed", slog.String("path", rel), slog.String("error", upErr.Error()))
		return
	}
	kind := PayloadModified
	if !known {
		kind = PayloadCreated
	}
	logger.Info("watcher: payload changed", slog.String("path", rel), slog.String("op", kind))
	if cb != nil {
		cb(kind, rel)
	}
}

// filesUnder lists non-hidden files below dir as paths relative to root.
func filesUnder(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
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
