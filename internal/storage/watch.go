package storage

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/versebook/internal/apperr"
)

// ChangeCallback receives the revision of the data file after an
// out-of-band change.
type ChangeCallback func(revision string)

const watchDebounce = 200 * time.Millisecond

// Watch observes the store directory and calls cb when the data file is
// rewritten by something other than this process. Bursts of events are
// debounced and a rewrite that leaves the revision unchanged is ignored.
// It blocks until ctx is cancelled.
func (f *FS) Watch(ctx context.Context, logger *slog.Logger, cb ChangeCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Atomic writes replace the file, so watch the directory, not the file.
	if err := w.Add(f.root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("path", f.DataPath()))

	last := ""
	if snap, err := f.Fetch(ctx); err == nil {
		last = snap.Revision
	}

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
			fire = timer.C
			return
		}
		timer.Reset(watchDebounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			snap, err := f.Fetch(ctx)
			if err != nil {
				if !errors.Is(err, apperr.ErrNotFound) {
					logger.Warn("watcher: read failed", slog.String("error", err.Error()))
				}
				continue
			}
			if snap.Revision == last {
				continue
			}
			last = snap.Revision
			logger.Debug("watcher: data file changed", slog.String("revision", snap.Revision))
			if cb != nil {
				cb(snap.Revision)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(f.dataFile) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
