package vocab

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a vocabulary in sync with its file. Readers always see a
// complete snapshot; a reload that fails keeps the previous one.
type Watcher struct {
	path     string
	extras   []string
	logger   *slog.Logger
	current  atomic.Pointer[Vocabulary]
	debounce time.Duration
	reloads  atomic.Int64
}

// NewWatcher loads path (plus extras) and returns a watcher serving it.
func NewWatcher(path string, logger *slog.Logger, extras ...string) (*Watcher, error) {
	v, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		path:     path,
		extras:   extras,
		logger:   logger,
		debounce: 300 * time.Millisecond,
	}
	w.current.Store(v.With(extras...))
	return w, nil
}

// Current returns the latest vocabulary snapshot.
func (w *Watcher) Current() *Vocabulary {
	return w.current.Load()
}

// Reloads returns how many successful reloads have happened.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

// Reload re-reads the file now.
func (w *Watcher) Reload() error {
	v, err := Load(w.path)
	if err != nil {
		return err
	}
	w.current.Store(v.With(w.extras...))
	w.reloads.Add(1)
	w.logger.Info("vocabulary reloaded", "path", w.path, "tags", v.Len())
	return nil
}

// Run watches the vocabulary's directory until ctx is done, reloading after
// writes to the file settle.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// Editors often replace the file, so watch the directory.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	var pending time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("vocabulary watcher error", "error", err)
		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < w.debounce {
				continue
			}
			pending = time.Time{}
			if err := w.Reload(); err != nil {
				w.logger.Warn("vocabulary reload failed, keeping previous", "path", w.path, "error", err)
			}
		}
	}
}
