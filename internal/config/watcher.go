package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events an atomic save produces
// (create temp, write, rename) into one reload.
const DefaultReloadDebounce = 200 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
//
// The parent directory is watched instead of the file itself because Save
// replaces the file by rename, which drops file-level watches on most
// platforms.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Config)
	onError  func(error)

	stopOnce sync.Once
	done     chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultReloadDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler receives load and watch errors. Defaults to a warning log.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// NewWatcher creates a Watcher for path. onChange receives each successfully
// reloaded config; a file that fails to parse is reported to the error handler
// and the previous config stays in effect.
func NewWatcher(path string, onChange func(Config), opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}
	if onChange == nil {
		return nil, errors.New("config watcher: onChange is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: resolve path: %w", err)
	}
	w := &Watcher{
		path:     absPath,
		debounce: DefaultReloadDebounce,
		onChange: onChange,
		onError: func(err error) {
			slog.Warn("[WARN-CONFIG] config reload failed", "path", absPath, "error", err)
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run watches until ctx is cancelled or Close is called. It returns the error
// that prevented the watch from starting, or nil on a clean stop.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(w.path), err)
	}
	slog.Debug("[DEBUG-CONFIG] watching config file", "path", w.path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.done:
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.onError(err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

// Close stops Run. Safe to call more than once.
func (w *Watcher) Close() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.onError(err)
		return
	}
	slog.Debug("[DEBUG-CONFIG] config reloaded", "path", w.path)
	w.onChange(cfg)
}
