package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultDebounce coalesces bursts of file events into one notification.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultSuppressWindow hides events caused by this process's own writes.
	DefaultSuppressWindow = 500 * time.Millisecond
)

// Watcher reports changes to a BoltStore's file made by other processes.
type Watcher struct {
	store    *BoltStore
	onChange func()
	debounce time.Duration
	suppress time.Duration
	logger   zerolog.Logger

	fsw *fsnotify.Watcher
}

// WatcherOption configures a Watcher
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce interval
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithSuppressWindow sets how long after a local write events are ignored
func WithSuppressWindow(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.suppress = d }
}

// WithWatcherLogger sets the logger
func WithWatcherLogger(l zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher watches the directory holding the store file and calls onChange
// after external writes settle.
func NewWatcher(s *BoltStore, onChange func(), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		store:    s,
		onChange: onChange,
		debounce: DefaultDebounce,
		suppress: DefaultSuppressWindow,
		logger:   log.Logger.With().Str("component", "store-watcher").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}

	dir := filepath.Dir(s.Path())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.fsw = fsw
	return w, nil
}

// Run delivers notifications until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	target := filepath.Clean(w.store.Path())

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("file watcher error")

		case <-timer.C:
			if last := w.store.LastWrite(); !last.IsZero() && time.Since(last) < w.suppress {
				w.logger.Trace().Msg("ignoring change from own write")
				continue
			}
			w.logger.Debug().Str("path", target).Msg("store changed externally")
			w.onChange()
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
