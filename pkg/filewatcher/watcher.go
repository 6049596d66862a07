// Package filewatcher reports debounced file changes using fsnotify.
package filewatcher

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

const defaultDebounce = 300 * time.Millisecond

// Watcher watches directories and calls its callbacks once per burst of
// writes to a matching file.
type Watcher struct {
	dirs     []string
	patterns []string
	debounce time.Duration
	logger   *slog.Logger

	callbacksMu sync.RWMutex
	callbacks   []func(path string)

	pendingMu sync.Mutex
	pending   map[string]*time.Timer

	done chan struct{}
}

// New creates a Watcher. Nothing is watched until Start or Run. A
// Watcher is started at most once.
func New(opts ...Option) (*Watcher, error) {
	w := &Watcher{
		dirs:     []string{"."},
		patterns: []string{"*"},
		debounce: defaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range w.patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}
	return w, nil
}

// OnChange adds a callback. Callbacks run on a timer goroutine, one file at
// a time per path.
func (w *Watcher) OnChange(fn func(path string)) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching and returns once every directory is registered.
// Watching stops when ctx is done; Done is closed after that.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.logger.Info("Watching directory", "dir", dir, "patterns", w.patterns)
	}
	go w.loop(ctx, fsw)
	return nil
}

// Run is Start followed by waiting for ctx to be done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-w.done
	return nil
}

// Done is closed once a started watcher has stopped.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer fsw.Close()
	defer w.stopPending()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if w.matches(event.Name) {
					w.schedule(event.Name)
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Warn("Watcher overflow, changes may be lost")
				continue
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// schedule (re)starts the quiet-period timer for path.
func (w *Watcher) schedule(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.pendingMu.Lock()
		delete(w.pending, path)
		w.pendingMu.Unlock()
		w.logger.Info("File changed", "file", path)
		w.notify(path)
	})
}

func (w *Watcher) stopPending() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) notify(path string) {
	w.callbacksMu.RLock()
	defer w.callbacksMu.RUnlock()
	for _, fn := range w.callbacks {
		fn(path)
	}
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
