package filewatcher

import (
	"log/slog"
	"path/filepath"
	"time"
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDirs sets the directories to watch.
func WithDirs(dirs ...string) Option {
	return func(w *Watcher) {
		if len(dirs) > 0 {
			w.dirs = dirs
		}
	}
}

// WithPatterns sets the base-name patterns (filepath.Match syntax) that
// count as changes.
func WithPatterns(patterns ...string) Option {
	return func(w *Watcher) {
		if len(patterns) > 0 {
			w.patterns = patterns
		}
	}
}

// WithFile watches a single file. The parent directory is watched so that
// editors which replace the file on save are still seen.
func WithFile(path string) Option {
	return func(w *Watcher) {
		w.dirs = []string{filepath.Dir(path)}
		w.patterns = []string{filepath.Base(path)}
	}
}

// WithDebounce sets how long a file must stay quiet before its change is
// reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}
