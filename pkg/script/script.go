// Package script runs files of game commands, one per line, through a
// connected client.
package script

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/filewatcher"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// Commander runs a single command line.
type Commander interface {
	Command(ctx context.Context, commandLine string) (*protocol.Envelope, error)
}

// Result is the outcome of one script line.
type Result struct {
	Line     string
	Response *protocol.Envelope // nil when no matching response arrived
	Err      error
}

// Failed reports whether the command errored or the game answered with a
// non-zero status code.
func (r Result) Failed() bool {
	if r.Err != nil {
		return true
	}
	if r.Response == nil {
		return false
	}
	code, ok := r.Response.StatusCode()
	return ok && code != 0
}

// Parse reads command lines from r. Blank lines and lines starting with '#'
// are skipped, and a leading '/' is dropped.
func Parse(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "/"))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return lines, nil
}

// ParseFile is Parse for the file at path.
func ParseFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithStopOnError stops a run at the first failed line.
func WithStopOnError(stop bool) Option {
	return func(r *Runner) {
		r.stopOnError = stop
	}
}

// Runner executes scripts one line at a time. Runs never overlap.
type Runner struct {
	cmd         Commander
	logger      *slog.Logger
	stopOnError bool

	runMu sync.Mutex
}

// NewRunner creates a Runner sending commands through c.
func NewRunner(c Commander, opts ...Option) *Runner {
	r := &Runner{cmd: c, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes lines in order. It stops early when ctx is done or the
// connection closes, returning the results gathered so far with the error.
func (r *Runner) Run(ctx context.Context, lines []string) ([]Result, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	results := make([]Result, 0, len(lines))
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		env, err := r.cmd.Command(ctx, line)
		res := Result{Line: line, Response: env, Err: err}
		results = append(results, res)

		switch {
		case err != nil:
			r.logger.Warn(fmt.Sprintf("Script: line %d %q failed: %v", i+1, line, err))
			if errors.Is(err, protocol.ErrConnectionClosed) || ctx.Err() != nil {
				return results, err
			}
		case env == nil:
			r.logger.Debug(fmt.Sprintf("Script: line %d %q: no matching response", i+1, line))
		default:
			r.logger.Debug(fmt.Sprintf("Script: line %d %q: %s", i+1, line, env.StatusMessage()))
		}
		if r.stopOnError && res.Failed() {
			return results, fmt.Errorf("script stopped at line %d %q", i+1, line)
		}
	}
	return results, nil
}

// RunFile parses and runs the script at path.
func (r *Runner) RunFile(ctx context.Context, path string) ([]Result, error) {
	lines, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	r.logger.Info(fmt.Sprintf("Script: running %s (%d commands)", path, len(lines)))
	start := time.Now()
	results, err := r.Run(ctx, lines)
	r.logger.Info(fmt.Sprintf("Script: %s finished in %s", path, time.Since(start).Round(time.Millisecond)))
	return results, err
}

// Watch re-runs the script at path every time it changes, until ctx is
// done. Run failures are logged.
func (r *Runner) Watch(ctx context.Context, path string, opts ...filewatcher.Option) error {
	w, err := filewatcher.New(append([]filewatcher.Option{
		filewatcher.WithLogger(r.logger),
		filewatcher.WithFile(path),
	}, opts...)...)
	if err != nil {
		return err
	}
	w.OnChange(func(string) {
		if _, err := r.RunFile(ctx, path); err != nil {
			r.logger.Warn(fmt.Sprintf("Script: %s: %v", path, err))
		}
	})
	return w.Run(ctx)
}
