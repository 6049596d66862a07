package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-mcws/pkg/metrics"
)

// MatchPolicy decides when a pending command gives up on its response.
type MatchPolicy int

const (
	// MatchNextMessage settles a command with the first inbound message
	// processed after it was sent. If that message is not the command's
	// response, Command returns the no-match result (nil, nil).
	MatchNextMessage MatchPolicy = iota
	// MatchRequestID waits across interleaved messages until the response
	// carrying the command's requestId arrives.
	MatchRequestID
)

func (p MatchPolicy) String() string {
	switch p {
	case MatchNextMessage:
		return "next"
	case MatchRequestID:
		return "request_id"
	default:
		return fmt.Sprintf("MatchPolicy(%d)", int(p))
	}
}

// ParseMatchPolicy parses the String form of a MatchPolicy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch s {
	case "", "next":
		return MatchNextMessage, nil
	case "request_id", "id":
		return MatchRequestID, nil
	default:
		return 0, fmt.Errorf("unknown match policy %q (want \"next\" or \"request_id\")", s)
	}
}

// Options contains configuration values for creating a Client using
// NewWithOptions. All fields have defaults provided by DefaultOptions().
type Options struct {
	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// Host is the address ListenAndServe binds. Defaults to "0.0.0.0".
	Host string

	// Port is the port ListenAndServe binds; 0 picks a free port.
	// Defaults to 8000.
	Port int

	// AcceptOptions configures the WebSocket accept. Defaults to accepting
	// any origin, since the game sends none.
	AcceptOptions *websocket.AcceptOptions

	// WriteTimeout bounds each envelope write. Defaults to 10 seconds.
	WriteTimeout time.Duration

	// ReadLimit is the maximum inbound message size in bytes. Defaults to 1MB.
	ReadLimit int64

	// MatchPolicy selects how commands are matched to responses.
	// Defaults to MatchNextMessage.
	MatchPolicy MatchPolicy

	// Metrics receives protocol metrics. Nil disables them.
	Metrics *metrics.Metrics
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Logger:       slog.Default(),
		Host:         defaultHost,
		Port:         defaultPort,
		WriteTimeout: defaultWriteTimeout,
		ReadLimit:    defaultReadLimit,
		MatchPolicy:  MatchNextMessage,
	}
}

// NewWithOptions creates a new Client using an Options struct. Additional
// functional options are applied after the struct and may override it.
func NewWithOptions(opts Options, extraOpts ...Option) (*Client, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	optionFns := []Option{
		WithLogger(opts.Logger),
		WithAcceptOptions(opts.AcceptOptions),
		WithMatchPolicy(opts.MatchPolicy),
		WithMetrics(opts.Metrics),
	}
	if opts.Host != "" || opts.Port != 0 {
		host := opts.Host
		if host == "" {
			host = defaultHost
		}
		optionFns = append(optionFns, WithAddress(host, opts.Port))
	}
	if opts.WriteTimeout > 0 {
		optionFns = append(optionFns, WithWriteTimeout(opts.WriteTimeout))
	}
	if opts.ReadLimit > 0 {
		optionFns = append(optionFns, WithReadLimit(opts.ReadLimit))
	}
	optionFns = append(optionFns, extraOpts...)

	return New(optionFns...)
}

func validateOptions(opts Options) error {
	if opts.Port < 0 || opts.Port > 65535 {
		return fmt.Errorf("Port must be between 0 and 65535, got %d", opts.Port)
	}
	if opts.WriteTimeout < 0 {
		return errors.New("WriteTimeout must be non-negative")
	}
	if opts.ReadLimit < 0 {
		return errors.New("ReadLimit must be non-negative")
	}
	if opts.MatchPolicy != MatchNextMessage && opts.MatchPolicy != MatchRequestID {
		return fmt.Errorf("invalid MatchPolicy %v", opts.MatchPolicy)
	}
	return nil
}
