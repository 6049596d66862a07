// Package nats relays game events to NATS subjects and accepts remote
// commands over NATS request/reply.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubjectPrefix prefixes every subject used by the relay.
	DefaultSubjectPrefix = "mcws"
	defaultCommandTimeout = 10 * time.Second
)

// Options contains configuration options for the NATS relay.
type Options struct {
	// URL is the NATS server URL. Defaults to nats.DefaultURL.
	URL string

	// SubjectPrefix is prepended to every subject. Defaults to "mcws".
	SubjectPrefix string

	// CommandTimeout bounds each remote command. Defaults to 10 seconds.
	CommandTimeout time.Duration

	// Logger for structured logging. Defaults to slog.Default().
	Logger *slog.Logger

	// ConnectionOptions are additional options for the NATS connection.
	ConnectionOptions []nats.Option
}

// Commander runs a command against the connected game.
type Commander interface {
	Command(ctx context.Context, commandLine string) (*protocol.Envelope, error)
}

// CommandReply is the reply body sent for each remote command.
type CommandReply struct {
	// Matched is false when the game sent something other than this
	// command's response next.
	Matched  bool               `json:"matched"`
	Response *protocol.Envelope `json:"response,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Relay publishes events to <prefix>.events.<snake_case_name> and serves
// commands sent to <prefix>.commands.
type Relay struct {
	conn           *nats.Conn
	prefix         string
	commandTimeout time.Duration
	logger         *slog.Logger

	subsLock sync.Mutex
	subs     []*nats.Subscription
}

// New connects to NATS and creates a relay.
func New(opts Options) (*Relay, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	conn, err := nats.Connect(opts.URL, opts.ConnectionOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Relay{
		conn:           conn,
		prefix:         opts.SubjectPrefix,
		commandTimeout: opts.CommandTimeout,
		logger:         opts.Logger,
	}, nil
}

// EventSubject returns the subject events named name are published on.
// Events without a name go to <prefix>.events.unknown.
func EventSubject(prefix, name string) string {
	token := events.SnakeCase(name)
	if token == "" {
		token = "unknown"
	}
	return prefix + ".events." + token
}

// CommandSubject returns the subject remote commands are served on.
func CommandSubject(prefix string) string {
	return prefix + ".commands"
}

// Relay publishes the event envelope as JSON.
func (r *Relay) Relay(ctx context.Context, env *protocol.Envelope) error {
	if env == nil {
		return errors.New("envelope cannot be nil")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	subject := EventSubject(r.prefix, env.EventName())
	if err := r.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// ServeCommands answers requests on the command subject by running their
// payload as a command line through c. It stops when ctx is done.
func (r *Relay) ServeCommands(ctx context.Context, c Commander) error {
	subject := CommandSubject(r.prefix)
	sub, err := r.conn.Subscribe(subject, func(msg *nats.Msg) {
		line := string(msg.Data)
		cmdCtx, cancel := context.WithTimeout(ctx, r.commandTimeout)
		defer cancel()

		env, err := c.Command(cmdCtx, line)
		reply := CommandReply{Matched: env != nil, Response: env}
		if err != nil {
			reply = CommandReply{Error: err.Error()}
			r.logger.Warn(fmt.Sprintf("NATS: command %q failed: %v", line, err))
		}
		data, err := json.Marshal(reply)
		if err != nil {
			r.logger.Error(fmt.Sprintf("NATS: marshal reply: %v", err))
			return
		}
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(data); err != nil {
			r.logger.Error(fmt.Sprintf("NATS: respond to %q: %v", line, err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	r.subsLock.Lock()
	r.subs = append(r.subs, sub)
	r.subsLock.Unlock()

	context.AfterFunc(ctx, func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			r.logger.Debug(fmt.Sprintf("NATS: unsubscribe %s: %v", subject, err))
		}
	})
	r.logger.Info(fmt.Sprintf("NATS: serving commands on %s", subject))
	return nil
}

// Command sends commandLine to a relay serving commands under the same
// prefix and waits for the reply.
func (r *Relay) Command(ctx context.Context, commandLine string) (*CommandReply, error) {
	msg, err := r.conn.RequestWithContext(ctx, CommandSubject(r.prefix), []byte(commandLine))
	if err != nil {
		return nil, fmt.Errorf("command request: %w", err)
	}
	var reply CommandReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return &reply, nil
}

// Close unsubscribes and drains the connection.
func (r *Relay) Close() error {
	r.subsLock.Lock()
	for _, sub := range r.subs {
		sub.Unsubscribe()
	}
	r.subs = nil
	r.subsLock.Unlock()

	if err := r.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}
