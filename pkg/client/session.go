package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-mcws/pkg/correlation"
	"github.com/lightforgemedia/go-mcws/pkg/metrics"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/lightforgemedia/go-mcws/pkg/transport"
)

// State is the lifecycle state of a game connection.
type State int

const (
	StateIdle State = iota
	StateAccepted
	StateSubscribed
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccepted:
		return "accepted"
	case StateSubscribed:
		return "subscribed"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// statusCloser is implemented by transports that can report a close code.
type statusCloser interface {
	CloseWithStatus(code websocket.StatusCode, reason string) error
}

// errEndOfStream is returned by step when the connection closed normally.
var errEndOfStream = errors.New("end of stream")

// turnKey tags the context handed to handlers with the turn they run in.
type turnKey struct{}

// turn is the right to read the connection. The read loop lends it to the
// handlers of each message while they run, so a handler that issues a
// command reads the response itself instead of waiting on a blocked loop.
// Holding mu is holding the turn.
type turn struct {
	s      *session
	mu     sync.Mutex
	active bool
}

// session is one accepted game connection.
type session struct {
	id        string
	client    *Client
	transport transport.Transport
	table     *correlation.Table
	logger    *slog.Logger
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc

	writeMu sync.Mutex

	mu            sync.Mutex
	state         State
	subscriptions []string
	ended         bool
	endCause      error
}

func newSession(c *Client, t transport.Transport, cancel context.CancelFunc) *session {
	id := protocol.GenerateID()
	return &session{
		id:        id,
		client:    c,
		transport: t,
		table:     correlation.New(),
		logger:    c.config.logger.With("session_id", id, "remote_addr", t.RemoteAddr()),
		metrics:   c.config.metrics,
		cancel:    cancel,
		state:     StateAccepted,
	}
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) Subscriptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.subscriptions))
	copy(out, s.subscriptions)
	return out
}

// run subscribes, starts the connect hook and processes inbound messages
// until the connection ends.
func (s *session) run(ctx context.Context) error {
	s.ctx = ctx
	s.logger.Info(fmt.Sprintf("Session %s: game connected", s.id))
	s.metrics.SessionOpened()

	for _, name := range s.client.registry.Names() {
		if err := s.send(ctx, protocol.NewSubscribe(name)); err != nil {
			return s.finish(ctx, s.classifyTransportErr(ctx, fmt.Errorf("subscribe %s: %w", name, err)))
		}
		s.mu.Lock()
		s.subscriptions = append(s.subscriptions, name)
		s.mu.Unlock()
		s.metrics.SubscriptionSent()
		s.logger.Debug(fmt.Sprintf("Session %s: subscribed to %s", s.id, name))
	}
	s.setState(StateSubscribed)
	s.setState(StateActive)

	go s.runConnectHook(ctx)

	return s.finish(ctx, s.readLoop())
}

func (s *session) runConnectHook(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(fmt.Sprintf("Session %s: panic in connect hook: %v", s.id, r))
		}
	}()
	s.client.config.onConnect(ctx)
}

func (s *session) readLoop() error {
	for {
		err := s.step()
		if ended, cause := s.endState(); ended {
			return cause
		}
		switch {
		case errors.Is(err, errEndOfStream):
			return nil
		case err != nil:
			return err
		}
	}
}

// step receives and handles one message.
func (s *session) step() error {
	text, err := s.transport.Receive(s.ctx)
	if err != nil {
		if cause := s.classifyTransportErr(s.ctx, err); cause != nil {
			return cause
		}
		return errEndOfStream
	}
	mark := s.table.Mark()

	env, err := protocol.Decode(text)
	if err != nil {
		s.metrics.ProtocolError("malformed")
		s.logger.Error(fmt.Sprintf("Session %s: %v", s.id, err))
		return err
	}

	if err := s.route(env); err != nil {
		s.metrics.ProtocolError("handler")
		s.logger.Error(fmt.Sprintf("Session %s: %v", s.id, err))
		return err
	}

	if s.client.config.matchPolicy == MatchNextMessage {
		if n := s.table.SettleUnmatched(mark); n > 0 {
			s.logger.Debug(fmt.Sprintf("Session %s: %d command(s) settled without a matching response", s.id, n))
		}
	}
	return nil
}

// end records that a read made from a handler ended the session. The read
// loop returns cause once that handler is done.
func (s *session) end(cause error) {
	s.mu.Lock()
	if !s.ended {
		s.ended, s.endCause = true, cause
	}
	s.mu.Unlock()
	s.table.FailAll(protocol.ErrConnectionClosed)
}

func (s *session) endState() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended, s.endCause
}

// classifyTransportErr returns nil for a normal closure.
func (s *session) classifyTransportErr(ctx context.Context, err error) error {
	if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
		s.logger.Debug(fmt.Sprintf("Session %s: connection closed: %v", s.id, err))
		return nil
	}
	s.metrics.ProtocolError("transport")
	s.logger.Error(fmt.Sprintf("Session %s: transport error: %v", s.id, err))
	return fmt.Errorf("%w: %w", protocol.ErrConnectionClosed, err)
}

func (s *session) route(env *protocol.Envelope) error {
	t := &turn{s: s, active: true}
	defer func() {
		// Waits out a command still reading in this turn.
		t.mu.Lock()
		t.active = false
		t.mu.Unlock()
	}()
	ctx := context.WithValue(s.ctx, turnKey{}, t)

	switch env.Purpose() {
	case protocol.PurposeEvent:
		return s.handleEvent(ctx, env)

	case protocol.PurposeError:
		s.metrics.GameError()
		err := safeInvoke("error", func() error {
			return s.client.config.onError(ctx, env)
		})
		if err != nil {
			var he *protocol.HandlerError
			if !errors.As(err, &he) {
				err = &protocol.HandlerError{Event: "error", Err: err}
			}
		}
		return err

	case protocol.PurposeCommandResponse:
		if !s.table.Resolve(env.Header.RequestID, env) {
			s.logger.Debug(fmt.Sprintf("Session %s: no pending command for response %s", s.id, env.Header.RequestID))
		}
		return nil

	default:
		s.logger.Debug(fmt.Sprintf("Session %s: ignoring message with purpose %q", s.id, env.Purpose()))
		return nil
	}
}

func (s *session) handleEvent(ctx context.Context, env *protocol.Envelope) error {
	name := env.EventName()
	registry := s.client.registry
	if !registry.Has(name) {
		s.metrics.EventReceived(name, "ignored")
		s.logger.Debug(fmt.Sprintf("Session %s: no handler for event %q", s.id, name))
	} else {
		err := safeInvoke(name, func() error {
			return registry.Dispatch(ctx, name, env)
		})
		if err != nil {
			s.metrics.EventReceived(name, "failed")
			return err
		}
		s.metrics.EventReceived(name, "handled")
	}

	for _, r := range s.client.config.relays {
		if err := r.Relay(ctx, env); err != nil {
			s.logger.Warn(fmt.Sprintf("Session %s: relay of %s failed: %v", s.id, name, err))
		}
	}
	return nil
}

// safeInvoke runs fn and turns a panic into a *protocol.HandlerError.
func safeInvoke(event string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &protocol.HandlerError{Event: event, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn()
}

func (s *session) send(ctx context.Context, env *protocol.Envelope) error {
	text, err := protocol.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.Send(ctx, text)
}

func (s *session) command(ctx context.Context, commandLine string) (*protocol.Envelope, error) {
	switch st := s.State(); st {
	case StateSubscribed, StateActive:
	default:
		return nil, fmt.Errorf("command %q: session %s: %w", commandLine, st, ErrNotConnected)
	}

	t := s.turnFor(ctx)
	if t != nil {
		defer t.mu.Unlock()
	}

	start := time.Now()
	req, err := s.table.Register()
	if err != nil {
		s.metrics.ObserveCommand(metrics.CommandClosed, time.Since(start))
		return nil, fmt.Errorf("command %q: %w", commandLine, err)
	}

	// Armed before the write so that any message the game sends after
	// seeing the request settles it.
	s.table.Arm(req.ID)
	if err := s.send(ctx, protocol.NewCommandRequest(req.ID, commandLine)); err != nil {
		s.table.Cancel(req.ID)
		if errors.Is(err, transport.ErrClosed) {
			s.metrics.ObserveCommand(metrics.CommandClosed, time.Since(start))
			return nil, fmt.Errorf("command %q: %w: %v", commandLine, protocol.ErrConnectionClosed, err)
		}
		s.metrics.ObserveCommand(metrics.CommandError, time.Since(start))
		return nil, fmt.Errorf("command %q: %w", commandLine, err)
	}
	s.logger.Debug(fmt.Sprintf("Session %s: sent command %s: %s", s.id, req.ID, commandLine))

	var env *protocol.Envelope
	if t != nil {
		env, err = s.awaitInTurn(ctx, req)
	} else {
		env, err = s.table.Await(ctx, req)
	}
	switch {
	case err != nil && errors.Is(err, protocol.ErrConnectionClosed):
		s.metrics.ObserveCommand(metrics.CommandClosed, time.Since(start))
		return nil, fmt.Errorf("command %q: %w", commandLine, err)
	case err != nil:
		s.metrics.ObserveCommand(metrics.CommandError, time.Since(start))
		return nil, err
	case env == nil:
		s.metrics.ObserveCommand(metrics.CommandNoMatch, time.Since(start))
		return nil, nil
	default:
		s.metrics.ObserveCommand(metrics.CommandMatched, time.Since(start))
		return env, nil
	}
}

// turnFor returns the turn ctx was dispatched in, locked, if the read loop
// is still waiting on it. Otherwise the caller awaits the read loop.
func (s *session) turnFor(ctx context.Context) *turn {
	t, ok := ctx.Value(turnKey{}).(*turn)
	if !ok || t.s != s {
		return nil
	}
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil
	}
	return t
}

// awaitInTurn reads and routes messages on behalf of a handler until req
// settles. ctx is checked between messages; a read in progress is never
// abandoned, since that would tear the connection down.
func (s *session) awaitInTurn(ctx context.Context, req *correlation.Request) (*protocol.Envelope, error) {
	for !req.Done() {
		if err := ctx.Err(); err != nil {
			s.table.Cancel(req.ID)
			if !req.Done() {
				return nil, err
			}
			break
		}
		if err := s.step(); err != nil {
			if errors.Is(err, errEndOfStream) {
				err = nil
			}
			s.end(err)
		}
	}
	return s.table.Await(context.Background(), req)
}

// abandon ends the session from outside its read loop.
func (s *session) abandon() {
	s.table.FailAll(protocol.ErrConnectionClosed)
	s.cancel()
	s.closeTransport(websocket.StatusGoingAway, "replaced")
}

func (s *session) closeTransport(code websocket.StatusCode, reason string) error {
	if sc, ok := s.transport.(statusCloser); ok {
		return sc.CloseWithStatus(code, reason)
	}
	return s.transport.Close()
}

// finish tears the session down and runs the disconnect hook exactly once.
func (s *session) finish(ctx context.Context, cause error) error {
	s.setState(StateClosed)
	if n := s.table.FailAll(protocol.ErrConnectionClosed); n > 0 {
		s.logger.Debug(fmt.Sprintf("Session %s: failed %d pending command(s)", s.id, n))
	}

	code, reason := websocket.StatusNormalClosure, ""
	if cause != nil {
		code, reason = websocket.StatusInternalError, "protocol error"
	}
	if err := s.closeTransport(code, reason); err != nil {
		s.logger.Debug(fmt.Sprintf("Session %s: close: %v", s.id, err))
	}

	s.client.detach(s)
	s.metrics.SessionClosed()

	hookCtx := context.WithoutCancel(ctx)
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(fmt.Sprintf("Session %s: panic in disconnect hook: %v", s.id, r))
			}
		}()
		s.client.config.onDisconnect(hookCtx, cause)
	}()

	s.logger.Info(fmt.Sprintf("Session %s: game disconnected", s.id))
	return cause
}
