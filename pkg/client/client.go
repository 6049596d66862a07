// mcws/client/client.go
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/metrics"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/lightforgemedia/go-mcws/pkg/relay"
	"github.com/lightforgemedia/go-mcws/pkg/transport"
)

const (
	defaultHost         = "0.0.0.0"
	defaultPort         = 8000
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 1024 * 1024 // 1MB
	shutdownTimeout     = 5 * time.Second
)

var (
	// ErrNotConnected is returned by Command when no game is connected.
	ErrNotConnected = fmt.Errorf("%w: no game connected", protocol.ErrConnectionClosed)
	// ErrClientClosed is returned when serving after Close.
	ErrClientClosed = errors.New("client closed")
)

type clientConfig struct {
	logger       *slog.Logger
	host         string
	port         int
	wsOptions    transport.WebSocketOptions
	matchPolicy  MatchPolicy
	metrics      *metrics.Metrics
	relays       []relay.Relay
	onReady      func(addr string)
	onConnect    func(ctx context.Context)
	onDisconnect func(ctx context.Context, err error)
	onError      func(ctx context.Context, env *protocol.Envelope) error
}

// Client is the game-facing endpoint. It accepts one game connection at a
// time, subscribes to every registered event, dispatches events to their
// handlers, and lets the host issue commands.
type Client struct {
	config   clientConfig
	registry *events.Registry
	optErrs  []error

	// Overall client lifetime context
	clientCtx    context.Context
	clientCancel context.CancelFunc

	mu       sync.Mutex
	session  *session
	server   *http.Server
	listener net.Listener
	closed   bool

	sessionWg sync.WaitGroup
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.config.logger = logger
		}
	}
}

// WithAddress sets the host and port ListenAndServe binds.
func WithAddress(host string, port int) Option {
	return func(c *Client) {
		c.config.host = host
		c.config.port = port
	}
}

// WithAcceptOptions sets custom websocket.AcceptOptions.
func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(c *Client) {
		c.config.wsOptions.AcceptOptions = opts
	}
}

// WithWriteTimeout bounds each envelope write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.config.wsOptions.WriteTimeout = timeout
		}
	}
}

// WithReadLimit sets the maximum inbound message size.
func WithReadLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.config.wsOptions.ReadLimit = limit
		}
	}
}

// WithMatchPolicy selects how commands are matched to responses.
func WithMatchPolicy(p MatchPolicy) Option {
	return func(c *Client) {
		c.config.matchPolicy = p
	}
}

// WithMetrics records protocol metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.config.metrics = m
	}
}

// WithRelay forwards every event to r after its handler ran. Relays are
// closed by Client.Close.
func WithRelay(r relay.Relay) Option {
	return func(c *Client) {
		if r != nil {
			c.config.relays = append(c.config.relays, r)
		}
	}
}

// WithHandler subscribes to name and routes its events to h.
func WithHandler(name string, h events.HandlerFunc) Option {
	return func(c *Client) {
		if err := c.registry.Register(name, h); err != nil {
			c.optErrs = append(c.optErrs, err)
		}
	}
}

// WithHandlerFunc is WithHandler for any handler shape accepted by
// events.Wrap, such as func(ctx context.Context, body MyBody) error.
func WithHandlerFunc(name string, fn any) Option {
	return func(c *Client) {
		if err := c.registry.RegisterFunc(name, fn); err != nil {
			c.optErrs = append(c.optErrs, err)
		}
	}
}

// WithListener registers every handler l declares.
func WithListener(l events.Listener) Option {
	return func(c *Client) {
		if err := c.registry.RegisterListener(l); err != nil {
			c.optErrs = append(c.optErrs, err)
		}
	}
}

// WithOnReady replaces the hook called once the server is listening.
func WithOnReady(fn func(addr string)) Option {
	return func(c *Client) {
		if fn != nil {
			c.config.onReady = fn
		}
	}
}

// WithOnConnect replaces the hook called after all subscriptions are sent.
// It runs on its own goroutine so it may issue commands.
func WithOnConnect(fn func(ctx context.Context)) Option {
	return func(c *Client) {
		if fn != nil {
			c.config.onConnect = fn
		}
	}
}

// WithOnDisconnect replaces the hook called once a session has ended. err
// is nil for a normal closure.
func WithOnDisconnect(fn func(ctx context.Context, err error)) Option {
	return func(c *Client) {
		if fn != nil {
			c.config.onDisconnect = fn
		}
	}
}

// WithOnError replaces the hook called for error envelopes from the game.
// A returned error ends the session.
func WithOnError(fn func(ctx context.Context, env *protocol.Envelope) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.config.onError = fn
		}
	}
}

// WithContext sets a parent context for the client's lifetime.
func WithContext(ctx context.Context) Option {
	return func(c *Client) {
		if ctx != nil {
			c.clientCancel()
			c.clientCtx, c.clientCancel = context.WithCancel(ctx)
		}
	}
}

// New creates a Client. Handler registration errors are reported here.
func New(opts ...Option) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: clientConfig{
			logger:      slog.Default(),
			host:        defaultHost,
			port:        defaultPort,
			matchPolicy: MatchNextMessage,
			wsOptions: transport.WebSocketOptions{
				WriteTimeout: defaultWriteTimeout,
				ReadLimit:    defaultReadLimit,
			},
		},
		registry:     events.NewRegistry(),
		clientCtx:    ctx,
		clientCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := errors.Join(c.optErrs...); err != nil {
		c.clientCancel()
		return nil, fmt.Errorf("client: invalid configuration: %w", err)
	}
	c.registry.Seal()
	c.installDefaultHooks()

	c.config.logger.Info(fmt.Sprintf("Client: initialized with %d event subscriptions (match policy %s)",
		c.registry.Len(), c.config.matchPolicy))
	return c, nil
}

func (c *Client) installDefaultHooks() {
	logger := c.config.logger
	if c.config.onReady == nil {
		c.config.onReady = func(addr string) {
			logger.Info(fmt.Sprintf("%s ready!", addr))
		}
	}
	if c.config.onConnect == nil {
		c.config.onConnect = func(ctx context.Context) {
			logger.Info("Connected to world!")
		}
	}
	if c.config.onDisconnect == nil {
		c.config.onDisconnect = func(ctx context.Context, err error) {
			if err != nil {
				logger.Info("Disconnected from world!", "error", err)
				return
			}
			logger.Info("Disconnected from world!")
		}
	}
	if c.config.onError == nil {
		c.config.onError = func(ctx context.Context, env *protocol.Envelope) error {
			logger.Warn("Error occurred", "body", string(env.Body))
			return nil
		}
	}
}

// Events returns the subscribed event names in subscription order.
func (c *Client) Events() []string {
	return c.registry.Names()
}

// Addr returns the address the server is listening on, or "" before
// ListenAndServe.
func (c *Client) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// State returns the lifecycle state of the current connection. It is
// StateIdle when no game is connected.
func (c *Client) State() State {
	if s := c.currentSession(); s != nil {
		return s.State()
	}
	return StateIdle
}

// Subscriptions returns the event names subscribed on the current
// connection.
func (c *Client) Subscriptions() []string {
	if s := c.currentSession(); s != nil {
		return s.Subscriptions()
	}
	return nil
}

// Pending returns the number of commands awaiting a response.
func (c *Client) Pending() int {
	if s := c.currentSession(); s != nil {
		return s.table.Len()
	}
	return 0
}

// Command sends commandLine to the connected game and waits for its
// response. Under MatchNextMessage a nil envelope with a nil error means the
// next message was not this command's response. It fails with an error
// matching protocol.ErrConnectionClosed if the connection ends first.
//
// A handler may call Command with the context it was given. The command then
// reads the connection itself while the handler waits, and ctx is checked
// between messages. Goroutines started by a handler wait for the read loop
// like any other caller.
func (c *Client) Command(ctx context.Context, commandLine string) (*protocol.Envelope, error) {
	s := c.currentSession()
	if s == nil {
		return nil, ErrNotConnected
	}
	return s.command(ctx, commandLine)
}

// ListenAndServe listens on the configured address and serves game
// connections until ctx is done or Close is called.
func (c *Client) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(c.config.host, strconv.Itoa(c.config.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("client: listen on %s: %w", addr, err)
	}
	return c.Serve(ctx, ln)
}

// Serve accepts game connections on ln until ctx is done or Close is
// called. It returns after every session has ended.
func (c *Client) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           c.UpgradeHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		ln.Close()
		return ErrClientClosed
	}
	c.server = srv
	c.listener = ln
	c.mu.Unlock()

	c.config.onReady(ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	var err error
	select {
	case <-ctx.Done():
		err = c.Close()
		<-errCh
	case <-c.clientCtx.Done():
		<-errCh
	case serveErr := <-errCh:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			err = fmt.Errorf("client: serve: %w", serveErr)
		}
		c.Close()
	}
	c.sessionWg.Wait()
	return err
}

// UpgradeHandler returns an http.HandlerFunc that accepts the game's
// WebSocket and serves it until the connection ends.
func (c *Client) UpgradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c.isClosed() {
			http.Error(w, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		ws, err := transport.Accept(w, r, c.config.wsOptions)
		if err != nil {
			c.config.logger.Error(fmt.Sprintf("Client: %v", err), "remote_addr", r.RemoteAddr)
			return
		}
		if err := c.ServeConn(c.clientCtx, ws); err != nil && !errors.Is(err, ErrClientClosed) {
			c.config.logger.Debug(fmt.Sprintf("Client: connection from %s ended: %v", r.RemoteAddr, err))
		}
	}
}

// ServeConn runs the protocol over an established transport until it
// closes. A newer connection replaces the current one, whose pending
// commands fail with protocol.ErrConnectionClosed. The returned error is
// nil for a normal closure.
func (c *Client) ServeConn(ctx context.Context, t transport.Transport) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		t.Close()
		return ErrClientClosed
	}
	sessCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.clientCtx, cancel)
	s := newSession(c, t, cancel)
	prev := c.session
	c.session = s
	c.sessionWg.Add(1)
	c.mu.Unlock()

	defer c.sessionWg.Done()
	defer stop()
	defer cancel()

	if prev != nil {
		c.config.logger.Info(fmt.Sprintf("Session %s: replaced by %s from %s", prev.id, s.id, t.RemoteAddr()))
		prev.abandon()
	}
	return s.run(sessCtx)
}

// Close stops the server, fails every pending command, closes the current
// connection and the relays. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	srv := c.server
	c.mu.Unlock()

	c.config.logger.Info("Client: closing")
	c.clientCancel()

	var errs []error
	if s != nil {
		s.abandon()
	}
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
		cancel()
	}
	for _, r := range c.config.relays {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) currentSession() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// detach clears s as the current session if it still is.
func (c *Client) detach(s *session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
}
