// mcws.go
package mcws

import (
	"github.com/lightforgemedia/go-mcws/pkg/client"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/lightforgemedia/go-mcws/pkg/relay"
)

// Re-export core types
type (
	Client       = client.Client
	Option       = client.Option
	Options      = client.Options
	MatchPolicy  = client.MatchPolicy
	State        = client.State
	Envelope     = protocol.Envelope
	Header       = protocol.Header
	Purpose      = protocol.Purpose
	HandlerFunc  = events.HandlerFunc
	Listener     = events.Listener
	HandlerError = protocol.HandlerError
	Relay        = relay.Relay
)

// Re-export error types
var (
	ErrMalformedMessage = protocol.ErrMalformedMessage
	ErrProtocol         = protocol.ErrProtocol
	ErrConnectionClosed = protocol.ErrConnectionClosed
	ErrNotConnected     = client.ErrNotConnected
	ErrClientClosed     = client.ErrClientClosed
	ErrInvalidHandler   = events.ErrInvalidHandler
)

// Re-export match policies and connection states
const (
	MatchNextMessage = client.MatchNextMessage
	MatchRequestID   = client.MatchRequestID

	StateIdle       = client.StateIdle
	StateAccepted   = client.StateAccepted
	StateSubscribed = client.StateSubscribed
	StateActive     = client.StateActive
	StateClosed     = client.StateClosed
)

// Re-export client options
var (
	WithLogger        = client.WithLogger
	WithAddress       = client.WithAddress
	WithAcceptOptions = client.WithAcceptOptions
	WithWriteTimeout  = client.WithWriteTimeout
	WithReadLimit     = client.WithReadLimit
	WithMatchPolicy   = client.WithMatchPolicy
	WithMetrics       = client.WithMetrics
	WithRelay         = client.WithRelay
	WithHandler       = client.WithHandler
	WithHandlerFunc   = client.WithHandlerFunc
	WithListener      = client.WithListener
	WithOnReady       = client.WithOnReady
	WithOnConnect     = client.WithOnConnect
	WithOnDisconnect  = client.WithOnDisconnect
	WithOnError       = client.WithOnError
	WithContext       = client.WithContext
)

// New creates a client listening on 0.0.0.0:8000 unless WithAddress says
// otherwise.
func New(opts ...Option) (*Client, error) {
	return client.New(opts...)
}

// NewWithOptions creates a client from an Options struct.
func NewWithOptions(opts Options, extra ...Option) (*Client, error) {
	return client.NewWithOptions(opts, extra...)
}

// DefaultOptions returns default client options.
func DefaultOptions() Options {
	return client.DefaultOptions()
}

// Listen registers handler for the named event. It is shorthand for
// WithHandlerFunc and accepts the same handler signatures.
func Listen(name string, handler any) Option {
	return client.WithHandlerFunc(name, handler)
}

// Decode parses one inbound text frame.
func Decode(text string) (*Envelope, error) {
	return protocol.Decode(text)
}
