// Package transport provides the text message channels the protocol engine
// runs on: a server-side WebSocket connection and an in-memory pipe.
package transport

import (
	"context"
	"errors"
)

// ErrClosed is wrapped by every error a Transport returns once the channel
// has been closed by either side.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional text message channel.
type Transport interface {
	// Send writes one text message.
	Send(ctx context.Context, text string) error
	// Receive blocks for the next text message.
	Receive(ctx context.Context) (string, error)
	// Close ends the channel. Closing twice is not an error.
	Close() error
	// RemoteAddr describes the peer.
	RemoteAddr() string
}
