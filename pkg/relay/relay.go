// Package relay forwards game events received by the protocol engine to
// other consumers. Implementations live in the ps (in-process) and nats
// subpackages.
package relay

import (
	"context"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// Relay receives every inbound event envelope after it has been dispatched.
type Relay interface {
	Relay(ctx context.Context, env *protocol.Envelope) error
	Close() error
}

// Func adapts a function to the Relay interface.
type Func func(ctx context.Context, env *protocol.Envelope) error

// Relay calls f.
func (f Func) Relay(ctx context.Context, env *protocol.Envelope) error { return f(ctx, env) }

// Close is a no-op.
func (f Func) Close() error { return nil }
