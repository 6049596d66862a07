// pkg/relay/ps/ps.go
package ps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cskr/pubsub"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// AllEvents is the topic every relayed event is also published on.
const AllEvents = "*"

// ErrClosed is returned by Relay after Close.
var ErrClosed = errors.New("event bus closed")

// Bus fans game events out to in-process subscribers by event name using
// cskr/pubsub. Relay never waits on a subscriber: events for a subscriber
// whose channel is full are dropped and counted.
type Bus struct {
	bus      *pubsub.PubSub
	capacity int
	logger   *slog.Logger
	dropped  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a Bus whose subscriber channels buffer capacity events.
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity < 0 {
		capacity = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		bus:      pubsub.New(capacity),
		capacity: capacity,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Relay publishes env on its event name and on AllEvents.
func (b *Bus) Relay(ctx context.Context, env *protocol.Envelope) error {
	if env == nil {
		return fmt.Errorf("cannot relay nil envelope")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	name := env.EventName()
	b.logger.Debug(fmt.Sprintf("Bus: publishing %s", name))
	b.bus.Pub(env, name, AllEvents)
	return nil
}

// Subscribe returns a channel receiving events named in names, or every
// event when names is empty. The channel is closed when ctx is done or the
// bus is closed.
func (b *Bus) Subscribe(ctx context.Context, names ...string) <-chan *protocol.Envelope {
	topics := names
	if len(topics) == 0 {
		topics = []string{AllEvents}
	}
	out := make(chan *protocol.Envelope, b.capacity)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		close(out)
		return out
	}
	ch := b.bus.Sub(topics...)
	b.mu.RUnlock()
	b.logger.Debug(fmt.Sprintf("Bus: subscribed to %v", topics))

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				b.unsub(ch)
				return
			case <-b.done:
				drain(ch)
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				env, ok := v.(*protocol.Envelope)
				if !ok {
					continue
				}
				select {
				case out <- env:
				default:
					b.dropped.Add(1)
					b.logger.Warn(fmt.Sprintf("Bus: subscriber to %v is full, dropped %s", topics, env.EventName()))
				}
			}
		}
	}()
	return out
}

// Dropped returns how many events were dropped for full subscribers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// drain keeps the bus goroutine from blocking on ch after its reader left.
// ch is closed on Unsub or Shutdown.
func drain(ch chan interface{}) {
	go func() {
		for range ch {
		}
	}()
}

func (b *Bus) unsub(ch chan interface{}) {
	drain(ch)
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.closed {
		b.bus.Unsub(ch)
	}
}

// Close shuts the bus down and closes every subscriber channel. It is safe
// to call more than once.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	b.bus.Shutdown()
	b.logger.Info("Bus: closed")
	return nil
}
