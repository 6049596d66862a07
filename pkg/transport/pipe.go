package transport

import (
	"context"
	"fmt"
	"sync"
)

// PipeEnd is one side of an in-memory Transport pair.
type PipeEnd struct {
	name string
	in   <-chan string
	out  chan<- string

	// shared by both ends
	done      chan struct{}
	closeOnce *sync.Once
}

// Pipe returns two connected in-memory transports. Messages sent on one end
// are received on the other in order. Closing either end closes both.
func Pipe() (*PipeEnd, *PipeEnd) {
	ab := make(chan string, 64)
	ba := make(chan string, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &PipeEnd{name: "pipe-a", in: ba, out: ab, done: done, closeOnce: once}
	b := &PipeEnd{name: "pipe-b", in: ab, out: ba, done: done, closeOnce: once}
	return a, b
}

// Send queues text for the other end.
func (p *PipeEnd) Send(ctx context.Context, text string) error {
	select {
	case <-p.done:
		return fmt.Errorf("%s send: %w", p.name, ErrClosed)
	default:
	}
	select {
	case p.out <- text:
		return nil
	case <-p.done:
		return fmt.Errorf("%s send: %w", p.name, ErrClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next message from the other end. Messages already
// queued are delivered before the closure is reported.
func (p *PipeEnd) Receive(ctx context.Context) (string, error) {
	select {
	case text := <-p.in:
		return text, nil
	default:
	}
	select {
	case text := <-p.in:
		return text, nil
	case <-p.done:
		return "", fmt.Errorf("%s receive: %w", p.name, ErrClosed)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close closes both ends.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// RemoteAddr names the pipe.
func (p *PipeEnd) RemoteAddr() string { return p.name }

// Done is closed when the pipe is closed.
func (p *PipeEnd) Done() <-chan struct{} { return p.done }
