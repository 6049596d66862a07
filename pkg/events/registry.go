// Package events maps game event names to the handlers that consume them.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// ErrSealed is returned by Register after Seal.
var ErrSealed = errors.New("event registry is sealed")

// Listener declares a set of event handlers, typically on the host's own
// type. Names are registered in sorted order.
type Listener interface {
	EventHandlers() map[string]HandlerFunc
}

// Registry maps event names to handlers. Registering a name twice replaces
// the handler but keeps the name's original position in Names.
type Registry struct {
	mu       sync.RWMutex
	names    []string
	handlers map[string]HandlerFunc
	sealed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register installs h for name.
func (r *Registry) Register(name string, h HandlerFunc) error {
	if name == "" {
		return fmt.Errorf("%w: empty event name", ErrInvalidHandler)
	}
	if h == nil {
		return fmt.Errorf("%w: nil handler for event %q", ErrInvalidHandler, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", name, ErrSealed)
	}
	if _, exists := r.handlers[name]; !exists {
		r.names = append(r.names, name)
	}
	r.handlers[name] = h
	return nil
}

// RegisterFunc validates fn with Wrap and installs it for name.
func (r *Registry) RegisterFunc(name string, fn any) error {
	h, err := Wrap(fn)
	if err != nil {
		return fmt.Errorf("event %q: %w", name, err)
	}
	return r.Register(name, h)
}

// RegisterListener installs every handler l declares.
func (r *Registry) RegisterListener(l Listener) error {
	if l == nil {
		return fmt.Errorf("%w: nil listener", ErrInvalidHandler)
	}
	handlers := l.EventHandlers()
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Register(name, handlers[name]); err != nil {
			return err
		}
	}
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Dispatch invokes the handler registered under name. Unknown names are a
// no-op. Handler failures are returned as *protocol.HandlerError.
func (r *Registry) Dispatch(ctx context.Context, name string, env *protocol.Envelope) error {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := h(ctx, env); err != nil {
		return &protocol.HandlerError{Event: name, Err: err}
	}
	return nil
}

// Has reports whether a handler is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered event names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered events.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
