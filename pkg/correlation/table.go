// Package correlation matches command responses to the requests that caused
// them using the envelope requestId.
package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

type result struct {
	env *protocol.Envelope
	err error
}

// Request is an in-flight command awaiting its response.
type Request struct {
	ID      string
	Created time.Time

	ch     chan result // buffered 1; written exactly once
	armSeq uint64      // zero until armed
}

// Done reports whether the request has been resolved, settled or failed
// and not yet awaited.
func (r *Request) Done() bool { return len(r.ch) > 0 }

// Table tracks in-flight requests for one session.
type Table struct {
	mu      sync.Mutex
	pending map[string]*Request
	closed  error
	seq     uint64
	newID   func() string
}

// New creates an empty table.
func New() *Table {
	return &Table{
		pending: make(map[string]*Request),
		newID:   protocol.GenerateID,
	}
}

// Register allocates a fresh request id with an empty completion slot.
// It fails once the table has been closed by FailAll.
func (t *Table) Register() (*Request, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed != nil {
		return nil, t.closed
	}
	id := t.newID()
	for _, taken := t.pending[id]; taken; _, taken = t.pending[id] {
		id = t.newID()
	}
	req := &Request{ID: id, Created: time.Now(), ch: make(chan result, 1)}
	t.pending[id] = req
	return req, nil
}

// Arm marks id as issued. Only armed requests are settled by SettleUnmatched.
func (t *Table) Arm(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if req, ok := t.pending[id]; ok && req.armSeq == 0 {
		t.seq++
		req.armSeq = t.seq
	}
}

// Mark returns a position covering every request armed so far. Take it when
// a message arrives and pass it to SettleUnmatched once that message has
// been handled.
func (t *Table) Mark() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seq
}

// Resolve delivers env to the request for id and removes it. It returns
// false for unknown ids: stale, duplicate and foreign responses are dropped.
func (t *Table) Resolve(id string, env *protocol.Envelope) bool {
	t.mu.Lock()
	req, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	req.ch <- result{env: env}
	return true
}

// SettleUnmatched completes every request armed at or before mark with the
// no-match result (nil envelope, nil error) and returns how many were
// settled.
func (t *Table) SettleUnmatched(mark uint64) int {
	t.mu.Lock()
	var settled []*Request
	for id, req := range t.pending {
		if req.armSeq != 0 && req.armSeq <= mark {
			settled = append(settled, req)
			delete(t.pending, id)
		}
	}
	t.mu.Unlock()
	for _, req := range settled {
		req.ch <- result{}
	}
	return len(settled)
}

// Await blocks until req is resolved, settled, failed, or ctx is done.
// A nil envelope with a nil error means no matching response arrived.
func (t *Table) Await(ctx context.Context, req *Request) (*protocol.Envelope, error) {
	select {
	case r := <-req.ch:
		return r.env, r.err
	case <-ctx.Done():
		t.Cancel(req.ID)
		// A result may have raced the cancellation.
		select {
		case r := <-req.ch:
			return r.env, r.err
		default:
		}
		return nil, ctx.Err()
	}
}

// Cancel drops the request for id without completing it.
func (t *Table) Cancel(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// FailAll completes every pending request with err (ErrConnectionClosed
// when err is nil) and closes the table to new registrations.
func (t *Table) FailAll(err error) int {
	if err == nil {
		err = protocol.ErrConnectionClosed
	}
	t.mu.Lock()
	if t.closed == nil {
		t.closed = err
	}
	failed := make([]*Request, 0, len(t.pending))
	for id, req := range t.pending {
		failed = append(failed, req)
		delete(t.pending, id)
	}
	t.mu.Unlock()
	for _, req := range failed {
		req.ch <- result{err: err}
	}
	return len(failed)
}

// Len returns the number of in-flight requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Oldest returns the age of the oldest in-flight request, or zero.
func (t *Table) Oldest() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var oldest time.Time
	for _, req := range t.pending {
		if oldest.IsZero() || req.Created.Before(oldest) {
			oldest = req.Created
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return time.Since(oldest)
}
