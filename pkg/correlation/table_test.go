package correlation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(t *testing.T, id string) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(protocol.PurposeCommandResponse, map[string]any{"statusCode": 0}, id)
	require.NoError(t, err)
	return env
}

func TestRegisterAllocatesUniqueIDs(t *testing.T) {
	table := New()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		req, err := table.Register()
		require.NoError(t, err)
		require.NotEqual(t, protocol.ZeroRequestID, req.ID)
		_, dup := seen[req.ID]
		require.False(t, dup)
		seen[req.ID] = struct{}{}
	}
	assert.Equal(t, 500, table.Len())
}

func TestRegisterSkipsCollidingIDs(t *testing.T) {
	table := New()
	ids := []string{"a", "a", "b"}
	table.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	first, err := table.Register()
	require.NoError(t, err)
	second, err := table.Register()
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "b", second.ID)
}

func TestResolve(t *testing.T) {
	table := New()
	req, err := table.Register()
	require.NoError(t, err)

	env := response(t, req.ID)
	assert.True(t, table.Resolve(req.ID, env))
	assert.False(t, table.Resolve(req.ID, env), "duplicate response must be dropped")
	assert.False(t, table.Resolve(protocol.GenerateID(), env), "foreign response must be dropped")

	got, err := table.Await(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, env, got)
	assert.Equal(t, 0, table.Len())
}

func TestAwaitSuspendsUntilResolved(t *testing.T) {
	table := New()
	req, err := table.Register()
	require.NoError(t, err)

	done := make(chan *protocol.Envelope)
	go func() {
		env, err := table.Await(context.Background(), req)
		assert.NoError(t, err)
		done <- env
	}()

	select {
	case <-done:
		t.Fatal("Await returned before Resolve")
	case <-time.After(50 * time.Millisecond):
	}

	env := response(t, req.ID)
	require.True(t, table.Resolve(req.ID, env))
	select {
	case got := <-done:
		assert.Same(t, env, got)
	case <-time.After(time.Second):
		t.Fatal("Await did not return after Resolve")
	}
}

func TestAwaitContextCancelled(t *testing.T) {
	table := New()
	req, err := table.Register()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	env, err := table.Await(ctx, req)
	assert.Nil(t, env)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A response arriving after the caller gave up is dropped silently.
	assert.False(t, table.Resolve(req.ID, response(t, req.ID)))
}

func TestRequestDone(t *testing.T) {
	table := New()
	req, err := table.Register()
	require.NoError(t, err)
	assert.False(t, req.Done())

	require.True(t, table.Resolve(req.ID, response(t, req.ID)))
	assert.True(t, req.Done())

	env, err := table.Await(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req.ID, env.Header.RequestID)
	assert.False(t, req.Done(), "awaiting consumes the result")

	failed, err := table.Register()
	require.NoError(t, err)
	table.FailAll(nil)
	assert.True(t, failed.Done())
}

func TestSettleUnmatchedOnlyArmed(t *testing.T) {
	table := New()
	armed, err := table.Register()
	require.NoError(t, err)
	unarmed, err := table.Register()
	require.NoError(t, err)
	table.Arm(armed.ID)
	mark := table.Mark()
	late, err := table.Register()
	require.NoError(t, err)
	table.Arm(late.ID)

	assert.Equal(t, 1, table.SettleUnmatched(mark))

	env, err := table.Await(context.Background(), armed)
	assert.NoError(t, err)
	assert.Nil(t, env, "settled request returns the no-match sentinel")
	assert.Equal(t, 2, table.Len(), "unarmed and later-armed requests stay pending")
	assert.True(t, table.Resolve(unarmed.ID, response(t, unarmed.ID)))
	assert.Equal(t, 1, table.SettleUnmatched(table.Mark()))
}

func TestFailAll(t *testing.T) {
	table := New()
	var reqs []*Request
	for i := 0; i < 3; i++ {
		req, err := table.Register()
		require.NoError(t, err)
		reqs = append(reqs, req)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(reqs))
	for _, req := range reqs {
		wg.Add(1)
		go func(req *Request) {
			defer wg.Done()
			_, err := table.Await(context.Background(), req)
			errs <- err
		}(req)
	}

	assert.Equal(t, 3, table.FailAll(nil))
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
	}

	_, err := table.Register()
	assert.ErrorIs(t, err, protocol.ErrConnectionClosed)
	assert.Equal(t, 0, table.FailAll(errors.New("second close")))
}

func TestOldest(t *testing.T) {
	table := New()
	assert.Zero(t, table.Oldest())
	_, err := table.Register()
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, table.Oldest(), 5*time.Millisecond)
}
