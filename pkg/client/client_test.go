package client_test

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/client"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/lightforgemedia/go-mcws/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOverWebSocket(t *testing.T) {
	chats := make(chan string, 1)
	ts := testutil.NewTestServer(t,
		client.WithHandlerFunc(events.PlayerMessage, func(body struct {
			Message string `json:"message"`
		}) error {
			chats <- body.Message
			return nil
		}),
		client.WithHandler(events.PlayerTravelled, nopHandler),
	)

	game := testutil.DialGame(t, ts.WsURL)
	game.ExpectSubscriptions(events.PlayerMessage, events.PlayerTravelled)
	require.NoError(t, testutil.WaitForState(t, ts.Client, client.StateActive, waitTimeout))

	require.NoError(t, game.SendEvent(events.PlayerMessage, map[string]any{"message": "hello world", "type": "chat"}))
	select {
	case msg := <-chats:
		assert.Equal(t, "hello world", msg)
	case <-time.After(waitTimeout):
		t.Fatal("event not dispatched")
	}

	res := issue(ts.Client, "say hello")
	id, line := game.ReadCommand()
	assert.Equal(t, "say hello", line)
	require.NoError(t, game.SendCommandResponse(id, 0, ""))
	r := result(t, res)
	require.NoError(t, r.err)
	require.NotNil(t, r.env)
	assert.Equal(t, protocol.PurposeCommandResponse, r.env.Purpose())
	assert.Equal(t, id, r.env.Header.RequestID)

	require.NoError(t, game.Close())
	require.NoError(t, testutil.WaitForState(t, ts.Client, client.StateIdle, waitTimeout))
}

func TestClientGameErrorOverWebSocket(t *testing.T) {
	var errorsSeen atomic.Int32
	ts := testutil.NewTestServer(t, client.WithOnError(func(ctx context.Context, env *protocol.Envelope) error {
		errorsSeen.Add(1)
		return nil
	}))
	game := testutil.DialGame(t, ts.WsURL)
	require.NoError(t, testutil.WaitForState(t, ts.Client, client.StateActive, waitTimeout))

	require.NoError(t, game.SendError(-2147483648, "Unknown command"))
	require.NoError(t, testutil.WaitFor(t, "error hook", waitTimeout, func() bool { return errorsSeen.Load() == 1 }))
	assert.Equal(t, client.StateActive, ts.Client.State())
}

func TestClientMalformedFrameDropsGame(t *testing.T) {
	disconnected := make(chan error, 1)
	ts := testutil.NewTestServer(t, client.WithOnDisconnect(func(ctx context.Context, err error) {
		disconnected <- err
	}))
	game := testutil.DialGame(t, ts.WsURL)
	require.NoError(t, testutil.WaitForState(t, ts.Client, client.StateActive, waitTimeout))

	require.NoError(t, game.SendRaw("{not json"))
	select {
	case err := <-disconnected:
		assert.ErrorIs(t, err, protocol.ErrMalformedMessage)
	case <-time.After(waitTimeout):
		t.Fatal("disconnect hook not called")
	}
	_, err := game.ReadEnvelope(time.Second)
	assert.Error(t, err, "endpoint closed the connection")
}

func TestListenAndServe(t *testing.T) {
	ready := make(chan string, 1)
	c, err := client.New(
		client.WithLogger(testutil.DefaultLogger),
		client.WithAddress("127.0.0.1", 0),
		client.WithHandler(events.PlayerMessage, nopHandler),
		client.WithOnReady(func(addr string) { ready <- addr }),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- c.ListenAndServe(ctx)
	}()

	var addr string
	select {
	case addr = <-ready:
	case <-time.After(waitTimeout):
		t.Fatal("server never became ready")
	}
	assert.Equal(t, addr, c.Addr())
	host, _, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)

	game := testutil.DialGame(t, "ws://"+addr+"/")
	game.ExpectSubscriptions(events.PlayerMessage)
	require.NoError(t, testutil.WaitForState(t, c, client.StateActive, waitTimeout))

	pending := issue(c, "say shutting down")
	game.ReadCommand()

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * waitTimeout):
		t.Fatal("ListenAndServe did not return")
	}
	r := result(t, pending)
	assert.ErrorIs(t, r.err, protocol.ErrConnectionClosed)
	assert.NoError(t, c.Close())
}

func TestListenAndServeAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	c, err := client.New(client.WithLogger(testutil.DefaultLogger), client.WithAddress("127.0.0.1", p))
	require.NoError(t, err)
	defer c.Close()

	err = c.ListenAndServe(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listen"), err.Error())
}

func TestServeAfterClose(t *testing.T) {
	c, err := client.New(client.WithLogger(testutil.DefaultLogger))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Serve(context.Background(), ln), client.ErrClientClosed)
}
