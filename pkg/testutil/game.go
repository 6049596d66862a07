package testutil

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
)

// DefaultReadTimeout bounds FakeGame reads.
const DefaultReadTimeout = 5 * time.Second

// FakeGame plays the game's side of the connection: it dials the endpoint,
// reads what the endpoint sends and writes events and responses back.
type FakeGame struct {
	T    *testing.T
	Conn *websocket.Conn

	writeMu sync.Mutex
	closed  bool
}

// DialGame connects a FakeGame to wsURL. The connection is closed on test
// cleanup.
func DialGame(t *testing.T, wsURL string) *FakeGame {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("FakeGame: dial %s: %v", wsURL, err)
	}
	g := &FakeGame{T: t, Conn: conn}
	t.Cleanup(func() {
		g.Close()
	})
	return g
}

// ReadEnvelope reads and decodes the next message from the endpoint.
func (g *FakeGame) ReadEnvelope(timeout time.Duration) (*protocol.Envelope, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := g.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := g.Conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return protocol.Decode(string(data))
}

// ExpectSubscriptions reads one subscribe envelope per name, in order, and
// fails the test on any mismatch.
func (g *FakeGame) ExpectSubscriptions(names ...string) {
	g.T.Helper()
	for i, name := range names {
		env, err := g.ReadEnvelope(0)
		if err != nil {
			g.T.Fatalf("FakeGame: reading subscription %d (%s): %v", i, name, err)
		}
		if env.Purpose() != protocol.PurposeSubscribe {
			g.T.Fatalf("FakeGame: message %d has purpose %q, want subscribe", i, env.Purpose())
		}
		if got := env.EventName(); got != name {
			g.T.Fatalf("FakeGame: subscription %d is %q, want %q", i, got, name)
		}
	}
}

// ReadCommand reads the next envelope and fails the test unless it is a
// command request. It returns the request id and command line.
func (g *FakeGame) ReadCommand() (string, string) {
	g.T.Helper()
	env, err := g.ReadEnvelope(0)
	if err != nil {
		g.T.Fatalf("FakeGame: reading command: %v", err)
	}
	if env.Purpose() != protocol.PurposeCommandRequest {
		g.T.Fatalf("FakeGame: got purpose %q, want commandRequest", env.Purpose())
	}
	var body protocol.CommandRequestBody
	if err := env.DecodeBody(&body); err != nil {
		g.T.Fatalf("FakeGame: decoding command body: %v", err)
	}
	return env.Header.RequestID, body.CommandLine
}

// SendEvent writes an event envelope carrying name in its header.
func (g *FakeGame) SendEvent(name string, body any) error {
	env, err := protocol.NewEnvelope(protocol.PurposeEvent, body, protocol.ZeroRequestID)
	if err != nil {
		return err
	}
	env.Header.EventName = name
	return g.send(env)
}

// SendCommandResponse answers the command with requestID.
func (g *FakeGame) SendCommandResponse(requestID string, statusCode int, statusMessage string) error {
	env, err := protocol.NewEnvelope(protocol.PurposeCommandResponse, map[string]any{
		"statusCode":    statusCode,
		"statusMessage": statusMessage,
	}, requestID)
	if err != nil {
		return err
	}
	return g.send(env)
}

// SendError writes an error envelope.
func (g *FakeGame) SendError(statusCode int, statusMessage string) error {
	env, err := protocol.NewEnvelope(protocol.PurposeError, map[string]any{
		"statusCode":    statusCode,
		"statusMessage": statusMessage,
	}, protocol.ZeroRequestID)
	if err != nil {
		return err
	}
	return g.send(env)
}

// SendRaw writes text unchanged.
func (g *FakeGame) SendRaw(text string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.Conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (g *FakeGame) send(env *protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("FakeGame: marshal: %w", err)
	}
	return g.SendRaw(string(data))
}

// Close sends a normal closure and closes the connection. It is safe to
// call more than once.
func (g *FakeGame) Close() error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = g.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return g.Conn.Close()
}
