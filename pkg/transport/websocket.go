// transport/websocket.go
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultReadLimit    = 1024 * 1024 // 1MB
)

// WebSocketOptions configures an accepted WebSocket transport.
type WebSocketOptions struct {
	// AcceptOptions is passed to websocket.Accept. Defaults to
	// InsecureSkipVerify so the game, which sends no Origin, is accepted.
	AcceptOptions *websocket.AcceptOptions
	// WriteTimeout bounds each Send. Defaults to 10 seconds.
	WriteTimeout time.Duration
	// ReadLimit is the maximum inbound message size. Defaults to 1MB.
	ReadLimit int64
}

// WebSocket is a Transport over an accepted github.com/coder/websocket
// connection.
type WebSocket struct {
	conn         *websocket.Conn
	remote       string
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Accept upgrades an HTTP request to a WebSocket transport.
func Accept(w http.ResponseWriter, r *http.Request, opts WebSocketOptions) (*WebSocket, error) {
	acceptOpts := opts.AcceptOptions
	if acceptOpts == nil {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to accept websocket connection: %w", err)
	}
	return NewWebSocket(conn, r.RemoteAddr, opts), nil
}

// NewWebSocket wraps an established connection.
func NewWebSocket(conn *websocket.Conn, remote string, opts WebSocketOptions) *WebSocket {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	conn.SetReadLimit(opts.ReadLimit)
	return &WebSocket{conn: conn, remote: remote, writeTimeout: opts.WriteTimeout}
}

// Send writes text as a single text frame.
func (ws *WebSocket) Send(ctx context.Context, text string) error {
	writeCtx, cancel := context.WithTimeout(ctx, ws.writeTimeout)
	defer cancel()
	if err := ws.conn.Write(writeCtx, websocket.MessageText, []byte(text)); err != nil {
		return ws.wrap(err)
	}
	return nil
}

// Receive reads the next message. Binary frames are returned as text.
func (ws *WebSocket) Receive(ctx context.Context) (string, error) {
	_, data, err := ws.conn.Read(ctx)
	if err != nil {
		return "", ws.wrap(err)
	}
	return string(data), nil
}

// Close sends a normal closure. Later calls return the first result.
func (ws *WebSocket) Close() error {
	return ws.CloseWithStatus(websocket.StatusNormalClosure, "")
}

// CloseWithStatus closes the connection with a specific status code.
func (ws *WebSocket) CloseWithStatus(code websocket.StatusCode, reason string) error {
	ws.closeOnce.Do(func() {
		err := ws.conn.Close(code, reason)
		if err != nil && !isClosedErr(err) {
			ws.closeErr = err
		}
	})
	return ws.closeErr
}

// RemoteAddr returns the peer address from the upgrade request.
func (ws *WebSocket) RemoteAddr() string { return ws.remote }

func (ws *WebSocket) wrap(err error) error {
	if isClosedErr(err) {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}

func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if websocket.CloseStatus(err) != -1 {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled)
}
