package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMessage is returned for inbound text that cannot be decoded.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrProtocol is returned for JSON that lacks required header fields.
	ErrProtocol = errors.New("protocol error")
	// ErrConnectionClosed is returned to every caller waiting on a
	// connection that has ended.
	ErrConnectionClosed = errors.New("connection closed")
)

// HandlerError reports a failure raised by an event or error handler.
type HandlerError struct {
	Event string
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for %q failed: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
