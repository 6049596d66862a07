// protocol/envelope.go
package protocol

import (
	"encoding/json"
	"fmt"
)

// Purpose is the value of header.messagePurpose.
type Purpose string

// Message purposes used by the game's WebSocket protocol.
const (
	PurposeSubscribe       Purpose = "subscribe"
	PurposeUnsubscribe     Purpose = "unsubscribe"
	PurposeCommandRequest  Purpose = "commandRequest"
	PurposeCommandResponse Purpose = "commandResponse"
	PurposeEvent           Purpose = "event"
	PurposeError           Purpose = "error"
)

const (
	// Version is the only header version the game speaks.
	Version = 1
	// MessageTypeCommandRequest is the messageType of every outbound envelope.
	MessageTypeCommandRequest = "commandRequest"
)

// Header is the envelope header. Field order matches the wire format.
type Header struct {
	RequestID      string  `json:"requestId"`
	MessagePurpose Purpose `json:"messagePurpose"`
	Version        int     `json:"version"`
	MessageType    string  `json:"messageType"`
	// EventName is set on event envelopes by newer game builds.
	EventName string `json:"eventName,omitempty"`
}

// Envelope is the header+body unit exchanged with the game.
// Body is kept raw so unknown fields survive a decode/encode cycle.
type Envelope struct {
	Body   json.RawMessage `json:"body"`
	Header Header          `json:"header"`
}

// SubscribeBody is the body of a subscribe envelope.
type SubscribeBody struct {
	EventName string `json:"eventName"`
}

// Origin identifies who issued a command.
type Origin struct {
	Type string `json:"type"`
}

// CommandRequestBody is the body of a commandRequest envelope.
type CommandRequestBody struct {
	Origin      Origin `json:"origin"`
	CommandLine string `json:"commandLine"`
	Version     int    `json:"version"`
}

// NewEnvelope builds an envelope for purpose. body may be nil, a
// json.RawMessage, or any value encoding/json can marshal.
func NewEnvelope(purpose Purpose, body any, requestID string) (*Envelope, error) {
	raw, err := marshalBody(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s body: %w", purpose, err)
	}
	messageType := MessageTypeCommandRequest
	switch purpose {
	case PurposeSubscribe, PurposeUnsubscribe, PurposeCommandRequest:
	default:
		messageType = string(purpose)
	}
	return &Envelope{
		Body: raw,
		Header: Header{
			RequestID:      requestID,
			MessagePurpose: purpose,
			Version:        Version,
			MessageType:    messageType,
		},
	}, nil
}

// NewSubscribe builds the subscribe envelope for eventName.
func NewSubscribe(eventName string) *Envelope {
	return mustEnvelope(PurposeSubscribe, SubscribeBody{EventName: eventName}, ZeroRequestID)
}

// NewUnsubscribe builds the unsubscribe envelope for eventName.
func NewUnsubscribe(eventName string) *Envelope {
	return mustEnvelope(PurposeUnsubscribe, SubscribeBody{EventName: eventName}, ZeroRequestID)
}

// NewCommandRequest builds a commandRequest issued with player origin.
func NewCommandRequest(requestID, commandLine string) *Envelope {
	return mustEnvelope(PurposeCommandRequest, CommandRequestBody{
		Origin:      Origin{Type: "player"},
		CommandLine: commandLine,
		Version:     Version,
	}, requestID)
}

// mustEnvelope is NewEnvelope for the fixed body structs above, which hold
// only strings and ints and always marshal.
func mustEnvelope(purpose Purpose, body any, requestID string) *Envelope {
	env, err := NewEnvelope(purpose, body, requestID)
	if err != nil {
		panic(err)
	}
	return env
}

func marshalBody(body any) (json.RawMessage, error) {
	switch b := body.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(b) == 0 {
			return json.RawMessage("{}"), nil
		}
		return b, nil
	default:
		return json.Marshal(body)
	}
}

// Purpose returns header.messagePurpose.
func (e *Envelope) Purpose() Purpose {
	return e.Header.MessagePurpose
}

// EventName returns body.eventName, falling back to header.eventName.
func (e *Envelope) EventName() string {
	var body struct {
		EventName string `json:"eventName"`
	}
	if len(e.Body) > 0 && json.Unmarshal(e.Body, &body) == nil && body.EventName != "" {
		return body.EventName
	}
	return e.Header.EventName
}

// DecodeBody unmarshals the body into v (must be a pointer).
func (e *Envelope) DecodeBody(v any) error {
	if len(e.Body) == 0 || string(e.Body) == "null" {
		return nil
	}
	return json.Unmarshal(e.Body, v)
}

// StatusCode returns body.statusCode of a command response, and whether it
// was present. Zero means the command succeeded.
func (e *Envelope) StatusCode() (int, bool) {
	var body struct {
		StatusCode *int `json:"statusCode"`
	}
	if err := e.DecodeBody(&body); err != nil || body.StatusCode == nil {
		return 0, false
	}
	return *body.StatusCode, true
}

// StatusMessage returns body.statusMessage of a command response, or ""
// when the body does not decode.
func (e *Envelope) StatusMessage() string {
	var body struct {
		StatusMessage string `json:"statusMessage"`
	}
	if err := e.DecodeBody(&body); err != nil {
		return ""
	}
	return body.StatusMessage
}
