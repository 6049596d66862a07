package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode renders an envelope for purpose with body and requestID as wire text.
func Encode(purpose Purpose, body any, requestID string) (string, error) {
	env, err := NewEnvelope(purpose, body, requestID)
	if err != nil {
		return "", err
	}
	return EncodeEnvelope(env)
}

// EncodeEnvelope renders env as wire text.
func EncodeEnvelope(env *Envelope) (string, error) {
	if env == nil {
		return "", fmt.Errorf("%w: nil envelope", ErrProtocol)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(data), nil
}

// wireEnvelope mirrors Envelope with optional header fields so Decode can
// tell a missing key from a zero value.
type wireEnvelope struct {
	Body   json.RawMessage `json:"body"`
	Header *struct {
		RequestID      string   `json:"requestId"`
		MessagePurpose *Purpose `json:"messagePurpose"`
		Version        int      `json:"version"`
		MessageType    string   `json:"messageType"`
		EventName      string   `json:"eventName"`
	} `json:"header"`
}

// Decode parses wire text. Invalid JSON fails with ErrMalformedMessage; a
// JSON document without header.messagePurpose fails with an error matching
// both ErrMalformedMessage and ErrProtocol. Nothing else is validated.
func Decode(text string) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal([]byte(text), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.Header == nil {
		return nil, fmt.Errorf("%w: %w: missing header", ErrMalformedMessage, ErrProtocol)
	}
	if w.Header.MessagePurpose == nil || *w.Header.MessagePurpose == "" {
		return nil, fmt.Errorf("%w: %w: missing header.messagePurpose", ErrMalformedMessage, ErrProtocol)
	}
	return &Envelope{
		Body: w.Body,
		Header: Header{
			RequestID:      w.Header.RequestID,
			MessagePurpose: *w.Header.MessagePurpose,
			Version:        w.Header.Version,
			MessageType:    w.Header.MessageType,
			EventName:      w.Header.EventName,
		},
	}, nil
}
