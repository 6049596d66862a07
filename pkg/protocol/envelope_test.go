package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeWireShape(t *testing.T) {
	text, err := protocol.EncodeEnvelope(protocol.NewSubscribe("PlayerMessage"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"body":{"eventName":"PlayerMessage"},"header":{"requestId":"00000000-0000-0000-0000-000000000000","messagePurpose":"subscribe","version":1,"messageType":"commandRequest"}}`,
		text)
}

func TestCommandRequestWireShape(t *testing.T) {
	id := protocol.GenerateID()
	text, err := protocol.EncodeEnvelope(protocol.NewCommandRequest(id, "say hello"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"body":{"origin":{"type":"player"},"commandLine":"say hello","version":1},"header":{"requestId":"`+id+`","messagePurpose":"commandRequest","version":1,"messageType":"commandRequest"}}`,
		text)
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := protocol.GenerateID()
		require.NotEqual(t, protocol.ZeroRequestID, id)
		require.Len(t, id, 36)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestDecode(t *testing.T) {
	t.Run("Event keeps exact body", func(t *testing.T) {
		text := `{"header":{"messagePurpose":"event"},"body":{"eventName":"PlayerMessage","properties":{"Message":"hi"}}}`
		env, err := protocol.Decode(text)
		require.NoError(t, err)
		assert.Equal(t, protocol.PurposeEvent, env.Purpose())
		assert.Equal(t, "PlayerMessage", env.EventName())
		assert.JSONEq(t, `{"eventName":"PlayerMessage","properties":{"Message":"hi"}}`, string(env.Body))
	})

	t.Run("Event name from header", func(t *testing.T) {
		env, err := protocol.Decode(`{"header":{"messagePurpose":"event","eventName":"BlockBroken"},"body":{"count":1}}`)
		require.NoError(t, err)
		assert.Equal(t, "BlockBroken", env.EventName())
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		_, err := protocol.Decode(`{"header":`)
		require.ErrorIs(t, err, protocol.ErrMalformedMessage)
		assert.NotErrorIs(t, err, protocol.ErrProtocol)
	})

	t.Run("Missing header", func(t *testing.T) {
		_, err := protocol.Decode(`{"body":{}}`)
		require.ErrorIs(t, err, protocol.ErrMalformedMessage)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
	})

	t.Run("Missing purpose", func(t *testing.T) {
		_, err := protocol.Decode(`{"header":{"requestId":"x","version":1},"body":{}}`)
		require.ErrorIs(t, err, protocol.ErrMalformedMessage)
		assert.ErrorIs(t, err, protocol.ErrProtocol)
	})

	t.Run("Unknown purpose passes", func(t *testing.T) {
		env, err := protocol.Decode(`{"header":{"messagePurpose":"ws:encrypt"},"body":{}}`)
		require.NoError(t, err)
		assert.Equal(t, protocol.Purpose("ws:encrypt"), env.Purpose())
	})
}

func TestCommandResponseRoundTrip(t *testing.T) {
	body := json.RawMessage(`{"statusCode":0,"statusMessage":"Hello","extra":{"nested":[1,2,3]}}`)
	id := protocol.GenerateID()

	text, err := protocol.Encode(protocol.PurposeCommandResponse, body, id)
	require.NoError(t, err)

	env, err := protocol.Decode(text)
	require.NoError(t, err)
	assert.JSONEq(t, string(body), string(env.Body))
	assert.Equal(t, id, env.Header.RequestID)
	assert.Equal(t, protocol.PurposeCommandResponse, env.Purpose())
	assert.Equal(t, "commandResponse", env.Header.MessageType)

	code, ok := env.StatusCode()
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	assert.Equal(t, "Hello", env.StatusMessage())
}

func TestDecodeBody(t *testing.T) {
	env, err := protocol.Decode(`{"header":{"messagePurpose":"event"},"body":{"eventName":"PlayerMessage","properties":{"Message":"hi","Sender":"Steve"}}}`)
	require.NoError(t, err)

	var body struct {
		Properties struct {
			Message string `json:"Message"`
			Sender  string `json:"Sender"`
		} `json:"properties"`
	}
	require.NoError(t, env.DecodeBody(&body))
	assert.Equal(t, "hi", body.Properties.Message)
	assert.Equal(t, "Steve", body.Properties.Sender)

	_, ok := env.StatusCode()
	assert.False(t, ok)
}

func TestStatusHelpersOnUndecodableBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong field types", `{"statusCode":"zero","statusMessage":42}`},
		{"not an object", `"done"`},
		{"empty body", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &protocol.Envelope{Body: json.RawMessage(tt.body)}
			_, ok := env.StatusCode()
			assert.False(t, ok)
			assert.Equal(t, "", env.StatusMessage())
		})
	}
}

func TestUnsubscribeWireShape(t *testing.T) {
	text, err := protocol.EncodeEnvelope(protocol.NewUnsubscribe("PlayerMessage"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"body":{"eventName":"PlayerMessage"},"header":{"requestId":"00000000-0000-0000-0000-000000000000","messagePurpose":"unsubscribe","version":1,"messageType":"commandRequest"}}`,
		text)
}

func TestHandlerError(t *testing.T) {
	cause := assert.AnError
	err := &protocol.HandlerError{Event: "PlayerMessage", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "PlayerMessage")
}
