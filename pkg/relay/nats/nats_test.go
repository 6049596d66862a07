package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/lightforgemedia/go-mcws/pkg/relay"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ relay.Relay = (*Relay)(nil)

func TestSubjects(t *testing.T) {
	assert.Equal(t, "mcws.events.player_message", EventSubject("mcws", events.PlayerMessage))
	assert.Equal(t, "game.events.api_init", EventSubject("game", events.APIInit))
	assert.Equal(t, "mcws.events.unknown", EventSubject("mcws", ""))
	assert.Equal(t, "mcws.commands", CommandSubject(DefaultSubjectPrefix))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(Options{URL: "nats://127.0.0.1:1", ConnectionOptions: []nats.Option{nats.Timeout(200 * time.Millisecond)}})
	assert.Error(t, err)
}

func TestRelay_PublishesEvents(t *testing.T) {
	// Skip if no NATS server is running
	if !isNATSServerRunning() {
		t.Skip("Skipping test because no NATS server is running")
	}

	r, err := New(Options{SubjectPrefix: "mcwstest"})
	require.NoError(t, err)
	defer r.Close()

	sub, err := r.conn.SubscribeSync(EventSubject("mcwstest", events.PlayerMessage))
	require.NoError(t, err)
	defer sub.Unsubscribe()

	env, err := protocol.NewEnvelope(protocol.PurposeEvent, map[string]any{"message": "hi"}, protocol.ZeroRequestID)
	require.NoError(t, err)
	env.Header.EventName = events.PlayerMessage
	require.NoError(t, r.Relay(context.Background(), env))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	var got protocol.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, events.PlayerMessage, got.EventName())
	assert.JSONEq(t, `{"message":"hi"}`, string(got.Body))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Relay(ctx, env), context.Canceled)
	assert.Error(t, r.Relay(context.Background(), nil))
}

type fakeCommander struct {
	env *protocol.Envelope
	err error
}

func (f *fakeCommander) Command(ctx context.Context, line string) (*protocol.Envelope, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.env == nil {
		return nil, nil
	}
	return f.env, nil
}

func TestRelay_ServeCommands(t *testing.T) {
	// Skip if no NATS server is running
	if !isNATSServerRunning() {
		t.Skip("Skipping test because no NATS server is running")
	}

	resp, err := protocol.NewEnvelope(protocol.PurposeCommandResponse, map[string]any{"statusCode": 0, "statusMessage": "done"}, protocol.GenerateID())
	require.NoError(t, err)

	tests := []struct {
		name      string
		commander *fakeCommander
		check     func(t *testing.T, reply *CommandReply)
	}{
		{"matched", &fakeCommander{env: resp}, func(t *testing.T, reply *CommandReply) {
			assert.True(t, reply.Matched)
			require.NotNil(t, reply.Response)
			assert.Equal(t, "done", reply.Response.StatusMessage())
		}},
		{"no match", &fakeCommander{}, func(t *testing.T, reply *CommandReply) {
			assert.False(t, reply.Matched)
			assert.Empty(t, reply.Error)
		}},
		{"failed", &fakeCommander{err: errors.New("not connected")}, func(t *testing.T, reply *CommandReply) {
			assert.False(t, reply.Matched)
			assert.Equal(t, "not connected", reply.Error)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(Options{SubjectPrefix: "mcwstest-" + protocol.GenerateID()[:8]})
			require.NoError(t, err)
			defer r.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			require.NoError(t, r.ServeCommands(ctx, tt.commander))

			reqCtx, reqCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer reqCancel()
			reply, err := r.Command(reqCtx, "say hi")
			require.NoError(t, err)
			tt.check(t, reply)
		})
	}
}

func isNATSServerRunning() bool {
	nc, err := nats.Connect(nats.DefaultURL)
	if err != nil {
		return false
	}
	nc.Close()
	return true
}
