package client_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-mcws/pkg/client"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := client.DefaultOptions()

	assert.NotNil(t, opts.Logger)
	assert.Equal(t, "0.0.0.0", opts.Host)
	assert.Equal(t, 8000, opts.Port)
	assert.Greater(t, opts.WriteTimeout, time.Duration(0))
	assert.Greater(t, opts.ReadLimit, int64(0))
	assert.Equal(t, client.MatchNextMessage, opts.MatchPolicy)
	assert.Nil(t, opts.Metrics)
}

func TestNewWithOptions_Valid(t *testing.T) {
	tests := []struct {
		name string
		opts client.Options
	}{
		{
			name: "default options",
			opts: client.DefaultOptions(),
		},
		{
			name: "custom values",
			opts: client.Options{
				Logger:        slog.Default(),
				Host:          "127.0.0.1",
				Port:          19131,
				AcceptOptions: &websocket.AcceptOptions{OriginPatterns: []string{"*"}},
				WriteTimeout:  time.Second,
				ReadLimit:     4096,
				MatchPolicy:   client.MatchRequestID,
			},
		},
		{
			name: "zero values (should use defaults)",
			opts: client.Options{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.NewWithOptions(tt.opts)
			require.NoError(t, err)
			require.NotNil(t, c)
			assert.Equal(t, client.StateIdle, c.State())
			assert.NoError(t, c.Close())
		})
	}
}

func TestNewWithOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*client.Options)
	}{
		{"negative port", func(o *client.Options) { o.Port = -1 }},
		{"port too large", func(o *client.Options) { o.Port = 70000 }},
		{"negative write timeout", func(o *client.Options) { o.WriteTimeout = -time.Second }},
		{"negative read limit", func(o *client.Options) { o.ReadLimit = -1 }},
		{"unknown match policy", func(o *client.Options) { o.MatchPolicy = client.MatchPolicy(7) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := client.DefaultOptions()
			tt.modify(&opts)
			c, err := client.NewWithOptions(opts)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestNewWithOptions_ExtraOptionsOverride(t *testing.T) {
	opts := client.DefaultOptions()
	c, err := client.NewWithOptions(opts,
		client.WithHandler(events.PlayerMessage, func(ctx context.Context, env *protocol.Envelope) error { return nil }),
	)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, []string{events.PlayerMessage}, c.Events())
}

func TestNewRejectsInvalidHandlers(t *testing.T) {
	tests := []struct {
		name string
		opt  client.Option
	}{
		{"empty name", client.WithHandler("", func(ctx context.Context, env *protocol.Envelope) error { return nil })},
		{"nil handler", client.WithHandler(events.PlayerMessage, nil)},
		{"not a function", client.WithHandlerFunc(events.PlayerMessage, 42)},
		{"no error result", client.WithHandlerFunc(events.PlayerMessage, func(env *protocol.Envelope) {})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := client.New(tt.opt)
			assert.ErrorIs(t, err, events.ErrInvalidHandler)
			assert.Nil(t, c)
		})
	}
}

func TestParseMatchPolicy(t *testing.T) {
	for _, p := range []client.MatchPolicy{client.MatchNextMessage, client.MatchRequestID} {
		got, err := client.ParseMatchPolicy(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := client.ParseMatchPolicy("")
	require.NoError(t, err)
	assert.Equal(t, client.MatchNextMessage, got)

	_, err = client.ParseMatchPolicy("whenever")
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", client.StateIdle.String())
	assert.Equal(t, "active", client.StateActive.String())
	assert.Equal(t, "closed", client.StateClosed.String())
	assert.Equal(t, "State(42)", client.State(42).String())
}
