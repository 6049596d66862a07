package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lightforgemedia/go-mcws/pkg/config"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mcws dev")
}

func TestEventsCommand(t *testing.T) {
	out, err := execute(t, "events")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(events.Known))
	assert.Contains(t, lines, events.PlayerMessage)

	out, err = execute(t, "events", "--subjects", "--prefix", "mc")
	require.NoError(t, err)
	assert.Contains(t, out, "mc.events.player_message")
}

func TestServeRejectsInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"port out of range", []string{"serve", "--port", "70000"}, "listen.port"},
		{"unknown match policy", []string{"serve", "--match-policy", "whenever"}, "match"},
		{"unknown log level", []string{"serve", "--log-level", "loud"}, "level"},
		{"watch without script", []string{"serve", "--watch"}, "script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestServeRejectsBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcws.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  bogus: 1\n"), 0o644))

	_, err := execute(t, "serve", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hello", "event", events.PlayerMessage)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"event":"PlayerMessage"`)

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
