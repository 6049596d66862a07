package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg), metrics.WithNamespace("test"))

	m.SessionOpened()
	m.SubscriptionSent()
	m.SubscriptionSent()
	m.EventReceived("PlayerMessage", "handled")
	m.GameError()
	m.ObserveCommand(metrics.CommandMatched, 10*time.Millisecond)
	m.ObserveCommand(metrics.CommandNoMatch, 5*time.Millisecond)
	m.ProtocolError("malformed")
	m.SessionClosed()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"test_sessions_total",
		"test_active_sessions",
		"test_subscriptions_sent_total",
		"test_events_total",
		"test_game_errors_total",
		"test_commands_total",
		"test_command_duration_seconds",
		"test_protocol_errors_total",
	} {
		assert.True(t, names[want], want)
	}

	count, err := testutil.GatherAndCount(reg, "test_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed()
		m.SubscriptionSent()
		m.EventReceived("PlayerMessage", "ignored")
		m.GameError()
		m.ObserveCommand(metrics.CommandClosed, time.Second)
		m.ProtocolError("handler")
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	m.SessionOpened()

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mcws_active_sessions 1")
}
