// Package metrics exposes Prometheus collectors for the protocol engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Command outcomes recorded by ObserveCommand.
const (
	CommandMatched = "matched"
	CommandNoMatch = "no_match"
	CommandClosed  = "closed"
	CommandError   = "error"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "mcws").
	Namespace string
	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels
	// Buckets are the command latency histogram buckets.
	Buckets []float64
	// Registry is where collectors are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures Config.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		if namespace != "" {
			c.Namespace = namespace
		}
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the command latency buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		if len(buckets) > 0 {
			c.Buckets = buckets
		}
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		if registry != nil {
			c.Registry = registry
		}
	}
}

// Metrics holds the collectors.
type Metrics struct {
	sessionsTotal   prometheus.Counter
	activeSessions  prometheus.Gauge
	subscriptions   prometheus.Counter
	eventsTotal     *prometheus.CounterVec
	gameErrors      prometheus.Counter
	commandsTotal   *prometheus.CounterVec
	commandDuration prometheus.Histogram
	protocolErrors  *prometheus.CounterVec
}

// New registers the collectors and returns them.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "mcws",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "sessions_total",
			Help:        "Total number of game connections accepted",
			ConstLabels: cfg.ConstLabels,
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "active_sessions",
			Help:        "Number of game connections currently active",
			ConstLabels: cfg.ConstLabels,
		}),
		subscriptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "subscriptions_sent_total",
			Help:        "Total number of subscribe envelopes sent",
			ConstLabels: cfg.ConstLabels,
		}),
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "events_total",
			Help:        "Total number of game events received by name and handling status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"event", "status"}),
		gameErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "game_errors_total",
			Help:        "Total number of error envelopes received from the game",
			ConstLabels: cfg.ConstLabels,
		}),
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "commands_total",
			Help:        "Total number of commands issued by outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"outcome"}),
		commandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "command_duration_seconds",
			Help:        "Time from sending a command to its settlement",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "protocol_errors_total",
			Help:        "Total number of sessions terminated by a protocol or handler failure",
			ConstLabels: cfg.ConstLabels,
		}, []string{"kind"}),
	}
}

// SessionOpened records an accepted connection.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

// SessionClosed records the end of a connection.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// SubscriptionSent records one subscribe envelope.
func (m *Metrics) SubscriptionSent() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

// EventReceived records an inbound event. status is "handled", "ignored"
// or "failed".
func (m *Metrics) EventReceived(event, status string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event, status).Inc()
}

// GameError records an inbound error envelope.
func (m *Metrics) GameError() {
	if m == nil {
		return
	}
	m.gameErrors.Inc()
}

// ObserveCommand records a settled command.
func (m *Metrics) ObserveCommand(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(outcome).Inc()
	m.commandDuration.Observe(elapsed.Seconds())
}

// ProtocolError records a session terminated by kind ("malformed",
// "handler", "transport").
func (m *Metrics) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}

// Handler serves the metrics gathered by g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
