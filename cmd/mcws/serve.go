package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/client"
	"github.com/lightforgemedia/go-mcws/pkg/config"
	"github.com/lightforgemedia/go-mcws/pkg/events"
	"github.com/lightforgemedia/go-mcws/pkg/metrics"
	"github.com/lightforgemedia/go-mcws/pkg/protocol"
	natsrelay "github.com/lightforgemedia/go-mcws/pkg/relay/nats"
	"github.com/lightforgemedia/go-mcws/pkg/relay/ps"
	"github.com/lightforgemedia/go-mcws/pkg/script"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	configPath  string
	host        string
	port        int
	events      []string
	matchPolicy string
	logLevel    string
	logFormat   string
	metricsAddr string
	natsURL     string
	script      string
	watch       bool
	echo        bool
}

func serveCmd() *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen for a game connection",
		Long: `Listen for a game connection, subscribe to the configured events and
log them. Flags override values from the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, f.echo)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&f.host, "host", "", "listen host (default 0.0.0.0)")
	flags.IntVarP(&f.port, "port", "p", 0, "listen port (default 8000)")
	flags.StringSliceVarP(&f.events, "event", "e", nil, "event to subscribe to (repeatable)")
	flags.StringVar(&f.matchPolicy, "match-policy", "", "command matching: next or request_id")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&f.logFormat, "log-format", "", "text or json")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&f.natsURL, "nats-url", "", "relay events to this NATS server")
	flags.StringVar(&f.script, "script", "", "command script to run on every connection")
	flags.BoolVar(&f.watch, "watch", false, "re-run the script whenever it changes")
	flags.BoolVar(&f.echo, "echo", false, "echo chat messages back to the world")
	return cmd
}

// loadConfig reads the config file, if any, and applies flags that were set.
func loadConfig(cmd *cobra.Command, f serveFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	changed := cmd.Flags().Changed
	if changed("host") {
		cfg.Listen.Host = f.host
	}
	if changed("port") {
		cfg.Listen.Port = f.port
	}
	if changed("event") {
		cfg.Events = f.events
	}
	if changed("match-policy") {
		cfg.MatchPolicy = f.matchPolicy
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
	}
	if changed("nats-url") {
		cfg.NATS.URL = f.natsURL
	}
	if changed("script") {
		cfg.Script.Path = f.script
	}
	if changed("watch") {
		cfg.Script.Watch = f.watch
	}
	if f.echo && !containsEvent(cfg.Events, events.PlayerMessage) {
		cfg.Events = append(cfg.Events, events.PlayerMessage)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func containsEvent(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func serve(ctx context.Context, cfg *config.Config, echo bool) error {
	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	var opts []client.Option
	for _, name := range cfg.Events {
		if !events.IsKnown(name) {
			logger.Warn("Subscribing to an event name the game is not known to send", "event", name)
		}
		opts = append(opts, client.WithHandler(name, logEvent(logger)))
	}

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, client.WithMetrics(metrics.New(metrics.WithRegistry(reg))))
		stopMetrics := serveMetrics(cfg.Metrics, reg, logger)
		defer stopMetrics()
	}

	var natsRelay *natsrelay.Relay
	if cfg.NATS.URL != "" {
		natsRelay, err = natsrelay.New(natsrelay.Options{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		opts = append(opts, client.WithRelay(natsRelay))
	}

	var bus *ps.Bus
	if echo {
		bus = ps.New(64, logger)
		opts = append(opts, client.WithRelay(bus))
	}

	// runner is set before serving starts.
	var runner *script.Runner
	if cfg.Script.Path != "" {
		opts = append(opts, client.WithOnConnect(func(ctx context.Context) {
			logger.Info("Connected to world!")
			if _, err := runner.RunFile(ctx, cfg.Script.Path); err != nil {
				logger.Warn("Script failed", "path", cfg.Script.Path, "error", err)
			}
		}))
	}

	c, err := client.NewWithOptions(cfg.ClientOptions(logger), opts...)
	if err != nil {
		if natsRelay != nil {
			natsRelay.Close()
		}
		if bus != nil {
			bus.Close()
		}
		return err
	}
	defer c.Close()
	runner = script.NewRunner(c, script.WithLogger(logger), script.WithStopOnError(cfg.Script.StopOnError))

	if natsRelay != nil && cfg.NATS.ServeCommands {
		if err := natsRelay.ServeCommands(ctx, c); err != nil {
			return err
		}
	}
	if cfg.Script.Watch {
		go func() {
			if err := runner.Watch(ctx, cfg.Script.Path); err != nil {
				logger.Error("Script watch stopped", "path", cfg.Script.Path, "error", err)
			}
		}()
	}
	if bus != nil {
		go echoChat(ctx, c, bus, logger)
	}

	return c.ListenAndServe(ctx)
}

// logEvent logs each event body.
func logEvent(logger *slog.Logger) func(ctx context.Context, env *protocol.Envelope) error {
	return func(ctx context.Context, env *protocol.Envelope) error {
		logger.Info("Event", "event", env.EventName(), "body", string(env.Body))
		return nil
	}
}

// echoChat says every player chat message back. Commands are issued off the
// connection's read loop, which must keep running to deliver the responses.
func echoChat(ctx context.Context, c *client.Client, bus *ps.Bus, logger *slog.Logger) {
	for env := range bus.Subscribe(ctx, events.PlayerMessage) {
		var chat struct {
			Message string `json:"message"`
			Sender  string `json:"sender"`
			Type    string `json:"type"`
		}
		if err := env.DecodeBody(&chat); err != nil || chat.Type != "chat" {
			continue
		}
		line := "say " + strings.TrimSpace(chat.Sender+": "+chat.Message)
		cmdCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := c.Command(cmdCtx, line); err != nil {
			logger.Warn("Echo failed", "error", err)
		}
		cancel()
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *slog.Logger) func() {
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintln(w, "OK") })

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Metrics server starting", "address", cfg.Addr+path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
