// Package config loads the YAML configuration used by the mcws command.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lightforgemedia/go-mcws/pkg/client"
	"gopkg.in/yaml.v3"
)

// Config is the mcws command configuration.
type Config struct {
	Listen       ListenConfig  `yaml:"listen"`
	Events       []string      `yaml:"events"`
	MatchPolicy  string        `yaml:"match_policy"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadLimit    int64         `yaml:"read_limit"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
	NATS         NATSConfig    `yaml:"nats"`
	Script       ScriptConfig  `yaml:"script"`
}

// ListenConfig is the address the game connects to.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// NATSConfig enables the NATS relay when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	ServeCommands bool   `yaml:"serve_commands"`
}

// ScriptConfig runs a command script on every connection.
type ScriptConfig struct {
	Path        string `yaml:"path"`
	Watch       bool   `yaml:"watch"`
	StopOnError bool   `yaml:"stop_on_error"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:       ListenConfig{Host: "0.0.0.0", Port: 8000},
		Events:       []string{"PlayerMessage"},
		MatchPolicy:  client.MatchNextMessage.String(),
		WriteTimeout: 10 * time.Second,
		ReadLimit:    1024 * 1024,
		Log:          LogConfig{Level: "info", Format: "text"},
		Metrics:      MetricsConfig{Path: "/metrics"},
		NATS:         NATSConfig{SubjectPrefix: "mcws"},
	}
}

// Load reads the YAML file at path over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Errorf("listen.port must be between 0 and 65535, got %d", c.Listen.Port))
	}
	for i, name := range c.Events {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("events[%d] is empty", i))
		}
	}
	if _, err := client.ParseMatchPolicy(c.MatchPolicy); err != nil {
		errs = append(errs, fmt.Errorf("match_policy: %w", err))
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, errors.New("write_timeout must be non-negative"))
	}
	if c.ReadLimit < 0 {
		errs = append(errs, errors.New("read_limit must be non-negative"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if c.NATS.URL != "" && c.NATS.SubjectPrefix == "" {
		errs = append(errs, errors.New("nats.subject_prefix is required when nats.url is set"))
	}
	if c.Script.Watch && c.Script.Path == "" {
		errs = append(errs, errors.New("script.watch requires script.path"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown level %q", s)
	}
}

// ClientOptions converts the configuration to client options. Handlers are
// not included.
func (c *Config) ClientOptions(logger *slog.Logger) client.Options {
	policy, _ := client.ParseMatchPolicy(c.MatchPolicy)
	opts := client.DefaultOptions()
	opts.Logger = logger
	opts.Host = c.Listen.Host
	opts.Port = c.Listen.Port
	opts.MatchPolicy = policy
	if c.WriteTimeout > 0 {
		opts.WriteTimeout = c.WriteTimeout
	}
	if c.ReadLimit > 0 {
		opts.ReadLimit = c.ReadLimit
	}
	return opts
}
