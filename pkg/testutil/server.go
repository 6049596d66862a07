// Package testutil provides common test utilities for the go-mcws library.
package testutil

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/lightforgemedia/go-mcws/pkg/client"
)

var (
	// Default logger for tests
	defaultSlogHandler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
	})
	DefaultLogger = slog.New(defaultSlogHandler)
)

// TestServer is a client served by an httptest.Server.
type TestServer struct {
	T      *testing.T
	Client *client.Client
	Server *httptest.Server
	WsURL  string
}

// NewTestServer creates a client with opts and serves its upgrade handler.
func NewTestServer(t *testing.T, opts ...client.Option) *TestServer {
	t.Helper()

	finalOpts := append([]client.Option{client.WithLogger(DefaultLogger)}, opts...)
	c, err := client.New(finalOpts...)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	s := httptest.NewServer(c.UpgradeHandler())
	ts := &TestServer{
		T:      t,
		Client: c,
		Server: s,
		WsURL:  "ws" + strings.TrimPrefix(s.URL, "http"),
	}

	t.Cleanup(func() {
		ts.Close()
	})

	return ts
}

// Close closes the client, then the HTTP server.
func (s *TestServer) Close() {
	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			s.T.Logf("TestServer: close client: %v", err)
		}
	}
	if s.Server != nil {
		s.Server.Close()
	}
}
