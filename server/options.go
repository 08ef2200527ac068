// File: server/options.go
// Package server defines functional options for the proxy Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"time"

	"github.com/momentics/hioload-proxy/api"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithPoller replaces the epoll reactor. The server takes ownership.
func WithPoller(p api.Poller) ServerOption {
	return func(s *Server) {
		s.poller = p
	}
}

// WithSockets replaces the native socket layer.
func WithSockets(sk api.Sockets) ServerOption {
	return func(s *Server) {
		s.sockets = sk
	}
}

// WithClock overrides the time source used for deadlines.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}
