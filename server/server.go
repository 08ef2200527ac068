// File: server/server.go
// Package server implements the single-threaded forwarding reactor: it
// accepts inbound connections, pairs each with an outbound connection to a
// fixed destination and relays bytes both ways without interpreting them.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/core/buffer"
	"github.com/momentics/hioload-proxy/internal/deadline"
	"github.com/momentics/hioload-proxy/internal/transport"
	"github.com/momentics/hioload-proxy/reactor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// listenerToken is the poller token of the listening socket; half ids start at 1.
const listenerToken = 0

// Server owns the readiness primitive, the listening socket, every
// Connection Half and the connect tracker. All of it is touched only by the
// goroutine calling Run (or Tick).
type Server struct {
	cfg     Config
	log     *zap.Logger
	poller  api.Poller
	sockets api.Sockets
	now     func() time.Time

	listenFd int
	addr     netip.AddrPort

	halves     map[uint64]*half
	nextID     uint64
	connecting *deadline.Tracker[uint64]
	idle       *deadline.Tracker[uint64]

	events []api.Event
	chunks *buffer.ChunkPool
	closed bool

	stats counters
}

type counters struct {
	accepted   atomic.Uint64
	rejected   atomic.Uint64
	live       atomic.Int64
	connecting atomic.Int64
	closed     atomic.Uint64
	timeouts   atomic.Uint64
	idle       atomic.Uint64
}

// New validates cfg, opens the readiness primitive and binds the listener.
// Any error here is a startup failure.
func New(cfg *Config, log *zap.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		cfg:        *cfg,
		log:        log,
		now:        time.Now,
		listenFd:   -1,
		halves:     make(map[uint64]*half),
		connecting: deadline.NewTracker[uint64](),
		idle:       deadline.NewTracker[uint64](),
		events:     make([]api.Event, cfg.MaxEvents),
		chunks:     buffer.NewChunkPool(cfg.ReadChunkSize, 0),
	}
	for _, o := range opts {
		o(s)
	}
	if s.sockets == nil {
		s.sockets = transport.NewSockets()
	}
	if s.poller == nil {
		p, err := reactor.New()
		if err != nil {
			return nil, fmt.Errorf("create poller: %w", err)
		}
		s.poller = p
	}

	fd, err := s.sockets.Listen(cfg.ListenAddr)
	if err != nil {
		_ = s.poller.Close()
		return nil, fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	s.listenFd = fd

	addr, err := s.sockets.LocalAddr(fd)
	if err == nil {
		err = s.poller.Add(fd, listenerToken, api.InterestAccept)
	}
	if err != nil {
		_ = s.sockets.Close(fd)
		_ = s.poller.Close()
		return nil, fmt.Errorf("register listener: %w", err)
	}
	s.addr = addr

	log.Info("proxy listening",
		zap.Stringer("address", addr),
		zap.Stringer("destination", cfg.Destination),
		zap.Duration("tick", cfg.TickInterval),
		zap.Duration("connectTimeout", cfg.ConnectTimeout))
	return s, nil
}

// Addr returns the address the listener is bound to.
func (s *Server) Addr() netip.AddrPort { return s.addr }

// Stats returns a snapshot of the loop counters. Safe from any goroutine.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:   s.stats.accepted.Load(),
		Rejected:   s.stats.rejected.Load(),
		Live:       s.stats.live.Load(),
		Connecting: s.stats.connecting.Load(),
		Closed:     s.stats.closed.Load(),
		Timeouts:   s.stats.timeouts.Load(),
		Idle:       s.stats.idle.Load(),
	}
}

// Close closes every half without draining, then the listener and the
// poller. Run calls it on exit; call it directly only when Run was never
// started. Close is idempotent.
func (s *Server) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	for _, h := range s.halves {
		s.closeHalf(h)
	}
	return multierr.Combine(
		s.poller.Remove(s.listenFd),
		s.sockets.Close(s.listenFd),
		s.poller.Close(),
	)
}
