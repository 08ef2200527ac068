// File: server/run.go
// Package server implements the reactor loop: bounded readiness wait,
// per-event dispatch and the deadline sweeps.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"fmt"

	"github.com/momentics/hioload-proxy/api"
	"go.uber.org/zap"
)

// Run drives the loop until ctx is cancelled or the poller fails. On return
// every socket the server opened has been closed.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("proxy loop started")
	for {
		select {
		case <-ctx.Done():
			err := s.Close()
			s.log.Info("proxy loop stopped", zap.Error(err))
			return err
		default:
		}
		if err := s.Tick(); err != nil {
			s.log.Error("proxy loop failed", zap.Error(err))
			_ = s.Close()
			return err
		}
	}
}

// Tick runs one loop iteration: wait up to the tick interval, dispatch the
// ready handles, then sweep expired connects (and idle pairs if enabled).
func (s *Server) Tick() error {
	if s.closed {
		return fmt.Errorf("tick: %w", api.ErrClosed)
	}
	n, err := s.poller.Wait(s.events, s.cfg.TickInterval)
	if err != nil {
		return fmt.Errorf("wait for readiness: %w", err)
	}
	for _, ev := range s.events[:n] {
		s.dispatch(ev)
	}
	s.sweep()
	return nil
}

// dispatch handles one readiness event: accept or connect completion
// first, then writable, then readable.
func (s *Server) dispatch(ev api.Event) {
	if ev.Token == listenerToken {
		if ev.Ready&(api.Readable|api.Hangup) != 0 {
			s.accept()
		}
		return
	}
	h, ok := s.halves[ev.Token]
	if !ok {
		return // closed earlier in this tick
	}

	if h.state == stateConnecting && !s.finishConnect(h) {
		return
	}
	if ev.Ready.Has(api.Writable) {
		s.drain(h)
		if h.state == stateClosed {
			return
		}
	}

	switch {
	case h.state == stateDraining:
		// a hung-up peer surfaces as a write error
		if ev.Ready.Has(api.Hangup) && !ev.Ready.Has(api.Writable) {
			s.drain(h)
		}
	case ev.Ready.Has(api.Hangup),
		ev.Ready.Has(api.Readable) && h.interest.Has(api.InterestRead):
		s.forward(h)
	}
}

func (s *Server) sweep() {
	if s.connecting.Len() == 0 && (s.cfg.IdleTimeout <= 0 || s.idle.Len() == 0) {
		return
	}
	now := s.now()
	for _, id := range s.connecting.Sweep(now) {
		s.stats.connecting.Add(-1)
		h, ok := s.halves[id]
		if !ok {
			continue
		}
		s.stats.timeouts.Add(1)
		s.log.Error("failed to connect within timeout", h.fields(
			zap.Stringer("destination", s.cfg.Destination),
			zap.Duration("timeout", s.cfg.ConnectTimeout))...)
		h.broken = true
		s.closePair(h)
	}

	if s.cfg.IdleTimeout <= 0 {
		return
	}
	for _, id := range s.idle.Sweep(now) {
		h, ok := s.halves[id]
		if !ok {
			continue
		}
		s.stats.idle.Add(1)
		s.log.Debug("closing idle pair", h.fields(zap.Duration("idleTimeout", s.cfg.IdleTimeout))...)
		h.broken = true
		if peer := s.peerOf(h); peer != nil {
			peer.broken = true
		}
		s.closePair(h)
	}
}
