// File: server/pair.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pair lifecycle: construction on accept, connect completion and the
// unified Close-Pair teardown.

package server

import (
	"errors"

	"github.com/momentics/hioload-proxy/api"
	"go.uber.org/zap"
)

// accept takes one inbound connection and builds its pair. Nothing is
// registered unless both legs exist and both registrations succeed.
func (s *Server) accept() {
	cfd, remote, err := s.sockets.Accept(s.listenFd)
	if err != nil {
		if !errors.Is(err, api.ErrWouldBlock) {
			s.log.Warn("failed to accept connection", zap.Error(err))
		}
		return
	}
	log := s.log.With(zap.Stringer("remote", remote))

	bfd, connected, err := s.sockets.Connect(s.cfg.Destination)
	if err != nil {
		log.Debug("failed to initiate backend connection", zap.Stringer("destination", s.cfg.Destination), zap.Error(err))
		s.closeQuietly(cfd)
		s.stats.rejected.Add(1)
		return
	}

	bstate, binterest := stateEstablished, api.InterestRead|api.InterestWrite
	if !connected {
		bstate, binterest = stateConnecting, binterest|api.InterestConnect
	}
	client := newHalf(s.allocID(), cfd, roleClient, stateEstablished, s.chunks)
	backend := newHalf(s.allocID(), bfd, roleBackend, bstate, s.chunks)
	client.peer, backend.peer = backend.id, client.id

	if err := s.poller.Add(client.fd, client.id, api.InterestRead|api.InterestWrite); err != nil {
		log.Warn("failed to register client socket", zap.Error(err))
		s.abandon(cfd, bfd)
		return
	}
	if err := s.poller.Add(backend.fd, backend.id, binterest); err != nil {
		log.Warn("failed to register backend socket", zap.Error(err))
		_ = s.poller.Remove(client.fd)
		s.abandon(cfd, bfd)
		return
	}
	client.interest = api.InterestRead | api.InterestWrite
	backend.interest = binterest

	s.halves[client.id] = client
	s.halves[backend.id] = backend
	s.stats.live.Add(2)
	s.stats.accepted.Add(1)
	if !connected {
		s.connecting.Track(backend.id, s.now().Add(s.cfg.ConnectTimeout))
		s.stats.connecting.Add(1)
	}
	s.touch(client)

	log.Debug("accepted connection",
		zap.Uint64("client", client.id), zap.Uint64("backend", backend.id), zap.Bool("connected", connected))
}

func (s *Server) abandon(fds ...int) {
	for _, fd := range fds {
		s.closeQuietly(fd)
	}
	s.stats.rejected.Add(1)
}

func (s *Server) closeQuietly(fd int) {
	if err := s.sockets.Close(fd); err != nil {
		s.log.Debug("failed to close socket", zap.Int("fd", fd), zap.Error(err))
	}
}

func (s *Server) allocID() uint64 {
	s.nextID++
	return s.nextID
}

// finishConnect completes a pending backend connect (Connect-Completion).
// It reports whether the half is now established.
func (s *Server) finishConnect(h *half) bool {
	err := s.sockets.FinishConnect(h.fd)
	if errors.Is(err, api.ErrWouldBlock) {
		return false
	}
	s.untrackConnect(h)
	if err != nil {
		s.log.Error("failed to connect", h.fields(zap.Stringer("destination", s.cfg.Destination), zap.Error(err))...)
		h.broken = true
		s.closePair(h)
		return false
	}
	h.state = stateEstablished
	s.removeInterest(h, api.InterestConnect)
	s.log.Debug("connected", h.fields(zap.Stringer("destination", s.cfg.Destination))...)
	return h.state == stateEstablished
}

func (s *Server) untrackConnect(h *half) {
	if s.connecting.Contains(h.id) {
		s.connecting.Untrack(h.id)
		s.stats.connecting.Add(-1)
	}
}

// closePair tears down both halves (Close-Pair). A half with queued data
// on a healthy socket drains first; everything else closes now.
func (s *Server) closePair(h *half) {
	peer := s.peerOf(h)
	s.shutdownHalf(h)
	if peer != nil {
		s.shutdownHalf(peer)
	}
}

func (s *Server) shutdownHalf(h *half) {
	switch {
	case h.state == stateClosed:
	case h.state == stateDraining:
		if h.broken {
			s.closeHalf(h)
		}
	case h.state == stateEstablished && !h.broken && !h.pending.Empty():
		h.state = stateDraining
		h.closeAfterDrain = true
		s.log.Debug("draining before close", h.fields(zap.Int("queued", h.pending.Len()))...)
		s.setInterest(h, api.InterestWrite)
	default:
		s.closeHalf(h)
	}
}

// closeHalf unregisters and closes h's socket. It is the only place a
// proxied socket is destroyed.
func (s *Server) closeHalf(h *half) {
	if h.state == stateClosed {
		return
	}
	s.untrackConnect(h)
	if err := s.poller.Remove(h.fd); err != nil {
		s.log.Debug("failed to unregister socket", h.fields(zap.Error(err))...)
	}
	s.closeQuietly(h.fd)
	h.pending.Reset()
	h.state = stateClosed
	delete(s.halves, h.id)
	s.idle.Untrack(h.id)
	s.stats.live.Add(-1)
	s.stats.closed.Add(1)
	s.log.Debug("closed", h.fields()...)
}

// touch refreshes the idle deadline of both halves when idle reclamation is on.
func (s *Server) touch(h *half) {
	if s.cfg.IdleTimeout <= 0 || h.state == stateClosed {
		return
	}
	d := s.now().Add(s.cfg.IdleTimeout)
	s.idle.Track(h.id, d)
	if peer := s.peerOf(h); peer != nil {
		s.idle.Track(peer.id, d)
	}
}
