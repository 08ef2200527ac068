// File: server/half.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection Half: per-socket forwarding state and its read/write/close
// state machine. Two halves cross-linked by id form a pair.

package server

import (
	"errors"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/core/buffer"
	"go.uber.org/zap"
)

type role uint8

const (
	roleClient role = iota
	roleBackend
)

func (r role) String() string {
	if r == roleBackend {
		return "backend"
	}
	return "client"
}

// halfState: connecting -> established -> {draining -> closed | closed}.
// Only backend halves start in connecting.
type halfState uint8

const (
	stateConnecting halfState = iota
	stateEstablished
	stateDraining
	stateClosed
)

func (s halfState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateEstablished:
		return "established"
	case stateDraining:
		return "draining"
	}
	return "closed"
}

type half struct {
	id       uint64
	fd       int
	peer     uint64 // set once when the pair is built
	role     role
	state    halfState
	interest api.Interest
	pending  *buffer.ByteQueue

	closeAfterDrain bool
	broken          bool // I/O failed; never drain, close at once
}

func newHalf(id uint64, fd int, r role, st halfState, pool *buffer.ChunkPool) *half {
	return &half{
		id:      id,
		fd:      fd,
		role:    r,
		state:   st,
		pending: buffer.NewByteQueue(pool),
	}
}

func (h *half) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.Uint64("half", h.id),
		zap.Int("fd", h.fd),
		zap.Stringer("role", h.role),
		zap.Stringer("state", h.state),
	}, extra...)
}

// halfWriter adapts a half's socket to io.Writer for ByteQueue.DrainInto.
type halfWriter struct {
	sockets api.Sockets
	fd      int
	written int
}

func (w *halfWriter) Write(p []byte) (int, error) {
	n, err := w.sockets.Write(w.fd, p)
	w.written += n
	return n, err
}

func (s *Server) peerOf(h *half) *half {
	return s.halves[h.peer]
}

// setInterest pushes a new interest set to the poller when it changed.
func (s *Server) setInterest(h *half, interest api.Interest) {
	if h.state == stateClosed || h.interest == interest {
		return
	}
	if err := s.poller.Modify(h.fd, h.id, interest); err != nil {
		s.log.Warn("failed to update interest", h.fields(zap.Stringer("interest", interest), zap.Error(err))...)
		h.broken = true
		s.closePair(h)
		return
	}
	h.interest = interest
}

func (s *Server) addInterest(h *half, i api.Interest) {
	s.setInterest(h, h.interest|i)
}

func (s *Server) removeInterest(h *half, i api.Interest) {
	s.setInterest(h, h.interest&^i)
}

// forward reads one chunk from h and queues it on the peer (Read-Forward).
func (s *Server) forward(h *half) {
	buf := s.chunks.Get()
	n, err := s.sockets.Read(h.fd, buf)
	switch {
	case errors.Is(err, api.ErrWouldBlock):
		s.chunks.Put(buf)
		return
	case err != nil:
		s.chunks.Put(buf)
		s.log.Debug("read failed", h.fields(zap.Error(err))...)
		h.broken = true
		s.closePair(h)
		return
	case n == 0:
		s.chunks.Put(buf)
		s.log.Debug("peer closed connection", h.fields()...)
		s.closePair(h)
		return
	}

	peer := s.peerOf(h)
	if peer == nil {
		s.chunks.Put(buf)
		s.closePair(h)
		return
	}
	chunk := buf[:n]
	if n < len(buf)/4 {
		// small reads must not pin a whole pooled chunk while queued
		chunk = append([]byte(nil), buf[:n]...)
		s.chunks.Put(buf)
	}
	peer.pending.Enqueue(chunk)
	if ce := s.log.Check(zap.DebugLevel, "read"); ce != nil {
		ce.Write(h.fields(zap.Int("bytes", n), zap.Int("peerQueued", peer.pending.Len()))...)
	}

	s.addInterest(peer, api.InterestWrite)
	if s.cfg.MaxQueuedBytes > 0 && peer.pending.Len() >= s.cfg.MaxQueuedBytes {
		s.removeInterest(h, api.InterestRead)
	}
	s.touch(h)
}

// drain flushes h's queue onto its socket (Write-Drain).
func (s *Server) drain(h *half) {
	w := &halfWriter{sockets: s.sockets, fd: h.fd}
	done, err := h.pending.DrainInto(w)
	if err != nil {
		s.log.Debug("write failed", h.fields(zap.Error(err))...)
		h.pending.Reset()
		h.broken = true
		s.closePair(h)
		return
	}
	if w.written > 0 {
		if ce := s.log.Check(zap.DebugLevel, "wrote"); ce != nil {
			ce.Write(h.fields(zap.Int("bytes", w.written), zap.Int("queued", h.pending.Len()))...)
		}
		s.touch(h)
	}
	if !done {
		return
	}

	s.removeInterest(h, api.InterestWrite)
	if h.closeAfterDrain {
		s.closeHalf(h)
		return
	}
	// the peer may have been throttled while this queue was full
	if peer := s.peerOf(h); peer != nil && peer.state != stateDraining {
		s.addInterest(peer, api.InterestRead)
	}
}
