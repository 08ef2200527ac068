// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Socket operations the proxy loop performs on raw handles.

package api

import "net/netip"

// Sockets is the non-blocking socket surface used by the proxy loop.
// Every handle it returns is already in non-blocking mode with
// TCP_NODELAY and SO_REUSEADDR applied.
type Sockets interface {
	// Listen binds and listens on addr.
	Listen(addr netip.AddrPort) (fd int, err error)

	// LocalAddr returns the address fd is bound to.
	LocalAddr(fd int) (netip.AddrPort, error)

	// Accept takes one pending connection from a listening fd.
	// ErrWouldBlock means nothing is pending.
	Accept(lfd int) (fd int, remote netip.AddrPort, err error)

	// Connect opens a socket and starts a non-blocking connect to addr.
	// connected is true when the connect completed synchronously.
	Connect(addr netip.AddrPort) (fd int, connected bool, err error)

	// FinishConnect reports the outcome of a pending connect: nil on
	// success, ErrWouldBlock while still in progress, otherwise the error.
	FinishConnect(fd int) error

	// Read reads into p. (0, nil) means orderly shutdown by the peer.
	Read(fd int, p []byte) (int, error)

	// Write writes from p and may write fewer bytes than len(p) without
	// returning an error. ErrWouldBlock means the socket buffer is full.
	Write(fd int, p []byte) (int, error)

	// Close releases fd.
	Close(fd int) error
}
