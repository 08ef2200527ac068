//go:build linux
// +build linux

// internal/transport/sockets_linux.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking TCP sockets for the proxy loop.

package transport

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
	"golang.org/x/sys/unix"
)

type linuxSockets struct{}

// NewSockets returns the native socket implementation.
func NewSockets() api.Sockets {
	return linuxSockets{}
}

func toSockaddr(addr netip.AddrPort) (int, unix.Sockaddr) {
	ip := addr.Addr().Unmap()
	if ip.Is4() {
		return unix.AF_INET, &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	}
	sa := &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	return unix.AF_INET6, sa
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))
	}
	return netip.AddrPort{}
}

// configure applies the latency-favouring options every proxied socket gets.
func configure(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("setsockopt TCP_NODELAY: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	return nil
}

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}

// Listen binds a non-blocking listening socket on addr.
func (linuxSockets) Listen(addr netip.AddrPort) (int, error) {
	family, sa := toSockaddr(addr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket create: %w", err)
	}
	// ports stuck in TIME_WAIT must not block a restart
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", addr, err)
	}
	return fd, nil
}

// LocalAddr returns the bound address of fd.
func (linuxSockets) LocalAddr(fd int) (netip.AddrPort, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("getsockname: %w", err)
	}
	return fromSockaddr(sa), nil
}

// Accept takes one pending connection.
func (linuxSockets) Accept(lfd int) (int, netip.AddrPort, error) {
	fd, sa, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if wouldBlock(err) || errors.Is(err, unix.ECONNABORTED) {
			return -1, netip.AddrPort{}, api.ErrWouldBlock
		}
		return -1, netip.AddrPort{}, fmt.Errorf("accept: %w", err)
	}
	if err := configure(fd); err != nil {
		_ = unix.Close(fd)
		return -1, netip.AddrPort{}, err
	}
	return fd, fromSockaddr(sa), nil
}

// Connect starts a non-blocking connect.
func (linuxSockets) Connect(addr netip.AddrPort) (int, bool, error) {
	family, sa := toSockaddr(addr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, false, fmt.Errorf("socket create: %w", err)
	}
	if err := configure(fd); err != nil {
		_ = unix.Close(fd)
		return -1, false, err
	}
	switch err := unix.Connect(fd, sa); {
	case err == nil:
		return fd, true, nil
	case errors.Is(err, unix.EINPROGRESS), errors.Is(err, unix.EINTR):
		return fd, false, nil
	default:
		_ = unix.Close(fd)
		return -1, false, fmt.Errorf("connect %s: %w", addr, err)
	}
}

// FinishConnect reads SO_ERROR to learn how a pending connect ended.
func (linuxSockets) FinishConnect(fd int) error {
	soerr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("getsockopt SO_ERROR: %w", err)
	}
	if soerr != 0 {
		errno := unix.Errno(soerr)
		if errno == unix.EINPROGRESS || errno == unix.EALREADY {
			return api.ErrWouldBlock
		}
		return fmt.Errorf("connect: %w", errno)
	}
	if _, err := unix.Getpeername(fd); err != nil {
		if errors.Is(err, unix.ENOTCONN) {
			return api.ErrWouldBlock
		}
		return fmt.Errorf("getpeername: %w", err)
	}
	return nil
}

// Read reads available bytes.
func (linuxSockets) Read(fd int, p []byte) (int, error) {
	n, err := unix.Read(fd, p)
	if err != nil {
		if wouldBlock(err) {
			return 0, api.ErrWouldBlock
		}
		return 0, fmt.Errorf("read: %w", err)
	}
	return n, nil
}

// Write sends as much of p as the socket buffer takes.
func (linuxSockets) Write(fd int, p []byte) (int, error) {
	n, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_NOSIGNAL|unix.MSG_DONTWAIT)
	if err != nil {
		if wouldBlock(err) {
			return 0, api.ErrWouldBlock
		}
		return 0, fmt.Errorf("write: %w", err)
	}
	return n, nil
}

// Close closes fd.
func (linuxSockets) Close(fd int) error {
	return unix.Close(fd)
}
