// Package fake
// Author: momentics <momentics@gmail.com>
//
// Proxy-side socket calls against the in-memory network.

package fake

import (
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
)

// Sockets implements api.Sockets on top of a Network.
type Sockets struct {
	net *Network
}

// NewSockets returns a socket layer bound to n.
func NewSockets(n *Network) *Sockets {
	return &Sockets{net: n}
}

// Listen implements api.Sockets.Listen. Port 0 is replaced by 40000.
func (ss *Sockets) Listen(addr netip.AddrPort) (int, error) {
	s := ss.net.newSocket()
	s.listener = true
	if addr.Port() == 0 {
		addr = netip.AddrPortFrom(addr.Addr(), 40000)
	}
	s.addr = addr
	ss.net.socks[s.fd] = s
	return s.fd, nil
}

// LocalAddr implements api.Sockets.LocalAddr.
func (ss *Sockets) LocalAddr(fd int) (netip.AddrPort, error) {
	s, err := ss.net.lookup(fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return s.addr, nil
}

// Accept implements api.Sockets.Accept.
func (ss *Sockets) Accept(lfd int) (int, netip.AddrPort, error) {
	l, err := ss.net.lookup(lfd)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	if !l.listener {
		return -1, netip.AddrPort{}, ErrBadFd
	}
	if len(l.backlog) == 0 {
		return -1, netip.AddrPort{}, api.ErrWouldBlock
	}
	c := l.backlog[0]
	l.backlog = l.backlog[1:]
	c.addr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), uint16(50000+c.fd))
	ss.net.socks[c.fd] = c
	return c.fd, c.addr, nil
}

// Connect implements api.Sockets.Connect according to the network's ConnectMode.
func (ss *Sockets) Connect(addr netip.AddrPort) (int, bool, error) {
	if ss.net.mode == ConnectRefuse {
		return -1, false, ErrRefused
	}
	s := ss.net.newSocket()
	s.addr = addr
	ss.net.socks[s.fd] = s
	ss.net.dialed = append(ss.net.dialed, s)
	if ss.net.mode == ConnectImmediate {
		s.state = connEstablished
		return s.fd, true, nil
	}
	s.state = connConnecting
	return s.fd, false, nil
}

// FinishConnect implements api.Sockets.FinishConnect.
func (ss *Sockets) FinishConnect(fd int) error {
	s, err := ss.net.lookup(fd)
	if err != nil {
		return err
	}
	switch s.state {
	case connConnecting:
		return api.ErrWouldBlock
	case connRefused:
		return ErrRefused
	}
	return nil
}

// Read implements api.Sockets.Read.
func (ss *Sockets) Read(fd int, p []byte) (int, error) {
	s, err := ss.net.lookup(fd)
	if err != nil {
		return 0, err
	}
	switch {
	case s.state == connRefused:
		return 0, ErrRefused
	case s.state == connConnecting:
		return 0, api.ErrWouldBlock
	case s.failure != nil:
		return 0, s.failure
	case len(s.inbound) > 0:
		n := copy(p, s.inbound)
		s.inbound = s.inbound[n:]
		return n, nil
	case s.eof:
		return 0, nil
	}
	return 0, api.ErrWouldBlock
}

// Write implements api.Sockets.Write honouring the per-tick WriteLimit.
func (ss *Sockets) Write(fd int, p []byte) (int, error) {
	s, err := ss.net.lookup(fd)
	if err != nil {
		return 0, err
	}
	switch {
	case s.failure != nil:
		return 0, s.failure
	case s.state == connRefused:
		return 0, ErrRefused
	case s.state == connConnecting:
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if s.WriteLimit > 0 {
		if s.budget == 0 {
			return 0, api.ErrWouldBlock
		}
		if n > s.budget {
			n = s.budget
		}
		s.budget -= n
	}
	s.outbound = append(s.outbound, p[:n]...)
	return n, nil
}

// Close implements api.Sockets.Close. A registration left behind is kept
// so tests can detect handles closed without being unregistered.
func (ss *Sockets) Close(fd int) error {
	s, err := ss.net.lookup(fd)
	if err != nil {
		return err
	}
	s.closed = true
	return nil
}
