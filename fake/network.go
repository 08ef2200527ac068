// Package fake
// Author: momentics <momentics@gmail.com>
//
// In-memory network used to drive the proxy loop deterministically in tests.
// A Network owns every fake socket; Poller derives level-triggered readiness
// from socket state and Sockets performs the proxy-side I/O. The test plays
// the remote ends through the *Socket handles.
//
// Nothing here is safe for concurrent use: tests call Tick from the test
// goroutine.

package fake

import (
	"errors"
	"net/netip"
	"sort"
	"time"

	"github.com/momentics/hioload-proxy/api"
)

// Errors reported by fake sockets.
var (
	ErrRefused = errors.New("fake: connection refused")
	ErrReset   = errors.New("fake: connection reset by peer")
	ErrBadFd   = errors.New("fake: bad file descriptor")
)

// ConnectMode selects how Connect behaves for new outbound sockets.
type ConnectMode int

const (
	// ConnectPending leaves the socket connecting until Establish or Refuse.
	ConnectPending ConnectMode = iota
	// ConnectImmediate completes the connect synchronously.
	ConnectImmediate
	// ConnectRefuse fails the Connect call itself.
	ConnectRefuse
)

type connState int

const (
	connConnecting connState = iota
	connEstablished
	connRefused
)

// Socket is one proxy-side handle together with the remote end's controls.
type Socket struct {
	fd       int
	listener bool
	backlog  []*Socket
	addr     netip.AddrPort

	state    connState
	inbound  []byte // remote -> proxy
	eof      bool
	outbound []byte // proxy -> remote
	failure  error

	// WriteLimit caps bytes accepted per tick; 0 means unlimited.
	WriteLimit int
	budget     int

	closed bool
}

// Fd returns the proxy-side handle.
func (s *Socket) Fd() int { return s.fd }

// Send makes p readable by the proxy.
func (s *Socket) Send(p []byte) { s.inbound = append(s.inbound, p...) }

// Shutdown makes the proxy read end-of-stream once pending data is consumed.
func (s *Socket) Shutdown() { s.eof = true }

// Reset fails every further read and write with ErrReset.
func (s *Socket) Reset() { s.failure = ErrReset }

// Establish completes a pending connect.
func (s *Socket) Establish() { s.state = connEstablished }

// Refuse fails a pending connect.
func (s *Socket) Refuse() { s.state = connRefused }

// Received returns everything the proxy wrote to this socket.
func (s *Socket) Received() []byte { return s.outbound }

// Closed reports whether the proxy closed this socket.
func (s *Socket) Closed() bool { return s.closed }

// Network is the shared state behind Poller and Sockets.
type Network struct {
	socks   map[int]*Socket
	regs    map[int]registration
	order   []*Socket
	nextFd  int
	now     time.Time
	mode    ConnectMode
	dialed  []*Socket
	ticks   int
	addFail error
}

type registration struct {
	token    uint64
	interest api.Interest
}

// NewNetwork returns an empty network whose clock starts at start.
func NewNetwork(start time.Time) *Network {
	return &Network{
		socks:  make(map[int]*Socket),
		regs:   make(map[int]registration),
		nextFd: 3,
		now:    start,
	}
}

// Now is the network clock; pass it to the server as its clock.
func (n *Network) Now() time.Time { return n.now }

// Advance moves the clock forward.
func (n *Network) Advance(d time.Duration) { n.now = n.now.Add(d) }

// Ticks returns how many Wait calls were served.
func (n *Network) Ticks() int { return n.ticks }

// SetConnectMode selects the outcome of subsequent Connect calls.
func (n *Network) SetConnectMode(m ConnectMode) { n.mode = m }

// FailNextAdd makes the next poller registration fail with err.
func (n *Network) FailNextAdd(err error) { n.addFail = err }

// Dial queues an inbound connection on the (single) listener.
func (n *Network) Dial() *Socket {
	for _, s := range n.order {
		if s.listener && !s.closed {
			c := n.newSocket()
			c.state = connEstablished
			s.backlog = append(s.backlog, c)
			return c
		}
	}
	panic("fake: no listener")
}

// Dialed returns the outbound sockets in the order Connect created them.
func (n *Network) Dialed() []*Socket { return n.dialed }

// LastDialed returns the most recent outbound socket.
func (n *Network) LastDialed() *Socket {
	if len(n.dialed) == 0 {
		return nil
	}
	return n.dialed[len(n.dialed)-1]
}

// Open returns the number of non-listener sockets the proxy has not closed.
// Sockets still sitting in a listener backlog are not counted.
func (n *Network) Open() int {
	count := 0
	for _, s := range n.socks {
		if !s.listener && !s.closed {
			count++
		}
	}
	return count
}

// Registered returns the number of handles currently registered with the poller.
func (n *Network) Registered() int { return len(n.regs) }

func (n *Network) newSocket() *Socket {
	s := &Socket{fd: n.nextFd}
	n.nextFd++
	n.order = append(n.order, s)
	return s
}

func (n *Network) lookup(fd int) (*Socket, error) {
	s, ok := n.socks[fd]
	if !ok || s.closed {
		return nil, ErrBadFd
	}
	return s, nil
}

// sortedRegs returns registered fds in ascending order so readiness is
// reported deterministically.
func (n *Network) sortedRegs() []int {
	fds := make([]int, 0, len(n.regs))
	for fd := range n.regs {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	return fds
}
