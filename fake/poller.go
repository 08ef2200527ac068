// Package fake
// Author: momentics <momentics@gmail.com>
//
// Level-triggered readiness source computed from fake socket state.

package fake

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-proxy/api"
)

// Poller implements api.Poller on top of a Network.
type Poller struct {
	net *Network
}

// NewPoller returns a poller bound to n.
func NewPoller(n *Network) *Poller {
	return &Poller{net: n}
}

// Add implements api.Poller.Add.
func (p *Poller) Add(fd int, token uint64, interest api.Interest) error {
	if err := p.net.addFail; err != nil {
		p.net.addFail = nil
		return err
	}
	if _, err := p.net.lookup(fd); err != nil {
		return err
	}
	if _, ok := p.net.regs[fd]; ok {
		return fmt.Errorf("fake: fd %d already registered", fd)
	}
	p.net.regs[fd] = registration{token: token, interest: interest}
	return nil
}

// Modify implements api.Poller.Modify.
func (p *Poller) Modify(fd int, token uint64, interest api.Interest) error {
	if _, ok := p.net.regs[fd]; !ok {
		return fmt.Errorf("fake: modify fd %d: %w", fd, api.ErrNotFound)
	}
	p.net.regs[fd] = registration{token: token, interest: interest}
	return nil
}

// Remove implements api.Poller.Remove.
func (p *Poller) Remove(fd int) error {
	if _, ok := p.net.regs[fd]; !ok {
		return fmt.Errorf("fake: remove fd %d: %w", fd, api.ErrNotFound)
	}
	delete(p.net.regs, fd)
	return nil
}

// Interest returns the current registration of fd.
func (p *Poller) Interest(fd int) (api.Interest, bool) {
	r, ok := p.net.regs[fd]
	return r.interest, ok
}

// Wait starts a new tick: write budgets are refilled and readiness is
// reported for every registered socket. When nothing is ready the clock
// advances by timeout, as a real bounded wait would.
func (p *Poller) Wait(events []api.Event, timeout time.Duration) (int, error) {
	n := p.net
	n.ticks++
	for _, s := range n.socks {
		s.budget = s.WriteLimit
	}

	count := 0
	for _, fd := range n.sortedRegs() {
		if count == len(events) {
			break
		}
		s, ok := n.socks[fd]
		if !ok || s.closed {
			continue
		}
		reg := n.regs[fd]
		if ready := readiness(s, reg.interest); ready != 0 {
			events[count] = api.Event{Token: reg.token, Ready: ready}
			count++
		}
	}
	if count == 0 {
		n.Advance(timeout)
	}
	return count, nil
}

// Close implements api.Poller.Close.
func (p *Poller) Close() error { return nil }

func readiness(s *Socket, interest api.Interest) api.Readiness {
	var r api.Readiness
	if s.listener {
		if len(s.backlog) > 0 && interest&api.InterestAccept != 0 {
			r |= api.Readable
		}
		return r
	}
	switch s.state {
	case connConnecting:
		return 0
	case connRefused:
		if interest&(api.InterestWrite|api.InterestConnect) != 0 {
			r |= api.Writable
		}
		return r | api.Hangup
	}
	if s.failure != nil {
		r |= api.Hangup
	}
	if interest&api.InterestRead != 0 && (len(s.inbound) > 0 || s.eof || s.failure != nil) {
		r |= api.Readable
	}
	if interest&(api.InterestWrite|api.InterestConnect) != 0 && (s.WriteLimit == 0 || s.budget > 0) {
		r |= api.Writable
	}
	return r
}
