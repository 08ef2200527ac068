// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract readiness-multiplexing contract used by the proxy loop.
// The real implementation is epoll based (package reactor); tests inject fakes.

package api

import (
	"strings"
	"time"
)

// Interest is the set of readiness conditions a handle is registered for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
	InterestConnect
	InterestAccept
)

// Has reports whether every bit of o is present in i.
func (i Interest) Has(o Interest) bool { return i&o == o }

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	if i&InterestAccept != 0 {
		parts = append(parts, "accept")
	}
	if i&InterestConnect != 0 {
		parts = append(parts, "connect")
	}
	if i&InterestRead != 0 {
		parts = append(parts, "read")
	}
	if i&InterestWrite != 0 {
		parts = append(parts, "write")
	}
	return strings.Join(parts, "|")
}

// Readiness is what the primitive reported for a handle.
type Readiness uint8

const (
	Readable Readiness = 1 << iota
	Writable
	// Hangup covers peer hang-up and pending socket errors.
	Hangup
)

// Has reports whether every bit of o is present in r.
func (r Readiness) Has(o Readiness) bool { return r&o == o }

// Event encapsulates one readiness notification.
type Event struct {
	Token uint64    // opaque value supplied at registration
	Ready Readiness // conditions reported for the handle
}

// Poller is a level-triggered readiness primitive.
type Poller interface {
	// Add registers fd with the given token and interest set.
	Add(fd int, token uint64, interest Interest) error

	// Modify replaces the interest set of an already registered fd.
	Modify(fd int, token uint64, interest Interest) error

	// Remove unregisters fd. Removing an unknown fd returns ErrNotFound.
	Remove(fd int) error

	// Wait blocks for at most timeout and fills events.
	// An interrupted wait returns 0 events and a nil error.
	Wait(events []Event, timeout time.Duration) (int, error)

	// Close releases the primitive.
	Close() error
}
