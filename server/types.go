// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Loop configuration and the counters snapshot.

package server

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/momentics/hioload-proxy/api"
)

// Config holds everything the proxy loop needs. The destination is an
// already resolved address; the loop never performs name lookups.
type Config struct {
	ListenAddr     netip.AddrPort // address the listener binds
	Destination    netip.AddrPort // fixed backend every pair connects to
	TickInterval   time.Duration  // upper bound of one readiness wait
	ConnectTimeout time.Duration  // deadline for backend connect completion
	ReadChunkSize  int            // max bytes per Read-Forward
	MaxQueuedBytes int            // peer queue high-water mark, 0 disables
	IdleTimeout    time.Duration  // idle pair reclamation, 0 disables
	MaxEvents      int            // readiness events handled per wait
}

// DefaultConfig returns sensible defaults. Destination must still be set.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     netip.AddrPortFrom(netip.IPv4Unspecified(), 8443),
		TickInterval:   25 * time.Millisecond,
		ConnectTimeout: 500 * time.Millisecond,
		ReadChunkSize:  8192,
		MaxQueuedBytes: 4 << 20,
		IdleTimeout:    0,
		MaxEvents:      128,
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case !c.ListenAddr.Addr().IsValid():
		return fmt.Errorf("listen address %q: %w", c.ListenAddr, api.ErrInvalidConfig)
	case !c.Destination.Addr().IsValid() || c.Destination.Port() == 0:
		return fmt.Errorf("destination %q: %w", c.Destination, api.ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("tick interval %s must be positive: %w", c.TickInterval, api.ErrInvalidConfig)
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("connect timeout %s must be positive: %w", c.ConnectTimeout, api.ErrInvalidConfig)
	case c.ReadChunkSize <= 0:
		return fmt.Errorf("read chunk size %d must be positive: %w", c.ReadChunkSize, api.ErrInvalidConfig)
	case c.MaxQueuedBytes < 0:
		return fmt.Errorf("max queued bytes %d must not be negative: %w", c.MaxQueuedBytes, api.ErrInvalidConfig)
	case c.IdleTimeout < 0:
		return fmt.Errorf("idle timeout %s must not be negative: %w", c.IdleTimeout, api.ErrInvalidConfig)
	case c.MaxEvents <= 0:
		return fmt.Errorf("max events %d must be positive: %w", c.MaxEvents, api.ErrInvalidConfig)
	}
	return nil
}

// Stats is a point-in-time snapshot of loop counters.
type Stats struct {
	Accepted   uint64 // pairs constructed
	Rejected   uint64 // accepted connections abandoned before a pair existed
	Live       int64  // halves currently open, draining ones included
	Connecting int64  // backend halves awaiting connect completion
	Closed     uint64 // halves closed
	Timeouts   uint64 // backend connects aborted by the sweep
	Idle       uint64 // pairs reclaimed by the idle sweep
}
