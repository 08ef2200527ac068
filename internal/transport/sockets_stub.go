//go:build !linux
// +build !linux

// internal/transport/sockets_stub.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net/netip"

	"github.com/momentics/hioload-proxy/api"
)

type stubSockets struct{}

// NewSockets returns an implementation that fails every call.
func NewSockets() api.Sockets { return stubSockets{} }

func (stubSockets) Listen(netip.AddrPort) (int, error) { return -1, api.ErrNotSupported }
func (stubSockets) LocalAddr(int) (netip.AddrPort, error) {
	return netip.AddrPort{}, api.ErrNotSupported
}
func (stubSockets) Accept(int) (int, netip.AddrPort, error) {
	return -1, netip.AddrPort{}, api.ErrNotSupported
}
func (stubSockets) Connect(netip.AddrPort) (int, bool, error) { return -1, false, api.ErrNotSupported }
func (stubSockets) FinishConnect(int) error                   { return api.ErrNotSupported }
func (stubSockets) Read(int, []byte) (int, error)             { return 0, api.ErrNotSupported }
func (stubSockets) Write(int, []byte) (int, error)            { return 0, api.ErrNotSupported }
func (stubSockets) Close(int) error                           { return api.ErrNotSupported }
