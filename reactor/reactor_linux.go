//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux factory for the epoll-based poller.

package reactor

import "github.com/momentics/hioload-proxy/api"

// New constructs the platform readiness primitive.
func New() (api.Poller, error) {
	return newEpollReactor()
}
