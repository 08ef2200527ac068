// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the level-triggered readiness primitive behind
// the proxy loop: an epoll(7) implementation of api.Poller on Linux and a
// stub that refuses to start elsewhere.
package reactor
