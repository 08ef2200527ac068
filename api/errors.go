// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared by the reactor, transport and server packages.

package api

import "errors"

// Common errors used across the proxy.
var (
	// ErrWouldBlock reports that a non-blocking socket call could not make
	// progress right now (EAGAIN/EWOULDBLOCK, or EINPROGRESS for connect).
	ErrWouldBlock = errors.New("operation would block")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNotSupported  = errors.New("operation not supported")
	ErrClosed        = errors.New("resource is closed")
	ErrNotFound      = errors.New("resource not found")
)
