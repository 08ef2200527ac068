// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Raw non-blocking TCP socket layer behind api.Sockets. Linux uses direct
// syscalls through golang.org/x/sys/unix; other platforms get a stub that
// reports api.ErrNotSupported.

package transport
