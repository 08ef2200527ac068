//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-proxy/api"
	"golang.org/x/sys/unix"
)

// epollReactor implements api.Poller using level-triggered epoll.
// The 64-bit registration token is carried in the Fd/Pad words of the
// epoll data union, so events never need an fd lookup.
type epollReactor struct {
	epfd int
	raw  []unix.EpollEvent
}

// newEpollReactor creates a new instance of epollReactor.
func newEpollReactor() (*epollReactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

func epollMask(interest api.Interest) uint32 {
	var mask uint32
	if interest&(api.InterestRead|api.InterestAccept) != 0 {
		mask |= unix.EPOLLIN
	}
	if interest&(api.InterestWrite|api.InterestConnect) != 0 {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func epollEvent(token uint64, interest api.Interest) *unix.EpollEvent {
	ev := &unix.EpollEvent{Events: epollMask(interest)}
	ev.Fd = int32(uint32(token))
	ev.Pad = int32(uint32(token >> 32))
	return ev
}

// Add registers fd with the epoll set.
func (r *epollReactor) Add(fd int, token uint64, interest api.Interest) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, epollEvent(token, interest)); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

// Modify replaces the interest set of fd.
func (r *epollReactor) Modify(fd int, token uint64, interest api.Interest) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, epollEvent(token, interest)); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

// Remove unregisters fd from the epoll set.
func (r *epollReactor) Remove(fd int) error {
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("epoll ctl del fd %d: %w", fd, api.ErrNotFound)
		}
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Wait blocks up to timeout for readiness and translates the result.
func (r *epollReactor) Wait(events []api.Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, fmt.Errorf("epoll wait: empty event buffer: %w", api.ErrInvalidConfig)
	}
	if cap(r.raw) < len(events) {
		r.raw = make([]unix.EpollEvent, len(events))
	}
	raw := r.raw[:len(events)]

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	if timeout < 0 {
		ms = -1
	}

	n, err := unix.EpollWait(r.epfd, raw, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := raw[i]
		var ready api.Readiness
		if ev.Events&unix.EPOLLIN != 0 {
			ready |= api.Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			ready |= api.Writable
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			ready |= api.Hangup
		}
		events[i] = api.Event{
			Token: uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32,
			Ready: ready,
		}
	}
	return n, nil
}

// Close releases the epoll file descriptor.
func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
