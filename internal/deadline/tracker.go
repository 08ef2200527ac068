// File: internal/deadline/tracker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Deadline set swept once per loop tick. Used for pending outbound connects
// and, when enabled, idle connection reclamation.

package deadline

import (
	"container/heap"
	"time"
)

type entry[K comparable] struct {
	key      K
	deadline time.Time
	index    int // position in the heap
}

// timerHeap orders entries by deadline, earliest first.
type timerHeap[K comparable] []*entry[K]

func (h timerHeap[K]) Len() int           { return len(h) }
func (h timerHeap[K]) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap[K]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap[K]) Push(x any) {
	e := x.(*entry[K])
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap[K]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Tracker maps keys to absolute deadlines. It is owned by one goroutine.
// Track, Untrack and each expired key cost O(log n); a sweep that finds
// nothing expired is O(1).
type Tracker[K comparable] struct {
	entries map[K]*entry[K]
	timers  timerHeap[K]
}

// NewTracker returns an empty tracker.
func NewTracker[K comparable]() *Tracker[K] {
	return &Tracker[K]{entries: make(map[K]*entry[K])}
}

// Track sets (or replaces) the deadline for key.
func (t *Tracker[K]) Track(key K, deadline time.Time) {
	if e, ok := t.entries[key]; ok {
		e.deadline = deadline
		heap.Fix(&t.timers, e.index)
		return
	}
	e := &entry[K]{key: key, deadline: deadline}
	t.entries[key] = e
	heap.Push(&t.timers, e)
}

// Untrack forgets key. Untracking an unknown key is a no-op.
func (t *Tracker[K]) Untrack(key K) {
	e, ok := t.entries[key]
	if !ok {
		return
	}
	delete(t.entries, key)
	heap.Remove(&t.timers, e.index)
}

// Contains reports whether key is tracked.
func (t *Tracker[K]) Contains(key K) bool {
	_, ok := t.entries[key]
	return ok
}

// Deadline returns the deadline of key.
func (t *Tracker[K]) Deadline(key K) (time.Time, bool) {
	e, ok := t.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Len returns the number of tracked keys.
func (t *Tracker[K]) Len() int { return len(t.entries) }

// Next returns the earliest deadline, if any.
func (t *Tracker[K]) Next() (time.Time, bool) {
	if len(t.timers) == 0 {
		return time.Time{}, false
	}
	return t.timers[0].deadline, true
}

// Sweep removes and returns every key whose deadline is before now,
// earliest deadline first.
func (t *Tracker[K]) Sweep(now time.Time) []K {
	var expired []K
	for len(t.timers) > 0 && t.timers[0].deadline.Before(now) {
		e := heap.Pop(&t.timers).(*entry[K])
		delete(t.entries, e.key)
		expired = append(expired, e.key)
	}
	return expired
}
