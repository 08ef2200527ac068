// File: core/buffer/byte_queue.go
// Package buffer holds the per-direction outbound byte queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package buffer

import (
	"errors"
	"io"

	"github.com/eapache/queue"
	"github.com/momentics/hioload-proxy/api"
)

// ByteQueue is a FIFO of pending outbound chunks for one socket direction.
// The head chunk may be partially written; off marks its unwritten suffix.
// Not safe for concurrent use: it belongs to exactly one loop goroutine.
type ByteQueue struct {
	chunks *queue.Queue
	off    int
	size   int
	pool   *ChunkPool
}

// NewByteQueue returns an empty queue. When pool is non-nil every chunk the
// queue finishes with (fully written or dropped by Reset) is handed back to it.
func NewByteQueue(pool *ChunkPool) *ByteQueue {
	return &ByteQueue{chunks: queue.New(), pool: pool}
}

func (q *ByteQueue) release(chunk []byte) {
	if q.pool != nil {
		q.pool.Put(chunk)
	}
}

// Enqueue appends chunk. The queue takes ownership of the slice.
func (q *ByteQueue) Enqueue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	q.chunks.Add(chunk)
	q.size += len(chunk)
}

// Len returns the number of bytes not yet written.
func (q *ByteQueue) Len() int { return q.size }

// Chunks returns the number of queued chunks, including a partially written head.
func (q *ByteQueue) Chunks() int { return q.chunks.Length() }

// Empty reports whether nothing is queued.
func (q *ByteQueue) Empty() bool { return q.size == 0 }

// Reset drops all queued data.
func (q *ByteQueue) Reset() {
	for q.chunks.Length() > 0 {
		q.release(q.chunks.Remove().([]byte))
	}
	q.off = 0
	q.size = 0
}

// DrainInto writes queued bytes to w in FIFO order until the queue is empty,
// w accepts a short write, or w reports api.ErrWouldBlock. A short write
// leaves the remainder at the head for the next call. Any other error is
// returned as is and the queue is left untouched past the bytes already
// written.
func (q *ByteQueue) DrainInto(w io.Writer) (allConsumed bool, err error) {
	for q.chunks.Length() > 0 {
		head := q.chunks.Peek().([]byte)
		rest := head[q.off:]
		n, err := w.Write(rest)
		if n > 0 {
			q.off += n
			q.size -= n
		}
		if err != nil {
			if errors.Is(err, api.ErrWouldBlock) {
				return false, nil
			}
			return false, err
		}
		if n < len(rest) {
			return false, nil
		}
		q.release(q.chunks.Remove().([]byte))
		q.off = 0
	}
	return true, nil
}
