package buffer_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/hioload-proxy/api"
	"github.com/momentics/hioload-proxy/core/buffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// limitWriter accepts at most limit bytes per Write and then blocks.
type limitWriter struct {
	out    bytes.Buffer
	limit  int
	budget int
	err    error
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.budget == 0 {
		return 0, api.ErrWouldBlock
	}
	n := len(p)
	if n > w.budget {
		n = w.budget
	}
	if w.limit > 0 && n > w.limit {
		n = w.limit
	}
	w.budget -= n
	w.out.Write(p[:n])
	return n, nil
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestByteQueue_DrainAll(t *testing.T) {
	q := buffer.NewByteQueue(nil)
	q.Enqueue([]byte("hello "))
	q.Enqueue(nil)
	q.Enqueue([]byte("world"))
	require.Equal(t, 11, q.Len())
	require.Equal(t, 2, q.Chunks())

	w := &limitWriter{budget: 1 << 20}
	done, err := q.DrainInto(w)
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, q.Empty())
	assert.Equal(t, "hello world", w.out.String())
}

func TestByteQueue_PartialWriteResumesAtOffset(t *testing.T) {
	payload := pattern(20000)
	q := buffer.NewByteQueue(nil)
	q.Enqueue(payload[:7000])
	q.Enqueue(payload[7000:])

	w := &limitWriter{}
	ticks := 0
	for !q.Empty() {
		w.budget = 4096
		_, err := q.DrainInto(w)
		require.NoError(t, err)
		ticks++
		require.LessOrEqual(t, ticks, 5)
	}
	assert.Equal(t, 5, ticks)
	assert.Equal(t, payload, w.out.Bytes())
	assert.Zero(t, q.Chunks())
}

func TestByteQueue_ShortWriteStops(t *testing.T) {
	q := buffer.NewByteQueue(nil)
	q.Enqueue([]byte("abcdef"))
	q.Enqueue([]byte("ghi"))

	w := &limitWriter{limit: 4, budget: 100}
	done, err := q.DrainInto(w)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, "abcd", w.out.String())
	assert.Equal(t, 5, q.Len())
	assert.Equal(t, 2, q.Chunks())

	w.limit = 0
	done, err = q.DrainInto(w)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "abcdefghi", w.out.String())
}

func TestByteQueue_WriteErrorKeepsRemainder(t *testing.T) {
	boom := errors.New("broken pipe")
	q := buffer.NewByteQueue(nil)
	q.Enqueue([]byte("data"))

	done, err := q.DrainInto(&limitWriter{err: boom})
	require.ErrorIs(t, err, boom)
	assert.False(t, done)
	assert.Equal(t, 4, q.Len())

	q.Reset()
	assert.True(t, q.Empty())
	assert.Zero(t, q.Chunks())
}

func TestByteQueue_ReleasesChunksToPool(t *testing.T) {
	pool := buffer.NewChunkPool(8, 0)
	q := buffer.NewByteQueue(pool)

	a, b := pool.Get(), pool.Get()
	copy(a, "aaaaaaaa")
	copy(b, "bbbbbbbb")
	q.Enqueue(a[:8])
	q.Enqueue(b[:5])
	q.Enqueue([]byte("foreign")) // not pooled, dropped on release

	w := &limitWriter{budget: 10}
	done, err := q.DrainInto(w)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, pool.Idle(), "only the fully written chunk returns")

	q.Reset()
	assert.Equal(t, 2, pool.Idle())
	assert.EqualValues(t, 2, pool.Allocated())

	pool.Get()
	pool.Get()
	assert.EqualValues(t, 2, pool.Reused())
	assert.Zero(t, pool.Idle())
}

func TestChunkPool_Bounded(t *testing.T) {
	pool := buffer.NewChunkPool(4, 2)
	bufs := [][]byte{pool.Get(), pool.Get(), pool.Get()}
	for _, b := range bufs {
		assert.Len(t, b, 4)
		pool.Put(b[:1])
	}
	assert.Equal(t, 2, pool.Idle())
	assert.Len(t, pool.Get(), 4, "reused chunks come back full length")

	pool.Put(make([]byte, 16))
	assert.Equal(t, 1, pool.Idle())
}
