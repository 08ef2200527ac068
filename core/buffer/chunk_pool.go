// File: core/buffer/chunk_pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ChunkPool recycles fixed-size read buffers between Read-Forward and the
// ByteQueue that eventually drains them. Designed for single-goroutine use;
// no locks for minimal overhead.

package buffer

// defaultPoolCapacity bounds how many idle chunks a pool keeps.
const defaultPoolCapacity = 4096

// ChunkPool is a bounded free list of equally sized byte slices.
type ChunkPool struct {
	size  int
	max   int
	free  [][]byte
	alloc uint64
	reuse uint64
}

// NewChunkPool returns a pool of size-byte chunks keeping at most capacity
// idle chunks. capacity <= 0 selects the default.
func NewChunkPool(size, capacity int) *ChunkPool {
	if capacity <= 0 {
		capacity = defaultPoolCapacity
	}
	return &ChunkPool{size: size, max: capacity}
}

// Size returns the chunk length handed out by Get.
func (p *ChunkPool) Size() int { return p.size }

// Get returns a chunk of exactly Size bytes. Contents are undefined.
func (p *ChunkPool) Get() []byte {
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.reuse++
		return b[:p.size]
	}
	p.alloc++
	return make([]byte, p.size)
}

// Put returns b for reuse. Slices not obtained from this pool (by capacity)
// are dropped, as is anything past the pool capacity.
func (p *ChunkPool) Put(b []byte) {
	if cap(b) != p.size || len(p.free) >= p.max {
		return
	}
	p.free = append(p.free, b[:p.size])
}

// Idle returns the number of chunks waiting for reuse.
func (p *ChunkPool) Idle() int { return len(p.free) }

// Allocated returns how many chunks Get had to allocate; Reused how many it
// served from the free list.
func (p *ChunkPool) Allocated() uint64 { return p.alloc }
func (p *ChunkPool) Reused() uint64    { return p.reuse }
