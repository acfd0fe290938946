// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

// DefaultSize is the capacity given to buffers acquired with a smaller
// minimum. 64 KiB holds a typical terminal output chunk plus framing.
const DefaultSize = 64 * 1024

// Stats counts pool activity.
type Stats struct {
	// Allocations is the number of buffers created because the free
	// list was empty.
	Allocations int

	// Reuses is the number of buffers handed out from the free list.
	Reuses int

	// Grows is the number of pooled buffers reallocated in place
	// because they were smaller than the requested minimum.
	Grows int

	// Outstanding is the number of buffers acquired and not yet
	// released.
	Outstanding int

	// Free is the current length of the free list.
	Free int
}

// Pool is a free list of buffers. The zero value is ready to use. A Pool
// is owned by a single session and is not safe for concurrent use.
type Pool struct {
	free  []*Buffer
	stats Stats
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Acquire returns a buffer whose capacity is at least minSize. A pooled
// buffer is preferred; if it is undersized it is reallocated in place to
// the next power of two. With an empty free list a new buffer is created
// with capacity max(DefaultSize, minSize) rounded to a power of two.
func (pool *Pool) Acquire(minSize int) (*Buffer, error) {
	if _, err := roundCapacity(minSize); err != nil {
		return nil, err
	}
	if count := len(pool.free); count > 0 {
		buffer := pool.free[count-1]
		if len(buffer.data) < minSize {
			capacity, err := roundCapacity(minSize)
			if err != nil {
				return nil, err
			}
			buffer.data = make([]byte, capacity)
			pool.stats.Grows++
		}
		pool.free[count-1] = nil
		pool.free = pool.free[:count-1]
		buffer.Reset()
		pool.stats.Reuses++
		pool.stats.Outstanding++
		return buffer, nil
	}

	size := minSize
	if size < DefaultSize {
		size = DefaultSize
	}
	capacity, err := roundCapacity(size)
	if err != nil {
		return nil, err
	}
	pool.stats.Allocations++
	pool.stats.Outstanding++
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Release resets buffer and returns it to the free list. Capacity is kept.
// Releasing nil is a no-op.
func (pool *Pool) Release(buffer *Buffer) {
	if buffer == nil {
		return
	}
	buffer.Reset()
	pool.free = append(pool.free, buffer)
	pool.stats.Outstanding--
}

// Stats returns a snapshot of pool activity.
func (pool *Pool) Stats() Stats {
	stats := pool.stats
	stats.Free = len(pool.free)
	return stats
}
