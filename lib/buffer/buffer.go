// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"errors"
	"fmt"
	"math/bits"
)

// MaxCapacity bounds a single buffer. Requests above it fail with
// ErrOutOfMemory instead of attempting the allocation.
const MaxCapacity = 1 << 30

// ErrOutOfMemory is returned when a requested size is negative, exceeds
// MaxCapacity, or overflows power-of-two rounding.
var ErrOutOfMemory = errors.New("buffer: out of memory")

// Buffer is a growable byte buffer with a consumed-prefix offset.
type Buffer struct {
	data   []byte
	length int
	offset int
}

// Len returns the number of populated bytes, including consumed ones.
func (buffer *Buffer) Len() int { return buffer.length }

// Cap returns the capacity of the backing array.
func (buffer *Buffer) Cap() int { return len(buffer.data) }

// Offset returns the number of bytes already consumed from the front.
func (buffer *Buffer) Offset() int { return buffer.offset }

// Unread returns the populated bytes not yet consumed. The slice aliases
// the buffer and is invalidated by Compact, Grow, or Reset.
func (buffer *Buffer) Unread() []byte {
	return buffer.data[buffer.offset:buffer.length]
}

// Free returns the unpopulated tail of the backing array. Callers write
// into it and then call Commit with the number of bytes written.
func (buffer *Buffer) Free() []byte {
	return buffer.data[buffer.length:]
}

// Drained reports whether every populated byte has been consumed.
func (buffer *Buffer) Drained() bool {
	return buffer.offset == buffer.length
}

// Commit marks n bytes of Free() as populated.
func (buffer *Buffer) Commit(n int) {
	if n < 0 || buffer.length+n > len(buffer.data) {
		panic(fmt.Sprintf("buffer: commit %d exceeds free space %d", n, len(buffer.data)-buffer.length))
	}
	buffer.length += n
}

// Consume advances the offset past n unread bytes.
func (buffer *Buffer) Consume(n int) {
	if n < 0 || buffer.offset+n > buffer.length {
		panic(fmt.Sprintf("buffer: consume %d exceeds unread %d", n, buffer.length-buffer.offset))
	}
	buffer.offset += n
}

// Append copies data onto the end of the populated region, growing the
// buffer if needed.
func (buffer *Buffer) Append(data []byte) error {
	if err := buffer.Grow(len(data)); err != nil {
		return err
	}
	copy(buffer.data[buffer.length:], data)
	buffer.length += len(data)
	return nil
}

// Compact shifts the unread bytes to the front of the backing array and
// resets the offset to zero. Calling it on a compacted buffer is a no-op.
func (buffer *Buffer) Compact() {
	if buffer.offset == 0 {
		return
	}
	unread := copy(buffer.data, buffer.data[buffer.offset:buffer.length])
	buffer.length = unread
	buffer.offset = 0
}

// Grow ensures at least minFree bytes are available after the populated
// region. It compacts first and reallocates only when compaction is not
// enough, rounding the new capacity up to a power of two. Unread content
// is preserved at index 0.
func (buffer *Buffer) Grow(minFree int) error {
	if minFree < 0 {
		return fmt.Errorf("%w: negative size %d", ErrOutOfMemory, minFree)
	}
	if len(buffer.data)-buffer.length >= minFree {
		return nil
	}
	buffer.Compact()
	if len(buffer.data)-buffer.length >= minFree {
		return nil
	}
	capacity, err := roundCapacity(buffer.length + minFree)
	if err != nil {
		return err
	}
	data := make([]byte, capacity)
	copy(data, buffer.data[:buffer.length])
	buffer.data = data
	return nil
}

// Reset empties the buffer without releasing its backing array.
func (buffer *Buffer) Reset() {
	buffer.length = 0
	buffer.offset = 0
}

// roundCapacity returns the smallest power of two >= size.
func roundCapacity(size int) (int, error) {
	if size < 0 || size > MaxCapacity {
		return 0, fmt.Errorf("%w: size %d exceeds limit %d", ErrOutOfMemory, size, MaxCapacity)
	}
	if size <= 1 {
		return 1, nil
	}
	shift := bits.Len(uint(size - 1))
	if shift >= bits.UintSize-1 {
		return 0, fmt.Errorf("%w: size %d overflows rounding", ErrOutOfMemory, size)
	}
	return 1 << shift, nil
}
