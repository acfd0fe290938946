// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"bytes"
	"errors"
	"testing"
)

func TestAcquireRoundsToPowerOfTwo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		minSize int
		want    int
	}{
		{name: "zero uses default", minSize: 0, want: DefaultSize},
		{name: "small uses default", minSize: 100, want: DefaultSize},
		{name: "exact default", minSize: DefaultSize, want: DefaultSize},
		{name: "just above default", minSize: DefaultSize + 1, want: 2 * DefaultSize},
		{name: "frame limit", minSize: 2*1024*1024 + 4, want: 4 * 1024 * 1024},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			pool := NewPool()
			buffer, err := pool.Acquire(test.minSize)
			if err != nil {
				t.Fatalf("Acquire(%d): %v", test.minSize, err)
			}
			if buffer.Cap() != test.want {
				t.Errorf("Cap: got %d, want %d", buffer.Cap(), test.want)
			}
			if buffer.Len() != 0 || buffer.Offset() != 0 {
				t.Errorf("new buffer not empty: length %d offset %d", buffer.Len(), buffer.Offset())
			}
		})
	}
}

func TestAcquireRejectsImpossibleSizes(t *testing.T) {
	t.Parallel()
	pool := NewPool()
	for _, size := range []int{-1, MaxCapacity + 1} {
		if _, err := pool.Acquire(size); !errors.Is(err, ErrOutOfMemory) {
			t.Errorf("Acquire(%d): got %v, want ErrOutOfMemory", size, err)
		}
	}
}

func TestReleaseRecyclesWithoutShrinking(t *testing.T) {
	t.Parallel()
	pool := NewPool()
	large, err := pool.Acquire(256 * 1024)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := large.Append([]byte("payload")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	large.Consume(3)
	pool.Release(large)

	reused, err := pool.Acquire(10)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if reused != large {
		t.Fatal("expected the released buffer to be reused")
	}
	if reused.Cap() != 256*1024 {
		t.Errorf("Cap after reuse: got %d, want %d", reused.Cap(), 256*1024)
	}
	if reused.Len() != 0 || reused.Offset() != 0 {
		t.Errorf("reused buffer not reset: length %d offset %d", reused.Len(), reused.Offset())
	}

	stats := pool.Stats()
	if stats.Allocations != 1 || stats.Reuses != 1 || stats.Outstanding != 1 || stats.Free != 0 {
		t.Errorf("stats: got %+v", stats)
	}
}

func TestAcquireGrowsUndersizedPooledBuffer(t *testing.T) {
	t.Parallel()
	pool := NewPool()
	buffer, err := pool.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(buffer)

	grown, err := pool.Acquire(DefaultSize*3 + 1)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if grown != buffer {
		t.Fatal("expected the pooled buffer to be grown in place")
	}
	if grown.Cap() != DefaultSize*4 {
		t.Errorf("Cap: got %d, want %d", grown.Cap(), DefaultSize*4)
	}
	if pool.Stats().Grows != 1 {
		t.Errorf("Grows: got %d, want 1", pool.Stats().Grows)
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	t.Parallel()
	buffer := &Buffer{}
	if err := buffer.Append([]byte("0123456789")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	buffer.Consume(4)

	buffer.Compact()
	if buffer.Offset() != 0 || buffer.Len() != 6 {
		t.Fatalf("after Compact: offset %d length %d, want 0 and 6", buffer.Offset(), buffer.Len())
	}
	if !bytes.Equal(buffer.Unread(), []byte("456789")) {
		t.Fatalf("Unread: got %q", buffer.Unread())
	}

	buffer.Compact()
	if buffer.Offset() != 0 || buffer.Len() != 6 || !bytes.Equal(buffer.Unread(), []byte("456789")) {
		t.Fatalf("second Compact changed state: offset %d length %d unread %q",
			buffer.Offset(), buffer.Len(), buffer.Unread())
	}
}

func TestGrowPreservesUnreadAtFront(t *testing.T) {
	t.Parallel()
	pool := NewPool()
	buffer, err := pool.Acquire(0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	filler := bytes.Repeat([]byte{'x'}, DefaultSize-2)
	if err := buffer.Append(filler); err != nil {
		t.Fatalf("Append: %v", err)
	}
	buffer.Consume(DefaultSize - 4)

	if err := buffer.Grow(DefaultSize); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	if buffer.Offset() != 0 {
		t.Errorf("Offset after Grow: got %d, want 0", buffer.Offset())
	}
	if !bytes.Equal(buffer.Unread(), []byte("xx")) {
		t.Errorf("Unread after Grow: got %q, want %q", buffer.Unread(), "xx")
	}
	if len(buffer.Free()) < DefaultSize {
		t.Errorf("Free after Grow: got %d, want >= %d", len(buffer.Free()), DefaultSize)
	}
	if buffer.Cap()&(buffer.Cap()-1) != 0 {
		t.Errorf("Cap %d is not a power of two", buffer.Cap())
	}
}

func TestCommitAndConsumeBounds(t *testing.T) {
	t.Parallel()
	buffer := &Buffer{}
	if err := buffer.Grow(8); err != nil {
		t.Fatalf("Grow: %v", err)
	}
	copy(buffer.Free(), "abc")
	buffer.Commit(3)
	if !bytes.Equal(buffer.Unread(), []byte("abc")) {
		t.Fatalf("Unread: got %q", buffer.Unread())
	}
	buffer.Consume(3)
	if !buffer.Drained() {
		t.Fatal("expected buffer to be drained")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when consuming past length")
		}
	}()
	buffer.Consume(1)
}
