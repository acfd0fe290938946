// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClockAdvance(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	if got := fake.Now(); !got.Equal(start) {
		t.Fatalf("Now: got %v, want %v", got, start)
	}
	fake.Advance(90 * time.Second)
	if got := fake.Since(start); got != 90*time.Second {
		t.Fatalf("Since: got %v, want 90s", got)
	}
}

func TestRealClockMonotonic(t *testing.T) {
	t.Parallel()
	wall := Real()
	before := wall.Now()
	if wall.Since(before) < 0 {
		t.Fatal("Since returned a negative duration")
	}
}
