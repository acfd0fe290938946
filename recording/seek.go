// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrResumePointNotFound is returned when no prefix of the timing stream
// sums exactly to the requested resume point.
var ErrResumePointNotFound = errors.New("recording: unable to find resume point")

// RecordSource yields timing records in order. *TimingReader implements
// it.
type RecordSource interface {
	Next() (TimingRecord, error)
}

// ChannelSeeker advances data channel cursors. *ChannelSet implements it.
type ChannelSeeker interface {
	SeekChannel(channel Channel, count int64) error
}

// SeekTo consumes records from source until their accumulated delay
// equals target, advancing each referenced data channel past the bytes
// those records cover. A zero target returns immediately.
//
// The match must be exact. Reaching the end of the stream first, or
// accumulating past target without hitting it, returns
// ErrResumePointNotFound. The scan is linear: the timing stream has no
// index.
func SeekTo(source RecordSource, channels ChannelSeeker, target time.Duration) error {
	if target == 0 {
		return nil
	}
	if target < 0 {
		return fmt.Errorf("%w: negative resume point %v", ErrResumePointNotFound, target)
	}
	var elapsed time.Duration
	for {
		record, err := source.Next()
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v is past the end of the recording (%v)", ErrResumePointNotFound, target, elapsed)
		}
		if err != nil {
			return fmt.Errorf("seeking to %v: %w", target, err)
		}
		elapsed += record.Delay
		if elapsed > target {
			return fmt.Errorf("%w: %v falls between records (passed it at %v)", ErrResumePointNotFound, target, elapsed)
		}
		if record.Channel.IsStream() {
			if err := channels.SeekChannel(record.Channel, record.ByteCount); err != nil {
				return fmt.Errorf("seeking to %v: %w", target, err)
			}
		}
		if elapsed == target {
			return nil
		}
	}
}
