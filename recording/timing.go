// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// MaxRecordBytes bounds the byte count of a single timing record. One
// record becomes one IOBuffer envelope, which must fit in a frame with
// room for the envelope header.
const MaxRecordBytes = 1024 * 1024

// maxLineLength bounds a timing line. Real lines are under 64 bytes.
const maxLineLength = 4096

// TimingRecord is one event from the timing stream.
type TimingRecord struct {
	// Channel is the stream or event type.
	Channel Channel

	// Delay is the time since the previous record.
	Delay time.Duration

	// ByteCount is the number of bytes to pull from the channel's data
	// file. Set only for stream channels.
	ByteCount int64

	// Rows and Columns are the new terminal size. Set only for
	// ChannelWindowSize.
	Rows    int32
	Columns int32

	// Signal is the signal name without the SIG prefix (for example
	// "TSTP"). Set only for ChannelSuspend.
	Signal string
}

// TimingError reports a malformed timing line.
type TimingError struct {
	Line   int
	Reason string
}

func (e *TimingError) Error() string {
	return fmt.Sprintf("timing line %d: %s", e.Line, e.Reason)
}

// TimingReader reads timing records one at a time. It is forward-only:
// restarting means opening a new reader and seeking.
type TimingReader struct {
	scanner *bufio.Scanner
	line    int
	elapsed time.Duration
	closer  io.Closer
}

// NewTimingReader reads timing records from r.
func NewTimingReader(r io.Reader) *TimingReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256), maxLineLength)
	reader := &TimingReader{scanner: scanner}
	if closer, ok := r.(io.Closer); ok {
		reader.closer = closer
	}
	return reader
}

// Next returns the next record. It returns io.EOF after the last record
// and a *TimingError for a malformed line. Blank lines are skipped.
func (reader *TimingReader) Next() (TimingRecord, error) {
	for reader.scanner.Scan() {
		reader.line++
		text := strings.TrimSpace(reader.scanner.Text())
		if text == "" {
			continue
		}
		record, err := parseTimingLine(text)
		if err != nil {
			return TimingRecord{}, &TimingError{Line: reader.line, Reason: err.Error()}
		}
		reader.elapsed += record.Delay
		return record, nil
	}
	if err := reader.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return TimingRecord{}, &TimingError{Line: reader.line + 1, Reason: "line too long"}
		}
		return TimingRecord{}, fmt.Errorf("reading timing stream: %w", err)
	}
	return TimingRecord{}, io.EOF
}

// Elapsed returns the sum of the delays of every record returned so far.
func (reader *TimingReader) Elapsed() time.Duration {
	return reader.elapsed
}

// Close releases the underlying stream if it is closable.
func (reader *TimingReader) Close() error {
	if reader.closer == nil {
		return nil
	}
	return reader.closer.Close()
}

func parseTimingLine(text string) (TimingRecord, error) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return TimingRecord{}, fmt.Errorf("expected at least 3 fields, got %d", len(fields))
	}
	event, err := strconv.Atoi(fields[0])
	if err != nil {
		return TimingRecord{}, fmt.Errorf("event %q is not a number", fields[0])
	}
	channel, ok := timingEvents[event]
	if !ok {
		return TimingRecord{}, fmt.Errorf("unknown event %d", event)
	}
	delay, err := ParseDelay(fields[1])
	if err != nil {
		return TimingRecord{}, err
	}
	record := TimingRecord{Channel: channel, Delay: delay}

	switch channel {
	case ChannelWindowSize:
		if len(fields) != 4 {
			return TimingRecord{}, fmt.Errorf("winsize needs rows and columns, got %d fields", len(fields))
		}
		rows, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil || rows < 0 {
			return TimingRecord{}, fmt.Errorf("invalid rows %q", fields[2])
		}
		columns, err := strconv.ParseInt(fields[3], 10, 32)
		if err != nil || columns < 0 {
			return TimingRecord{}, fmt.Errorf("invalid columns %q", fields[3])
		}
		record.Rows, record.Columns = int32(rows), int32(columns)
	case ChannelSuspend:
		if len(fields) != 3 {
			return TimingRecord{}, fmt.Errorf("suspend needs one signal, got %d fields", len(fields))
		}
		signal, err := parseSignal(fields[2])
		if err != nil {
			return TimingRecord{}, err
		}
		record.Signal = signal
	default:
		if len(fields) != 3 {
			return TimingRecord{}, fmt.Errorf("%s needs one byte count, got %d fields", channel, len(fields))
		}
		count, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || count < 0 {
			return TimingRecord{}, fmt.Errorf("invalid byte count %q", fields[2])
		}
		if count > MaxRecordBytes {
			return TimingRecord{}, fmt.Errorf("byte count %d exceeds %d", count, MaxRecordBytes)
		}
		record.ByteCount = count
	}
	return record, nil
}

// ParseDelay parses a non-negative "seconds.fraction" value. Either '.'
// or ',' separates the fraction, which may have up to nine digits.
func ParseDelay(text string) (time.Duration, error) {
	seconds, fraction, hasFraction := strings.Cut(strings.ReplaceAll(text, ",", "."), ".")
	if seconds == "" {
		seconds = "0"
	}
	whole, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil || whole < 0 {
		return 0, fmt.Errorf("invalid delay %q", text)
	}
	if whole > math.MaxInt64/int64(time.Second)-1 {
		return 0, fmt.Errorf("delay %q out of range", text)
	}
	var nanoseconds int64
	if hasFraction {
		if fraction == "" || len(fraction) > 9 {
			return 0, fmt.Errorf("invalid delay fraction %q", text)
		}
		padded := fraction + strings.Repeat("0", 9-len(fraction))
		nanoseconds, err = strconv.ParseInt(padded, 10, 64)
		if err != nil || nanoseconds < 0 {
			return 0, fmt.Errorf("invalid delay fraction %q", text)
		}
	}
	return time.Duration(whole)*time.Second + time.Duration(nanoseconds), nil
}

// parseSignal accepts a signal name with or without the SIG prefix, or a
// signal number, and returns the name without the prefix.
func parseSignal(text string) (string, error) {
	if number, err := strconv.Atoi(text); err == nil {
		name := unix.SignalName(syscall.Signal(number))
		if name == "" {
			return "", fmt.Errorf("unknown signal number %d", number)
		}
		return strings.TrimPrefix(name, "SIG"), nil
	}
	name := strings.TrimPrefix(strings.ToUpper(text), "SIG")
	if unix.SignalNum("SIG"+name) == 0 {
		return "", fmt.Errorf("unknown signal %q", text)
	}
	return name, nil
}
