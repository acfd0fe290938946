// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is wrapped by every failure caused by an expired
	// deadline.
	ErrTimeout = errors.New("transport: timed out")

	// ErrCancelled is wrapped when the session context is cancelled.
	ErrCancelled = errors.New("transport: cancelled")

	// ErrClosed is returned when the peer closed the connection during
	// an operation that cannot complete without it.
	ErrClosed = errors.New("transport: connection closed")

	// ErrTLS wraps handshake and record-layer failures.
	ErrTLS = errors.New("transport: tls failure")
)

// Status is the outcome of one Link operation.
type Status uint8

const (
	// StatusOK means the operation made progress (or completed, for
	// Handshake).
	StatusOK Status = iota

	// StatusWantRead means the operation cannot continue until the
	// socket is readable.
	StatusWantRead

	// StatusWantWrite means the operation cannot continue until the
	// socket is writable.
	StatusWantWrite

	// StatusClosed means the peer closed the connection cleanly.
	StatusClosed

	// StatusFatal means the connection is unusable. The accompanying
	// error says why.
	StatusFatal
)

func (status Status) String() string {
	switch status {
	case StatusOK:
		return "ok"
	case StatusWantRead:
		return "want-read"
	case StatusWantWrite:
		return "want-write"
	case StatusClosed:
		return "closed"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", status)
	}
}

// Interest is a set of readiness conditions.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Has reports whether every condition in other is in interest.
func (interest Interest) Has(other Interest) bool {
	return interest&other == other
}

func (interest Interest) String() string {
	switch interest {
	case 0:
		return "none"
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestRead | InterestWrite:
		return "read|write"
	default:
		return fmt.Sprintf("interest(%d)", interest)
	}
}

// Link is a byte stream whose operations never block indefinitely.
//
// Read and Write return StatusWantRead or StatusWantWrite with n == 0
// when they cannot make progress; the caller waits for that readiness and
// retries with the same arguments. A Link is used by one goroutine.
type Link interface {
	// Handshake advances connection setup. StatusOK means the link is
	// ready for data; plain links return it immediately. Cancelling ctx
	// aborts a handshake in progress.
	Handshake(ctx context.Context) (Status, error)

	// Read reads up to len(p) bytes.
	Read(p []byte) (int, Status, error)

	// Write writes up to len(p) bytes. A short write with StatusOK is
	// progress; the caller retries the remainder.
	Write(p []byte) (int, Status, error)

	// Wait blocks until at least one condition in interest holds or
	// timeout elapses, and returns the conditions that hold (none on
	// timeout). A zero timeout polls.
	Wait(interest Interest, timeout time.Duration) (Interest, error)

	// Close releases the connection.
	Close() error
}
