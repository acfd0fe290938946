// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnexpectedEnvelope is returned for a server envelope that is
	// not valid in the current state.
	ErrUnexpectedEnvelope = errors.New("session: unexpected envelope")

	// ErrInvalidHello is returned for a ServerHello without a server
	// id, or one that redirects elsewhere.
	ErrInvalidHello = errors.New("session: invalid server hello")

	// ErrServerError is returned when the server reports an error.
	ErrServerError = errors.New("session: server error")

	// ErrServerAbort is returned when the server aborts the session.
	ErrServerAbort = errors.New("session: server aborted")

	// ErrCommitOutOfRange is returned for a commit point beyond the
	// elapsed time sent or behind the previous commit point.
	ErrCommitOutOfRange = errors.New("session: commit point out of range")

	// ErrExitedPrematurely is returned when the connection ends before
	// the server has committed everything sent.
	ErrExitedPrematurely = errors.New("session: exited prematurely")

	// ErrStopPointNotOnBoundary is returned when the stop-after time
	// falls inside a record rather than between two.
	ErrStopPointNotOnBoundary = errors.New("session: stop point is not on a record boundary")
)

// Failure is the error of a session that ended in StateError. State is
// where the engine was when it failed.
type Failure struct {
	State      State
	Checkpoint Checkpoint
	Err        error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("session failed in %s (elapsed %v, committed %v): %v",
		f.State, f.Checkpoint.Elapsed, f.Checkpoint.Committed, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
