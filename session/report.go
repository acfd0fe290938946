// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "time"

// Report is the outcome of one session run.
type Report struct {
	// Index numbers sessions run by one Manager, from zero.
	Index int

	// Server is the address dialed.
	Server string

	// State is the terminal state reached. It is StateError for a
	// session that failed before its engine started.
	State      State
	Checkpoint Checkpoint

	// ServerID is from the server's hello. LogID is the identifier the
	// server assigned, needed to restart the log later.
	ServerID string
	LogID    string

	// Stopped is set when the stream ended at the stop-after point.
	Stopped bool

	Duration time.Duration

	// Err is nil exactly when State is StateFinished.
	Err error
}

// Succeeded reports whether the session reached StateFinished.
func (r Report) Succeeded() bool {
	return r.State == StateFinished && r.Err == nil
}
