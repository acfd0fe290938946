// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"time"
)

// State is the engine's position in the conversation.
type State uint8

const (
	StateError State = iota
	StateAwaitingHello
	StateSendingRestart
	StateSendingAccept
	StateSendingReject
	StateStreaming
	StateSendingExit
	StateClosing
	StateFinished
)

func (state State) String() string {
	switch state {
	case StateError:
		return "error"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateSendingRestart:
		return "sending-restart"
	case StateSendingAccept:
		return "sending-accept"
	case StateSendingReject:
		return "sending-reject"
	case StateStreaming:
		return "streaming"
	case StateSendingExit:
		return "sending-exit"
	case StateClosing:
		return "closing"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", state)
	}
}

// Terminal reports whether no further transitions are possible.
func (state State) Terminal() bool {
	return state == StateFinished || state == StateError
}

// Checkpoint is the pair of logical clocks a session tracks. Committed
// never exceeds Elapsed.
type Checkpoint struct {
	// Elapsed is the sum of the delays of every record queued so far,
	// starting from the resume point on a restart.
	Elapsed time.Duration

	// Committed is the last elapsed time the server reported as
	// stored.
	Committed time.Duration
}

// Pending is the session time sent but not yet committed.
func (checkpoint Checkpoint) Pending() time.Duration {
	return checkpoint.Elapsed - checkpoint.Committed
}
