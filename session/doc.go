// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session runs the client side of a log transfer: one recorded
// session streamed to one log server connection.
//
// [Engine] is the protocol state machine. It owns the outbound frame
// queue and the inbound buffer, and implements transport.Handler so a
// transport.Conn can move its bytes. The engine never blocks and never
// touches the network itself.
//
// [Session] owns one connection and one engine and runs them to a
// terminal state on the calling goroutine, applying the handshake, idle,
// and commit timeouts by state. [Manager] runs any number of sessions in
// parallel, each with its own buffer pool, and collects a [Report] from
// each.
//
// The conversation:
//
//	client                              server
//	ClientHello          ------>
//	                     <------        ServerHello
//	Accept | Restart | Reject ->
//	IOBuffer/WindowSize/Suspend ...
//	                     <------        CommitPoint (any time)
//	Exit                 ------>
//	                     <------        CommitPoint == elapsed, close
//
// Elapsed is the sum of record delays sent so far; committed is the
// server's last CommitPoint. Both only grow, committed never passes
// elapsed, and a session is Finished only when they are equal after the
// last record.
package session
