// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport moves framed bytes between a session and the log
// server over TCP, optionally wrapped in TLS.
//
// A [Link] is the byte-level capability: non-blocking Read and Write that
// report a [Status] instead of blocking, a Handshake step, and Wait for
// socket readiness. [PlainLink] drives the socket file descriptor directly
// with golang.org/x/sys/unix. [TLSLink] layers crypto/tls on the same
// socket.
//
// [Conn] sits on a Link and gives the session two non-blocking primitives,
// [Conn.TrySend] and [Conn.TryReceive], each returning a [Result]
// (Progress, WouldBlock, Closed, Fatal). [Conn.Pump] waits once for
// readiness and dispatches to a [Handler].
//
// TLS can need the opposite readiness from the one an operation was
// waiting for: a write may have to read a handshake message first, and a
// read may have to flush one. Conn records this as a [Redirect]. While a
// write is parked on read readiness, read readiness runs the send path;
// while a read is parked on write readiness, write readiness runs the
// receive path. The redirect clears when the parked operation is retried.
//
// Deadlines are measured on an injectable clock from the last byte of
// progress in either direction. An expired deadline or a cancelled
// context is a Fatal result wrapping [ErrTimeout] or [ErrCancelled].
package transport
