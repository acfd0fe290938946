// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package buffer provides the growable byte buffers and per-session free
// list that back all sendlog I/O.
//
// A [Buffer] tracks three positions over its backing array: the capacity,
// the number of populated bytes (length), and the number of bytes already
// consumed from the front (offset). The invariant 0 <= offset <= length <=
// capacity holds after every operation. Outbound frames are encoded into a
// Buffer and drained by partial socket writes that advance the offset;
// inbound bytes are appended into the free tail and consumed frame by frame.
//
// A [Pool] recycles buffers once they drain. Capacities are rounded up to
// the next power of two and never shrink: a pooled buffer is reused at its
// largest-ever size. Pools are not safe for concurrent use; each session
// owns its own.
package buffer
