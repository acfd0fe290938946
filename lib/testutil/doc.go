// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sendlog packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so individual tests do not call time.After directly. They are
// the only place tests wait on the wall clock; everything else runs on
// lib/clock's fake clock.
//
// [LoopbackPair] returns both ends of a connected TCP socket on
// 127.0.0.1, for tests that need a real file descriptor (the plain link
// polls the socket directly).
//
// [UniqueID] generates distinct identifiers such as session ids without
// reading the clock.
//
// All helpers call t.Fatalf on failure rather than returning errors.
package testutil
