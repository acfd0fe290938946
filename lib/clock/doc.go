// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for deadline
// bookkeeping.
//
// Session timeouts (handshake, idle, commit wait) are measured against a
// Clock rather than time.Now, so tests can expire a deadline by advancing
// a fake clock instead of sleeping:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	conn := transport.NewConn(link, transport.Options{Clock: fake})
//	fake.Advance(31 * time.Second) // the next Pump reports a timeout
//
// Production code uses Real().
package clock
