// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recording reads a recorded command-execution session from its
// directory: the timing stream that orders every event, the per-channel
// data streams the timing records point into, and the session metadata.
//
// A recording directory holds:
//
//   - timing: mandatory. One event per line: an event number, the delay
//     since the previous event as seconds with a fractional part, and
//     event arguments (a byte count for data channels, "rows cols" for a
//     window resize, a signal for suspend).
//   - stdin, stdout, stderr, ttyin, ttyout: optional data channels. A
//     missing channel is only an error if a timing record references it.
//   - log.json: optional metadata (JSON, comments tolerated).
//
// Any of these files may be gzip, zstd, or lz4-frame compressed, and may be
// age-encrypted (binary or armored); the format is detected from the
// leading bytes. Encrypted files need an identity in [Options].
//
// [TimingReader] produces [TimingRecord] values lazily and strictly in
// order. [ChannelSet] pulls the bytes a record refers to. [SeekTo] is the
// resume algorithm: it replays timing records without emitting them,
// advancing every channel cursor, until the accumulated elapsed time
// equals the resume point exactly.
package recording
