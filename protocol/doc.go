// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the sendlog wire protocol: the envelope types
// exchanged between a log sender and a log server, their CBOR payload
// encoding, and the length-prefixed framing that carries them over a byte
// stream.
//
// Each frame is a 4-byte big-endian payload length followed by the
// payload. Payloads larger than [MaxPayloadLength] (2 MiB) are a fatal
// protocol violation in both directions. The payload is a CBOR map of a
// one-byte [Kind] discriminator and the envelope body.
//
// Envelopes are a closed set of Go types implementing [Envelope]. Client
// envelopes ([ClientHello], [Restart], [Accept], [Reject], [Exit],
// [IOBuffer], [WindowSize], [Suspend]) flow to the server; server envelopes
// ([ServerHello], [CommitPoint], [LogID], [Error], [Abort]) flow back.
// Decoding checks that a frame's kind belongs to the expected direction.
//
// [EncodeFrame] and [TryDecode] are the non-blocking framer used by the
// session engine over pooled buffers. [WriteFrame] and [ReadFrame] are
// blocking helpers over io.Writer and io.Reader for simple peers and
// tests.
package protocol
