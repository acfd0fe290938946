// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR configuration used for sendlog wire
// payloads.
//
// Every envelope body that crosses the connection is CBOR. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items, so the same
// envelope always produces identical bytes and frame lengths are
// reproducible in tests.
//
// The decoder is strict about structure because its input comes from the
// network: duplicate map keys, indefinite-length items, and CBOR tags are
// rejected, and nesting depth and collection sizes are bounded. Unknown
// map keys are ignored so a newer server may add fields.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Wire types use `cbor` struct tags with small integer keys
// (`cbor:"1,keyasint"`) to keep frames compact.
package codec
