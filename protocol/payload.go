// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/bureau-foundation/sendlog/lib/codec"
)

// ErrDecode wraps every failure to turn a payload into an envelope.
var ErrDecode = errors.New("protocol: malformed payload")

// ErrUnexpectedDirection is returned when a payload decodes to a kind
// that does not travel in the expected direction.
var ErrUnexpectedDirection = errors.New("protocol: envelope kind not valid in this direction")

// wireEnvelope is the CBOR shape of every payload.
type wireEnvelope struct {
	Kind Kind             `cbor:"1,keyasint"`
	Body codec.RawMessage `cbor:"2,keyasint"`
}

// EncodePayload serializes envelope into a frame payload.
func EncodePayload(envelope Envelope) ([]byte, error) {
	if envelope == nil {
		return nil, errors.New("protocol: nil envelope")
	}
	body, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding %s body: %w", envelope.Kind(), err)
	}
	payload, err := codec.Marshal(wireEnvelope{Kind: envelope.Kind(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("encoding %s envelope: %w", envelope.Kind(), err)
	}
	return payload, nil
}

// DecodePayload parses a frame payload, requiring its kind to travel in
// the expected direction.
func DecodePayload(payload []byte, expected Direction) (Envelope, error) {
	var wire wireEnvelope
	if err := codec.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	direction := wire.Kind.Direction()
	if direction == 0 {
		return nil, fmt.Errorf("%w: unknown kind 0x%02x", ErrDecode, uint8(wire.Kind))
	}
	if direction != expected {
		return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrUnexpectedDirection, wire.Kind, direction, expected)
	}
	if len(wire.Body) == 0 {
		return nil, fmt.Errorf("%w: %s without body", ErrDecode, wire.Kind)
	}
	target := newEnvelope(wire.Kind)
	if err := codec.Unmarshal(wire.Body, target); err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", ErrDecode, wire.Kind, err)
	}
	return reflect.ValueOf(target).Elem().Interface().(Envelope), nil
}
