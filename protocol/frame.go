// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/sendlog/lib/buffer"
)

// HeaderLength is the size of the frame length prefix.
const HeaderLength = 4

// MaxPayloadLength is the largest payload either side may send. This is
// a protocol limit, not a buffer limit: a larger declared length is fatal
// even when the buffer could hold it.
const MaxPayloadLength = 2 * 1024 * 1024

// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadLength,
// on encode or as soon as a declared length is seen on decode.
var ErrPayloadTooLarge = errors.New("protocol: payload too large")

// ErrNeedMoreData is returned by TryDecode when the buffer does not yet
// hold a complete frame. It is a suspension signal, not a failure.
var ErrNeedMoreData = errors.New("protocol: need more data")

// EncodeFrame encodes envelope into a buffer acquired from pool. The
// buffer holds exactly one frame; the caller releases it to the pool once
// it has been written out.
func EncodeFrame(pool *buffer.Pool, envelope Envelope) (*buffer.Buffer, error) {
	payload, err := EncodePayload(envelope)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %s payload is %d bytes, limit %d",
			ErrPayloadTooLarge, envelope.Kind(), len(payload), MaxPayloadLength)
	}
	frame, err := pool.Acquire(HeaderLength + len(payload))
	if err != nil {
		return nil, fmt.Errorf("acquiring frame buffer: %w", err)
	}
	free := frame.Free()
	binary.BigEndian.PutUint32(free[:HeaderLength], uint32(len(payload)))
	copy(free[HeaderLength:], payload)
	frame.Commit(HeaderLength + len(payload))
	return frame, nil
}

// FrameLength returns the total size (header plus payload) of the frame
// starting at data[0]. It returns ErrNeedMoreData when the header is
// incomplete and ErrPayloadTooLarge when the declared payload exceeds
// MaxPayloadLength.
func FrameLength(data []byte) (int, error) {
	if len(data) < HeaderLength {
		return 0, ErrNeedMoreData
	}
	declared := binary.BigEndian.Uint32(data[:HeaderLength])
	if declared > MaxPayloadLength {
		return 0, fmt.Errorf("%w: declared length %d, limit %d", ErrPayloadTooLarge, declared, MaxPayloadLength)
	}
	return HeaderLength + int(declared), nil
}

// TryDecode decodes the frame at the front of data. On success it returns
// the envelope and the number of bytes the frame occupied; the caller
// advances past them and calls TryDecode again for the next frame.
// ErrNeedMoreData means the caller must accumulate more bytes, growing
// its buffer to FrameLength if needed.
func TryDecode(data []byte, expected Direction) (Envelope, int, error) {
	total, err := FrameLength(data)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < total {
		return nil, 0, ErrNeedMoreData
	}
	envelope, err := DecodePayload(data[HeaderLength:total], expected)
	if err != nil {
		return nil, 0, err
	}
	return envelope, total, nil
}

// WriteFrame encodes envelope and writes it to w as one frame. It blocks
// until the whole frame is written.
func WriteFrame(w io.Writer, envelope Envelope) error {
	payload, err := EncodePayload(envelope)
	if err != nil {
		return err
	}
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("%w: %s payload is %d bytes", ErrPayloadTooLarge, envelope.Kind(), len(payload))
	}
	frame := make([]byte, HeaderLength+len(payload))
	binary.BigEndian.PutUint32(frame[:HeaderLength], uint32(len(payload)))
	copy(frame[HeaderLength:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", envelope.Kind(), err)
	}
	return nil
}

// ReadFrame reads one frame from r and decodes it. It blocks until a
// whole frame has arrived.
func ReadFrame(r io.Reader, expected Direction) (Envelope, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	declared := binary.BigEndian.Uint32(header[:])
	if declared > MaxPayloadLength {
		return nil, fmt.Errorf("%w: declared length %d", ErrPayloadTooLarge, declared)
	}
	payload := make([]byte, declared)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return DecodePayload(payload, expected)
}
