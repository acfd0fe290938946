// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bureau-foundation/sendlog/lib/buffer"
)

func sampleEnvelopes() []Envelope {
	info := []InfoRecord{
		StringInfo("submituser", "alice"),
		NumberInfo("lines", 24),
		StringsInfo("runargv", []string{"/bin/ls", "-l"}),
	}
	return []Envelope{
		ClientHello{ClientID: "sendlog 0.1.0"},
		Restart{LogID: "host/00/00/01", ResumePoint: 100 * time.Millisecond, RecordingDigest: []byte{1, 2, 3}},
		Accept{SubmitTime: 1760000000, Info: info, ExpectIOBuffers: true},
		Reject{SubmitTime: 1760000000, Info: info, Reason: "policy"},
		Exit{RunTime: 150 * time.Millisecond, ExitValue: 1, Signal: "TERM", DumpedCore: true},
		IOBuffer{Stream: StreamTTYOut, Delay: 50 * time.Millisecond, Data: []byte(" world")},
		WindowSize{Delay: 100 * time.Millisecond, Rows: 24, Columns: 80},
		Suspend{Delay: time.Second, Signal: "TSTP"},
		ServerHello{ServerID: "logsrvd", Servers: []string{"a:30344"}},
		CommitPoint{Elapsed: 150 * time.Millisecond},
		LogID{ID: "host/00/00/01"},
		Error{Message: "disk full"},
		Abort{Message: "shutting down"},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()
	pool := buffer.NewPool()
	for _, envelope := range sampleEnvelopes() {
		t.Run(envelope.Kind().String(), func(t *testing.T) {
			frame, err := EncodeFrame(pool, envelope)
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}
			defer pool.Release(frame)

			data := frame.Unread()
			declared := binary.BigEndian.Uint32(data[:HeaderLength])
			if int(declared) != len(data)-HeaderLength {
				t.Fatalf("length prefix %d, payload %d", declared, len(data)-HeaderLength)
			}

			decoded, consumed, err := TryDecode(data, envelope.Kind().Direction())
			if err != nil {
				t.Fatalf("TryDecode: %v", err)
			}
			if consumed != len(data) {
				t.Errorf("consumed: got %d, want %d", consumed, len(data))
			}
			if !reflect.DeepEqual(decoded, envelope) {
				t.Errorf("decoded: got %#v, want %#v", decoded, envelope)
			}
		})
	}
}

func TestTryDecodeEveryPartialPrefix(t *testing.T) {
	t.Parallel()
	pool := buffer.NewPool()
	envelope := IOBuffer{Stream: StreamTTYOut, Delay: 0, Data: []byte("hello")}
	frame, err := EncodeFrame(pool, envelope)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	data := frame.Unread()

	for split := 0; split < len(data); split++ {
		_, _, err := TryDecode(data[:split], ClientToServer)
		if !errors.Is(err, ErrNeedMoreData) {
			t.Fatalf("prefix %d of %d: got %v, want ErrNeedMoreData", split, len(data), err)
		}
	}

	// Feed the frame through an accumulating buffer in two pieces at
	// every split point.
	for split := 0; split <= len(data); split++ {
		accumulator := &buffer.Buffer{}
		if err := accumulator.Append(data[:split]); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if split < len(data) {
			if _, _, err := TryDecode(accumulator.Unread(), ClientToServer); !errors.Is(err, ErrNeedMoreData) {
				t.Fatalf("split %d: got %v before remainder", split, err)
			}
		}
		if err := accumulator.Append(data[split:]); err != nil {
			t.Fatalf("Append: %v", err)
		}
		decoded, consumed, err := TryDecode(accumulator.Unread(), ClientToServer)
		if err != nil {
			t.Fatalf("split %d: TryDecode: %v", split, err)
		}
		if consumed != len(data) || !reflect.DeepEqual(decoded, envelope) {
			t.Fatalf("split %d: got %#v (%d bytes)", split, decoded, consumed)
		}
	}
}

func TestTryDecodeMultipleFrames(t *testing.T) {
	t.Parallel()
	var stream bytes.Buffer
	sent := []Envelope{
		ServerHello{ServerID: "server"},
		LogID{ID: "abc"},
		CommitPoint{Elapsed: time.Second},
	}
	for _, envelope := range sent {
		if err := WriteFrame(&stream, envelope); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	accumulator := &buffer.Buffer{}
	if err := accumulator.Append(stream.Bytes()); err != nil {
		t.Fatalf("Append: %v", err)
	}
	var received []Envelope
	for {
		envelope, consumed, err := TryDecode(accumulator.Unread(), ServerToClient)
		if errors.Is(err, ErrNeedMoreData) {
			break
		}
		if err != nil {
			t.Fatalf("TryDecode: %v", err)
		}
		accumulator.Consume(consumed)
		received = append(received, envelope)
	}
	accumulator.Compact()

	if !reflect.DeepEqual(received, sent) {
		t.Errorf("received %#v, want %#v", received, sent)
	}
	if accumulator.Len() != 0 {
		t.Errorf("leftover bytes: %d", accumulator.Len())
	}
}

func TestTryDecodeOversizeDeclaredLength(t *testing.T) {
	t.Parallel()
	for _, declared := range []uint32{MaxPayloadLength + 1, 1 << 31, 0xffffffff} {
		header := make([]byte, HeaderLength)
		binary.BigEndian.PutUint32(header, declared)
		if _, _, err := TryDecode(header, ServerToClient); !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("declared %d: got %v, want ErrPayloadTooLarge", declared, err)
		}
		if _, err := FrameLength(header); !errors.Is(err, ErrPayloadTooLarge) {
			t.Errorf("FrameLength(%d): got %v, want ErrPayloadTooLarge", declared, err)
		}
	}

	// Exactly at the limit is a legal declaration still waiting for data.
	header := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(header, MaxPayloadLength)
	if _, _, err := TryDecode(header, ServerToClient); !errors.Is(err, ErrNeedMoreData) {
		t.Errorf("declared at limit: got %v, want ErrNeedMoreData", err)
	}
}

func TestEncodeFrameRejectsOversizePayload(t *testing.T) {
	t.Parallel()
	pool := buffer.NewPool()
	envelope := IOBuffer{Stream: StreamStdout, Data: make([]byte, MaxPayloadLength)}
	if _, err := EncodeFrame(pool, envelope); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("EncodeFrame: got %v, want ErrPayloadTooLarge", err)
	}
	if err := WriteFrame(&bytes.Buffer{}, envelope); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("WriteFrame: got %v, want ErrPayloadTooLarge", err)
	}
}

func TestDecodeRejectsWrongDirection(t *testing.T) {
	t.Parallel()
	pool := buffer.NewPool()
	frame, err := EncodeFrame(pool, Accept{SubmitTime: 1})
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, _, err := TryDecode(frame.Unread(), ServerToClient); !errors.Is(err, ErrUnexpectedDirection) {
		t.Fatalf("TryDecode: got %v, want ErrUnexpectedDirection", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "not cbor", payload: []byte{0xff, 0xff}},
		{name: "unknown kind", payload: []byte{0xa2, 0x01, 0x18, 0x99, 0x02, 0x41, 0xa0}},
		{name: "missing body", payload: []byte{0xa1, 0x01, 0x18, 0x42}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodePayload(test.payload, ServerToClient); !errors.Is(err, ErrDecode) {
				t.Errorf("DecodePayload: got %v, want ErrDecode", err)
			}
		})
	}
}

func TestReadFrameOversize(t *testing.T) {
	t.Parallel()
	header := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(header, MaxPayloadLength+1)
	if _, err := ReadFrame(bytes.NewReader(header), ServerToClient); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("ReadFrame: got %v, want ErrPayloadTooLarge", err)
	}
}
