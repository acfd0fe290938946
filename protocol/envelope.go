// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"time"
)

// Kind is the wire discriminator of an envelope. These values are
// protocol constants; changing them breaks compatibility with servers.
type Kind uint8

// Client-to-server kinds.
const (
	KindClientHello Kind = 0x01
	KindRestart     Kind = 0x02
	KindAccept      Kind = 0x03
	KindReject      Kind = 0x04
	KindExit        Kind = 0x05
	KindIOBuffer    Kind = 0x06
	KindWindowSize  Kind = 0x07
	KindSuspend     Kind = 0x08
)

// Server-to-client kinds.
const (
	KindServerHello Kind = 0x41
	KindCommitPoint Kind = 0x42
	KindLogID       Kind = 0x43
	KindError       Kind = 0x44
	KindAbort       Kind = 0x45
)

// Direction identifies which side of the connection sends an envelope.
type Direction uint8

const (
	// ClientToServer is the direction of the log sender's envelopes.
	ClientToServer Direction = iota + 1

	// ServerToClient is the direction of the log server's replies.
	ServerToClient
)

func (direction Direction) String() string {
	switch direction {
	case ClientToServer:
		return "client-to-server"
	case ServerToClient:
		return "server-to-client"
	default:
		return fmt.Sprintf("direction(%d)", direction)
	}
}

// Direction returns the direction an envelope of this kind travels, or
// zero for an unknown kind.
func (kind Kind) Direction() Direction {
	switch {
	case kind >= KindClientHello && kind <= KindSuspend:
		return ClientToServer
	case kind >= KindServerHello && kind <= KindAbort:
		return ServerToClient
	default:
		return 0
	}
}

var kindNames = map[Kind]string{
	KindClientHello: "client_hello",
	KindRestart:     "restart",
	KindAccept:      "accept",
	KindReject:      "reject",
	KindExit:        "exit",
	KindIOBuffer:    "io_buffer",
	KindWindowSize:  "window_size",
	KindSuspend:     "suspend",
	KindServerHello: "server_hello",
	KindCommitPoint: "commit_point",
	KindLogID:       "log_id",
	KindError:       "error",
	KindAbort:       "abort",
}

func (kind Kind) String() string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return fmt.Sprintf("kind(0x%02x)", uint8(kind))
}

// Envelope is one protocol message. The concrete type determines the
// wire kind.
type Envelope interface {
	Kind() Kind
}

// Stream identifies the recorded I/O stream an IOBuffer belongs to.
type Stream uint8

const (
	StreamStdin  Stream = 1
	StreamStdout Stream = 2
	StreamStderr Stream = 3
	StreamTTYIn  Stream = 4
	StreamTTYOut Stream = 5
)

func (stream Stream) String() string {
	switch stream {
	case StreamStdin:
		return "stdin"
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	case StreamTTYIn:
		return "ttyin"
	case StreamTTYOut:
		return "ttyout"
	default:
		return fmt.Sprintf("stream(%d)", stream)
	}
}

// ClientHello opens the conversation. ClientID is a free-form identifier
// of the sending program and version.
type ClientHello struct {
	ClientID string `cbor:"1,keyasint"`
}

// Restart asks the server to continue an existing log from ResumePoint.
// LogID is the identifier the server assigned when the log was first
// accepted; it is passed through unchanged.
type Restart struct {
	LogID       string        `cbor:"1,keyasint"`
	ResumePoint time.Duration `cbor:"2,keyasint"`

	// RecordingDigest is the BLAKE3 digest of the timing stream, so a
	// server can refuse to resume onto a different recording.
	RecordingDigest []byte `cbor:"3,keyasint,omitempty"`
}

// Accept announces a new session log and its metadata.
type Accept struct {
	// SubmitTime is the session start as Unix seconds.
	SubmitTime int64        `cbor:"1,keyasint"`
	Info       []InfoRecord `cbor:"2,keyasint"`

	// ExpectIOBuffers is false for accept-only submissions that carry
	// no terminal I/O.
	ExpectIOBuffers bool `cbor:"3,keyasint"`
}

// Reject reports a session that was refused, with the reason given.
type Reject struct {
	SubmitTime int64        `cbor:"1,keyasint"`
	Info       []InfoRecord `cbor:"2,keyasint"`
	Reason     string       `cbor:"3,keyasint"`
}

// Exit reports how the recorded command finished. RunTime is the elapsed
// time of the last record sent.
type Exit struct {
	RunTime    time.Duration `cbor:"1,keyasint"`
	ExitValue  int32         `cbor:"2,keyasint"`
	Signal     string        `cbor:"3,keyasint,omitempty"`
	DumpedCore bool          `cbor:"4,keyasint,omitempty"`
	Error      string        `cbor:"5,keyasint,omitempty"`
}

// IOBuffer carries a chunk of recorded terminal or pipe data.
type IOBuffer struct {
	Stream Stream        `cbor:"1,keyasint"`
	Delay  time.Duration `cbor:"2,keyasint"`
	Data   []byte        `cbor:"3,keyasint"`
}

// WindowSize records a terminal resize.
type WindowSize struct {
	Delay   time.Duration `cbor:"1,keyasint"`
	Rows    int32         `cbor:"2,keyasint"`
	Columns int32         `cbor:"3,keyasint"`
}

// Suspend records the command being stopped or continued by a signal.
type Suspend struct {
	Delay  time.Duration `cbor:"1,keyasint"`
	Signal string        `cbor:"2,keyasint"`
}

// ServerHello is the server's reply to ClientHello. A non-empty Redirect
// names another server the client should use instead.
type ServerHello struct {
	ServerID string   `cbor:"1,keyasint"`
	Redirect string   `cbor:"2,keyasint,omitempty"`
	Servers  []string `cbor:"3,keyasint,omitempty"`
}

// CommitPoint acknowledges that the server has durably stored the log up
// to Elapsed.
type CommitPoint struct {
	Elapsed time.Duration `cbor:"1,keyasint"`
}

// LogID carries the identifier the server assigned to an accepted log.
// It is the value a later Restart must present.
type LogID struct {
	ID string `cbor:"1,keyasint"`
}

// Error reports a server-side failure. The server closes the connection
// after sending it.
type Error struct {
	Message string `cbor:"1,keyasint"`
}

// Abort asks the client to stop the session immediately.
type Abort struct {
	Message string `cbor:"1,keyasint"`
}

func (ClientHello) Kind() Kind { return KindClientHello }
func (Restart) Kind() Kind     { return KindRestart }
func (Accept) Kind() Kind      { return KindAccept }
func (Reject) Kind() Kind      { return KindReject }
func (Exit) Kind() Kind        { return KindExit }
func (IOBuffer) Kind() Kind    { return KindIOBuffer }
func (WindowSize) Kind() Kind  { return KindWindowSize }
func (Suspend) Kind() Kind     { return KindSuspend }
func (ServerHello) Kind() Kind { return KindServerHello }
func (CommitPoint) Kind() Kind { return KindCommitPoint }
func (LogID) Kind() Kind       { return KindLogID }
func (Error) Kind() Kind       { return KindError }
func (Abort) Kind() Kind       { return KindAbort }

// newEnvelope returns a pointer to a zero envelope of the given kind for
// decoding, or nil for an unknown kind.
func newEnvelope(kind Kind) any {
	switch kind {
	case KindClientHello:
		return &ClientHello{}
	case KindRestart:
		return &Restart{}
	case KindAccept:
		return &Accept{}
	case KindReject:
		return &Reject{}
	case KindExit:
		return &Exit{}
	case KindIOBuffer:
		return &IOBuffer{}
	case KindWindowSize:
		return &WindowSize{}
	case KindSuspend:
		return &Suspend{}
	case KindServerHello:
		return &ServerHello{}
	case KindCommitPoint:
		return &CommitPoint{}
	case KindLogID:
		return &LogID{}
	case KindError:
		return &Error{}
	case KindAbort:
		return &Abort{}
	default:
		return nil
	}
}
