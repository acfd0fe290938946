// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bureau-foundation/sendlog/lib/buffer"
	"github.com/bureau-foundation/sendlog/protocol"
	"github.com/bureau-foundation/sendlog/recording"
	"github.com/bureau-foundation/sendlog/transport"
)

// maxQueuedFrames bounds the outbound queue: one frame being written and
// one ready behind it.
const maxQueuedFrames = 2

// Plan says what a session should tell the server after the hello.
type Plan struct {
	// ClientID is sent in ClientHello.
	ClientID string

	// Restart continues the log SessionID from ResumePoint instead of
	// starting a new one.
	Restart     bool
	SessionID   string
	ResumePoint time.Duration

	// RecordingDigest is sent with Restart.
	RecordingDigest []byte

	// RejectReason, when set, sends Reject instead of Accept and no
	// I/O.
	RejectReason string

	// AcceptOnly sends Accept and Exit with no I/O.
	AcceptOnly bool

	// StopAfter, when positive, ends the stream once elapsed reaches
	// it, without sending Exit. It must land on a record boundary.
	StopAfter time.Duration
}

// ChannelReader reads and skips recorded channel data.
// *recording.ChannelSet implements it.
type ChannelReader interface {
	ReadChannel(channel recording.Channel, count int64) ([]byte, error)
	recording.ChannelSeeker
}

// Input is the recording an engine streams.
type Input struct {
	Timing   recording.RecordSource
	Channels ChannelReader
	Metadata recording.Metadata
}

// InputFrom adapts an open recording.
func InputFrom(opened *recording.Recording) Input {
	return Input{Timing: opened.Timing, Channels: opened.Channels, Metadata: opened.Metadata}
}

// queuedFrame is one encoded envelope waiting to be written.
type queuedFrame struct {
	kind  protocol.Kind
	frame *buffer.Buffer
}

// Engine is the protocol state machine for one session. It is driven by
// a single goroutine: Start once, then alternate Fill and the
// transport.Handler callbacks until State is terminal.
type Engine struct {
	input    Input
	plan     Plan
	pool     *buffer.Pool
	logger   *slog.Logger
	observer Observer

	state      State
	checkpoint Checkpoint
	outbound   []queuedFrame
	inbound    *buffer.Buffer

	sentRecords bool
	stopped     bool

	// awaitingClose is set once a rejection is written. Nothing is left
	// to commit, so only the server closing the connection finishes it.
	awaitingClose bool
	serverID    string
	logID       string
	failure     *Failure

	// onTransition, when set, is called after every state change.
	onTransition func(from, to State)
}

var _ transport.Handler = (*Engine)(nil)

// NewEngine returns an engine in StateAwaitingHello with nothing queued.
// A nil observer discards events.
func NewEngine(input Input, plan Plan, pool *buffer.Pool, logger *slog.Logger, observer Observer) *Engine {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{
		input:    input,
		plan:     plan,
		pool:     pool,
		logger:   logger,
		observer: observer,
		state:    StateAwaitingHello,
	}
}

// State returns the current state.
func (e *Engine) State() State {
	return e.state
}

// Checkpoint returns the elapsed and committed times.
func (e *Engine) Checkpoint() Checkpoint {
	return e.checkpoint
}

// Err returns the *Failure of an engine in StateError, or nil.
func (e *Engine) Err() error {
	if e.failure == nil {
		return nil
	}
	return e.failure
}

// Stopped reports whether the stream ended at the stop-after point.
func (e *Engine) Stopped() bool {
	return e.stopped
}

// ServerID returns the id from ServerHello.
func (e *Engine) ServerID() string {
	return e.serverID
}

// LogID returns the log id the server assigned, if it sent one.
func (e *Engine) LogID() string {
	return e.logID
}

// Start queues ClientHello and allocates the inbound buffer.
func (e *Engine) Start() error {
	inbound, err := e.pool.Acquire(buffer.DefaultSize)
	if err != nil {
		return e.Fail(err)
	}
	e.inbound = inbound
	return e.enqueue(protocol.ClientHello{ClientID: e.plan.ClientID})
}

// Fill pulls timing records into the outbound queue while streaming. A
// record is pulled only when the queue is empty, or its single frame has
// started draining, so at most two frames are ever queued.
func (e *Engine) Fill() error {
	for e.state == StateStreaming && e.canPull() {
		if err := e.pull(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) canPull() bool {
	switch len(e.outbound) {
	case 0:
		return true
	case 1:
		return e.outbound[0].frame.Offset() > 0
	default:
		return false
	}
}

// pull reads one record and queues its envelope, or queues Exit at the
// end of the recording.
func (e *Engine) pull() error {
	if e.plan.StopAfter > 0 && e.checkpoint.Elapsed == e.plan.StopAfter {
		e.stopped = true
		e.logger.Info("reached stop point", "elapsed", e.checkpoint.Elapsed)
		e.enterClosing()
		return nil
	}

	record, err := e.input.Timing.Next()
	if errors.Is(err, io.EOF) {
		e.setState(StateSendingExit)
		return e.enqueue(e.exitEnvelope())
	}
	if err != nil {
		return e.Fail(err)
	}

	next := e.checkpoint.Elapsed + record.Delay
	if e.plan.StopAfter > 0 && next > e.plan.StopAfter {
		return e.Fail(fmt.Errorf("%w: %v falls inside the record ending at %v",
			ErrStopPointNotOnBoundary, e.plan.StopAfter, next))
	}

	envelope, err := e.recordEnvelope(record)
	if err != nil {
		return e.Fail(err)
	}
	if err := e.enqueue(envelope); err != nil {
		return err
	}
	e.checkpoint.Elapsed = next
	e.sentRecords = true
	return nil
}

func (e *Engine) recordEnvelope(record recording.TimingRecord) (protocol.Envelope, error) {
	switch record.Channel {
	case recording.ChannelWindowSize:
		return protocol.WindowSize{Delay: record.Delay, Rows: record.Rows, Columns: record.Columns}, nil
	case recording.ChannelSuspend:
		return protocol.Suspend{Delay: record.Delay, Signal: record.Signal}, nil
	}
	stream, ok := streams[record.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recording.ErrChannelUnavailable, record.Channel)
	}
	data, err := e.input.Channels.ReadChannel(record.Channel, record.ByteCount)
	if err != nil {
		return nil, err
	}
	return protocol.IOBuffer{Stream: stream, Delay: record.Delay, Data: data}, nil
}

var streams = map[recording.Channel]protocol.Stream{
	recording.ChannelStdin:  protocol.StreamStdin,
	recording.ChannelStdout: protocol.StreamStdout,
	recording.ChannelStderr: protocol.StreamStderr,
	recording.ChannelTTYIn:  protocol.StreamTTYIn,
	recording.ChannelTTYOut: protocol.StreamTTYOut,
}

func (e *Engine) exitEnvelope() protocol.Exit {
	metadata := e.input.Metadata
	return protocol.Exit{
		RunTime:    e.checkpoint.Elapsed,
		ExitValue:  metadata.ExitValue,
		Signal:     metadata.Signal,
		DumpedCore: metadata.DumpedCore,
	}
}

func (e *Engine) enqueue(envelope protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(e.pool, envelope)
	if err != nil {
		return e.Fail(err)
	}
	e.outbound = append(e.outbound, queuedFrame{kind: envelope.Kind(), frame: frame})
	return nil
}

// PendingOutput returns the unsent bytes of the oldest queued frame.
func (e *Engine) PendingOutput() []byte {
	if e.state.Terminal() || len(e.outbound) == 0 {
		return nil
	}
	return e.outbound[0].frame.Unread()
}

// Sent consumes n written bytes from the head frame. A fully written
// frame goes back to the pool, and an emptied queue advances the state.
func (e *Engine) Sent(n int) error {
	if len(e.outbound) == 0 {
		return nil
	}
	e.observer.BytesSent(n)
	head := e.outbound[0]
	head.frame.Consume(n)
	if !head.frame.Drained() {
		return nil
	}
	e.pool.Release(head.frame)
	e.outbound[0] = queuedFrame{}
	e.outbound = e.outbound[1:]
	e.observer.EnvelopeSent(head.kind)
	if len(e.outbound) == 0 {
		return e.drained()
	}
	return nil
}

// drained runs the transition for a state whose queued frames are all
// written.
func (e *Engine) drained() error {
	switch e.state {
	case StateSendingRestart:
		if err := recording.SeekTo(e.input.Timing, e.input.Channels, e.plan.ResumePoint); err != nil {
			return e.Fail(err)
		}
		e.checkpoint = Checkpoint{Elapsed: e.plan.ResumePoint, Committed: e.plan.ResumePoint}
		e.setState(StateStreaming)
	case StateSendingAccept:
		if e.plan.AcceptOnly {
			e.setState(StateSendingExit)
			return e.enqueue(e.exitEnvelope())
		}
		e.setState(StateStreaming)
	case StateSendingReject:
		e.awaitingClose = true
		e.enterClosing()
	case StateSendingExit:
		if e.sentRecords {
			e.enterClosing()
		} else {
			e.setState(StateFinished)
		}
	case StateClosing:
		e.maybeFinish()
	}
	return nil
}

// InputSpace returns free space at the end of the inbound buffer.
func (e *Engine) InputSpace() ([]byte, error) {
	if e.state.Terminal() {
		return nil, e.Err()
	}
	if e.inbound == nil {
		return nil, e.Fail(errors.New("engine not started"))
	}
	if len(e.inbound.Free()) == 0 {
		e.inbound.Compact()
	}
	if len(e.inbound.Free()) == 0 {
		if err := e.inbound.Grow(buffer.DefaultSize); err != nil {
			return nil, e.Fail(err)
		}
	}
	return e.inbound.Free(), nil
}

// Received decodes every complete frame in the inbound buffer and acts
// on each. A partial frame stays buffered, and the buffer grows if the
// frame's declared length needs more room.
func (e *Engine) Received(n int) error {
	e.inbound.Commit(n)
	for !e.state.Terminal() {
		envelope, consumed, err := protocol.TryDecode(e.inbound.Unread(), protocol.ServerToClient)
		if errors.Is(err, protocol.ErrNeedMoreData) {
			break
		}
		if err != nil {
			return e.Fail(err)
		}
		e.inbound.Consume(consumed)
		e.observer.EnvelopeReceived(envelope.Kind())
		if err := e.handle(envelope); err != nil {
			return err
		}
	}
	if e.state.Terminal() {
		return e.Err()
	}

	e.inbound.Compact()
	if total, err := protocol.FrameLength(e.inbound.Unread()); err == nil {
		if err := e.inbound.Grow(total - len(e.inbound.Unread())); err != nil {
			return e.Fail(err)
		}
	}
	return nil
}

func (e *Engine) handle(envelope protocol.Envelope) error {
	switch message := envelope.(type) {
	case protocol.ServerHello:
		return e.handleHello(message)
	case protocol.CommitPoint:
		return e.handleCommit(message)
	case protocol.LogID:
		if e.state == StateAwaitingHello {
			return e.Fail(fmt.Errorf("%w: log id before server hello", ErrUnexpectedEnvelope))
		}
		e.logID = message.ID
		e.logger.Info("server assigned log id", "log_id", message.ID)
		return nil
	case protocol.Error:
		return e.Fail(fmt.Errorf("%w: %s", ErrServerError, message.Message))
	case protocol.Abort:
		return e.Fail(fmt.Errorf("%w: %s", ErrServerAbort, message.Message))
	default:
		return e.Fail(fmt.Errorf("%w: %s in %s", ErrUnexpectedEnvelope, envelope.Kind(), e.state))
	}
}

func (e *Engine) handleHello(hello protocol.ServerHello) error {
	if e.state != StateAwaitingHello {
		return e.Fail(fmt.Errorf("%w: server hello in %s", ErrUnexpectedEnvelope, e.state))
	}
	if hello.ServerID == "" {
		return e.Fail(fmt.Errorf("%w: empty server id", ErrInvalidHello))
	}
	if hello.Redirect != "" {
		e.logger.Warn("server redirect not followed", "redirect", hello.Redirect, "servers", hello.Servers)
		return e.Fail(fmt.Errorf("%w: redirect to %s", ErrInvalidHello, hello.Redirect))
	}
	e.serverID = hello.ServerID
	e.logger.Debug("server hello", "server_id", hello.ServerID)

	metadata := e.input.Metadata
	switch {
	case e.plan.Restart:
		e.setState(StateSendingRestart)
		return e.enqueue(protocol.Restart{
			LogID:           e.plan.SessionID,
			ResumePoint:     e.plan.ResumePoint,
			RecordingDigest: e.plan.RecordingDigest,
		})
	case e.plan.RejectReason != "":
		e.setState(StateSendingReject)
		return e.enqueue(protocol.Reject{
			SubmitTime: metadata.SubmitTime.Unix(),
			Info:       metadata.Info,
			Reason:     e.plan.RejectReason,
		})
	default:
		e.setState(StateSendingAccept)
		return e.enqueue(protocol.Accept{
			SubmitTime:      metadata.SubmitTime.Unix(),
			Info:            metadata.Info,
			ExpectIOBuffers: !e.plan.AcceptOnly,
		})
	}
}

func (e *Engine) handleCommit(commit protocol.CommitPoint) error {
	if e.state == StateAwaitingHello {
		return e.Fail(fmt.Errorf("%w: commit point before server hello", ErrUnexpectedEnvelope))
	}
	if commit.Elapsed > e.checkpoint.Elapsed || commit.Elapsed < e.checkpoint.Committed {
		return e.Fail(fmt.Errorf("%w: commit %v with committed %v and elapsed %v",
			ErrCommitOutOfRange, commit.Elapsed, e.checkpoint.Committed, e.checkpoint.Elapsed))
	}
	e.checkpoint.Committed = commit.Elapsed
	e.observer.CommitLag(e.checkpoint.Pending())
	e.logger.Debug("commit point", "committed", commit.Elapsed, "elapsed", e.checkpoint.Elapsed)
	e.maybeFinish()
	return nil
}

// PeerClosed handles the server closing the connection. That is the
// normal end of a session in StateClosing once everything is committed;
// anywhere else it is premature.
func (e *Engine) PeerClosed() error {
	if e.state == StateClosing && e.checkpoint.Committed == e.checkpoint.Elapsed {
		e.setState(StateFinished)
		e.release()
		return nil
	}
	return e.Fail(fmt.Errorf("%w: server closed the connection", transport.ErrClosed))
}

func (e *Engine) enterClosing() {
	e.setState(StateClosing)
	e.maybeFinish()
}

// maybeFinish completes a closing session once the queue is written and
// the server has committed everything.
func (e *Engine) maybeFinish() {
	if e.state != StateClosing || len(e.outbound) > 0 || e.awaitingClose {
		return
	}
	if e.checkpoint.Committed == e.checkpoint.Elapsed {
		e.setState(StateFinished)
		e.release()
	}
}

// Fail moves the engine to StateError, releases its buffers, and returns
// the resulting *Failure. Failing a terminal engine returns its existing
// error unchanged. A timeout or close while closing with records
// outstanding is reported as ErrExitedPrematurely.
func (e *Engine) Fail(err error) error {
	if e.state.Terminal() {
		return e.Err()
	}
	if e.state == StateClosing && !e.awaitingClose && (errors.Is(err, transport.ErrTimeout) || errors.Is(err, transport.ErrClosed)) {
		err = fmt.Errorf("%w: %w", ErrExitedPrematurely, err)
	}
	e.failure = &Failure{State: e.state, Checkpoint: e.checkpoint, Err: err}
	e.logger.Error("session failed", "state", e.state.String(),
		"elapsed", e.checkpoint.Elapsed, "committed", e.checkpoint.Committed, "error", err)
	e.setState(StateError)
	e.release()
	return e.failure
}

func (e *Engine) setState(next State) {
	if next == e.state {
		return
	}
	e.logger.Debug("state transition", "from", e.state.String(), "to", next.String())
	previous := e.state
	e.state = next
	if e.onTransition != nil {
		e.onTransition(previous, next)
	}
}

// release returns every buffer to the pool.
func (e *Engine) release() {
	for index := range e.outbound {
		e.pool.Release(e.outbound[index].frame)
	}
	e.outbound = nil
	if e.inbound != nil {
		e.pool.Release(e.inbound)
		e.inbound = nil
	}
}
