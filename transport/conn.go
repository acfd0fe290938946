// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/sendlog/lib/clock"
)

// maxWaitSlice bounds one Link.Wait so context cancellation and the
// progress deadline are noticed promptly.
const maxWaitSlice = 100 * time.Millisecond

// ResultKind classifies the outcome of TrySend or TryReceive.
type ResultKind uint8

const (
	// Progress means N > 0 bytes moved.
	Progress ResultKind = iota

	// WouldBlock means nothing moved; wait and retry with the same
	// bytes.
	WouldBlock

	// Closed means the peer closed the connection.
	Closed

	// Fatal means the connection is unusable; Err says why.
	Fatal
)

func (kind ResultKind) String() string {
	switch kind {
	case Progress:
		return "progress"
	case WouldBlock:
		return "would-block"
	case Closed:
		return "closed"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("result(%d)", kind)
	}
}

// Result is the outcome of one non-blocking transfer.
type Result struct {
	Kind ResultKind
	N    int
	Err  error
}

// Redirect records an operation parked on the opposite readiness.
type Redirect uint8

const (
	// RedirectIdle means every operation waits for its own readiness.
	RedirectIdle Redirect = iota

	// RedirectReadForWrite means a write needs the socket readable.
	RedirectReadForWrite

	// RedirectWriteForRead means a read needs the socket writable.
	RedirectWriteForRead
)

func (redirect Redirect) String() string {
	switch redirect {
	case RedirectIdle:
		return "idle"
	case RedirectReadForWrite:
		return "write-waiting-for-read"
	case RedirectWriteForRead:
		return "read-waiting-for-write"
	default:
		return fmt.Sprintf("redirect(%d)", redirect)
	}
}

// Handler is the byte-level view of a session that Pump drives.
type Handler interface {
	// PendingOutput returns the unsent bytes of the oldest queued
	// frame, or nil when nothing is queued.
	PendingOutput() []byte

	// Sent reports that the first n bytes of PendingOutput were
	// written.
	Sent(n int) error

	// InputSpace returns free space to read inbound bytes into.
	InputSpace() ([]byte, error)

	// Received reports that n bytes were read into InputSpace.
	Received(n int) error

	// PeerClosed reports that the server closed the connection.
	PeerClosed() error
}

// Options configures a Conn.
type Options struct {
	// ConnectTimeout bounds the TCP dial. Zero means only the context
	// applies.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the TLS handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single blocking TLS write.
	WriteTimeout time.Duration

	// Clock measures progress deadlines. Nil means the real clock.
	Clock clock.Clock
}

// Conn drives a Link without blocking except in Pump and Handshake. It
// is used by a single goroutine.
type Conn struct {
	link     Link
	clock    clock.Clock
	redirect Redirect

	timeout      time.Duration
	lastProgress time.Time
}

// NewConn wraps link.
func NewConn(link Link, options Options) *Conn {
	wall := options.Clock
	if wall == nil {
		wall = clock.Real()
	}
	return &Conn{link: link, clock: wall, lastProgress: wall.Now()}
}

// Link returns the underlying link.
func (c *Conn) Link() Link {
	return c.link
}

// Redirect returns the current redirect state.
func (c *Conn) Redirect() Redirect {
	return c.redirect
}

// SetTimeout sets how long the connection may go without progress. A
// changed timeout restarts the measurement. Zero disables the deadline.
func (c *Conn) SetTimeout(timeout time.Duration) {
	if timeout == c.timeout {
		return
	}
	c.timeout = timeout
	c.lastProgress = c.clock.Now()
}

// TrySend writes as much of p as the link accepts right now.
func (c *Conn) TrySend(p []byte) Result {
	count, status, err := c.link.Write(p)
	if c.redirect == RedirectReadForWrite && status != StatusWantRead {
		c.redirect = RedirectIdle
	}
	switch status {
	case StatusOK:
		if count == 0 {
			return Result{Kind: WouldBlock}
		}
		c.lastProgress = c.clock.Now()
		return Result{Kind: Progress, N: count}
	case StatusWantWrite:
		return Result{Kind: WouldBlock}
	case StatusWantRead:
		c.redirect = RedirectReadForWrite
		return Result{Kind: WouldBlock}
	case StatusClosed:
		return Result{Kind: Closed, N: count, Err: err}
	default:
		return Result{Kind: Fatal, N: count, Err: fmt.Errorf("send: %w", err)}
	}
}

// TryReceive reads whatever the link has available into p.
func (c *Conn) TryReceive(p []byte) Result {
	count, status, err := c.link.Read(p)
	if c.redirect == RedirectWriteForRead && status != StatusWantWrite {
		c.redirect = RedirectIdle
	}
	switch status {
	case StatusOK:
		if count == 0 {
			return Result{Kind: WouldBlock}
		}
		c.lastProgress = c.clock.Now()
		return Result{Kind: Progress, N: count}
	case StatusWantRead:
		return Result{Kind: WouldBlock}
	case StatusWantWrite:
		c.redirect = RedirectWriteForRead
		return Result{Kind: WouldBlock}
	case StatusClosed:
		return Result{Kind: Closed, Err: err}
	default:
		return Result{Kind: Fatal, Err: fmt.Errorf("receive: %w", err)}
	}
}

// Handshake completes link setup, waiting for readiness as the link asks.
func (c *Conn) Handshake(ctx context.Context) error {
	for {
		status, err := c.link.Handshake(ctx)
		switch status {
		case StatusOK:
			c.lastProgress = c.clock.Now()
			return nil
		case StatusWantRead, StatusWantWrite:
			interest := InterestRead
			if status == StatusWantWrite {
				interest = InterestWrite
			}
			if _, err := c.wait(ctx, interest); err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
		case StatusClosed:
			return fmt.Errorf("handshake: %w: %w", ErrClosed, err)
		default:
			return fmt.Errorf("handshake: %w", err)
		}
	}
}

// Pump waits until the link is ready for something the handler needs and
// performs the matching transfers once. It returns nil after any dispatch,
// even one that moved no bytes, so the caller can refill its queue. The
// returned error is fatal for the session.
func (c *Conn) Pump(ctx context.Context, handler Handler) error {
	ready, err := c.wait(ctx, c.interest(handler))
	if err != nil {
		return err
	}

	switch c.redirect {
	case RedirectReadForWrite:
		if ready.Has(InterestRead) {
			return c.send(handler)
		}
		return nil
	case RedirectWriteForRead:
		if ready.Has(InterestWrite) {
			return c.receive(handler)
		}
		return nil
	}

	if ready.Has(InterestWrite) {
		if err := c.send(handler); err != nil {
			return err
		}
	}
	if ready.Has(InterestRead) {
		if err := c.receive(handler); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the link.
func (c *Conn) Close() error {
	return c.link.Close()
}

// interest picks the readiness Pump waits for. A parked operation waits
// only for the readiness it asked for.
func (c *Conn) interest(handler Handler) Interest {
	switch c.redirect {
	case RedirectReadForWrite:
		return InterestRead
	case RedirectWriteForRead:
		return InterestWrite
	}
	interest := InterestRead
	if len(handler.PendingOutput()) > 0 {
		interest |= InterestWrite
	}
	return interest
}

func (c *Conn) send(handler Handler) error {
	pending := handler.PendingOutput()
	if len(pending) == 0 {
		c.redirect = RedirectIdle
		return nil
	}
	result := c.TrySend(pending)
	switch result.Kind {
	case Progress:
		return handler.Sent(result.N)
	case WouldBlock:
		return nil
	case Closed:
		return handler.PeerClosed()
	default:
		return result.Err
	}
}

func (c *Conn) receive(handler Handler) error {
	space, err := handler.InputSpace()
	if err != nil {
		return err
	}
	result := c.TryReceive(space)
	switch result.Kind {
	case Progress:
		return handler.Received(result.N)
	case WouldBlock:
		return nil
	case Closed:
		return handler.PeerClosed()
	default:
		return result.Err
	}
}

// wait blocks until interest is ready, checking the context and the
// progress deadline between bounded waits.
func (c *Conn) wait(ctx context.Context, interest Interest) (Interest, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		slice := maxWaitSlice
		if c.timeout > 0 {
			remaining := c.timeout - c.clock.Since(c.lastProgress)
			if remaining <= 0 {
				return 0, fmt.Errorf("%w: no progress for %v", ErrTimeout, c.timeout)
			}
			slice = min(slice, remaining)
		}
		ready, err := c.link.Wait(interest, slice)
		if err != nil {
			return 0, fmt.Errorf("wait: %w", err)
		}
		if ready != 0 {
			return ready, nil
		}
	}
}
