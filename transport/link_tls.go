// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"
)

// tlsReadGrace is how long a TLS read may wait for the remainder of a
// record once poll has reported the socket readable.
const tlsReadGrace = time.Millisecond

// TLSLink is a Link over crypto/tls.
//
// crypto/tls has no non-blocking mode, so the link maps it onto the Link
// contract with deadlines. The handshake runs to completion under the
// handshake timeout. Reads run with a deadline just ahead of now and
// report StatusWantRead when it passes; read timeouts do not poison a
// tls.Conn. Writes block until the whole buffer is written or the write
// timeout passes, because a write timeout does poison it.
//
// The context given to Handshake stays bound to the link until Close:
// cancelling it interrupts a blocked handshake or write.
type TLSLink struct {
	conn             *tls.Conn
	raw              syscall.RawConn
	handshakeTimeout time.Duration
	writeTimeout     time.Duration

	ctx         context.Context
	stopCancels func() bool

	// buffered is set when the last read filled the caller's buffer, so
	// decrypted bytes may be waiting inside tls.Conn where poll cannot
	// see them.
	buffered bool
}

var _ Link = (*TLSLink)(nil)

// NewTLSLink wraps conn in a TLS client using config. The link owns conn
// from here on. A zero timeout means no limit.
func NewTLSLink(conn *net.TCPConn, config *tls.Config, handshakeTimeout, writeTimeout time.Duration) (*TLSLink, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("tls link: %w", err)
	}
	return &TLSLink{
		conn:             tls.Client(conn, config),
		raw:              raw,
		handshakeTimeout: handshakeTimeout,
		writeTimeout:     writeTimeout,
	}, nil
}

// Handshake performs the full TLS handshake. It either completes
// (StatusOK) or fails (StatusClosed or StatusFatal); it never asks the
// caller to wait.
func (link *TLSLink) Handshake(ctx context.Context) (Status, error) {
	link.bind(ctx)
	handshakeContext := ctx
	if link.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeContext, cancel = context.WithTimeout(ctx, link.handshakeTimeout)
		defer cancel()
	}
	if err := link.conn.HandshakeContext(handshakeContext); err != nil {
		if cancelled := link.cancelled(); cancelled != nil {
			return StatusFatal, fmt.Errorf("handshake: %w", cancelled)
		}
		if isTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			return StatusFatal, fmt.Errorf("%w: handshake: %w", ErrTimeout, err)
		}
		if classifyError(err) == StatusClosed {
			return StatusClosed, fmt.Errorf("%w: handshake: %w", ErrClosed, err)
		}
		return StatusFatal, fmt.Errorf("%w: handshake: %w", ErrTLS, err)
	}
	return StatusOK, nil
}

// bind arranges for cancellation of ctx to expire every socket deadline,
// which unblocks whatever tls.Conn call is in progress.
func (link *TLSLink) bind(ctx context.Context) {
	if link.stopCancels != nil {
		return
	}
	link.ctx = ctx
	link.stopCancels = context.AfterFunc(ctx, func() {
		link.conn.SetDeadline(time.Unix(1, 0))
	})
}

// cancelled returns ErrCancelled once the bound context is done.
func (link *TLSLink) cancelled() error {
	if link.ctx == nil || link.ctx.Err() == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCancelled, link.ctx.Err())
}

// ConnectionState returns the negotiated TLS parameters.
func (link *TLSLink) ConnectionState() tls.ConnectionState {
	return link.conn.ConnectionState()
}

// Read returns decrypted bytes already available, reading further records
// while they arrive without waiting.
func (link *TLSLink) Read(p []byte) (int, Status, error) {
	if len(p) == 0 {
		return 0, StatusOK, nil
	}
	link.buffered = false
	total := 0
	for total < len(p) {
		if err := link.conn.SetReadDeadline(time.Now().Add(tlsReadGrace)); err != nil { //nolint:realclock socket deadline
			return total, StatusFatal, fmt.Errorf("%w: %w", ErrTLS, err)
		}
		count, err := link.conn.Read(p[total:])
		total += count
		if err == nil {
			continue
		}
		if isTimeout(err) {
			if total > 0 {
				return total, StatusOK, nil
			}
			return 0, StatusWantRead, nil
		}
		if total > 0 {
			// Deliver what arrived; the error repeats on the next read.
			return total, StatusOK, nil
		}
		if classifyError(err) == StatusClosed {
			return 0, StatusClosed, err
		}
		return 0, StatusFatal, fmt.Errorf("%w: %w", ErrTLS, err)
	}
	link.buffered = true
	return total, StatusOK, nil
}

// Write writes all of p or fails.
func (link *TLSLink) Write(p []byte) (int, Status, error) {
	if len(p) == 0 {
		return 0, StatusOK, nil
	}
	var deadline time.Time
	if link.writeTimeout > 0 {
		deadline = time.Now().Add(link.writeTimeout) //nolint:realclock socket deadline
	}
	if err := link.conn.SetWriteDeadline(deadline); err != nil {
		return 0, StatusFatal, fmt.Errorf("%w: %w", ErrTLS, err)
	}
	// Checked after the deadline is set: a cancellation from here on
	// expires the deadline again.
	if cancelled := link.cancelled(); cancelled != nil {
		return 0, StatusFatal, cancelled
	}
	count, err := link.conn.Write(p)
	if err != nil {
		if cancelled := link.cancelled(); cancelled != nil {
			return count, StatusFatal, fmt.Errorf("write: %w", cancelled)
		}
		if isTimeout(err) {
			return count, StatusFatal, fmt.Errorf("%w: write: %w", ErrTimeout, err)
		}
		if classifyError(err) == StatusClosed {
			return count, StatusClosed, err
		}
		return count, StatusFatal, fmt.Errorf("%w: %w", ErrTLS, err)
	}
	return count, StatusOK, nil
}

// Wait reports write readiness immediately, since Write blocks on its
// own, and read readiness immediately when decrypted data may be
// buffered. A request for both still checks the socket for input, so
// server messages are read while output is queued. Otherwise it polls
// the socket.
func (link *TLSLink) Wait(interest Interest, timeout time.Duration) (Interest, error) {
	var ready Interest
	if interest.Has(InterestRead) && link.buffered {
		ready |= InterestRead
	}
	if interest.Has(InterestWrite) {
		ready |= InterestWrite
		if interest.Has(InterestRead) && !ready.Has(InterestRead) {
			readable, err := pollDescriptor(link.raw, InterestRead, 0)
			if err != nil {
				return 0, err
			}
			ready |= readable
		}
	}
	if ready != 0 {
		return ready, nil
	}
	return pollDescriptor(link.raw, interest, timeout)
}

// Close sends close_notify, bounded by the write timeout, and closes the
// socket.
func (link *TLSLink) Close() error {
	if link.stopCancels != nil {
		link.stopCancels()
	}
	if link.writeTimeout > 0 {
		link.conn.SetWriteDeadline(time.Now().Add(link.writeTimeout)) //nolint:realclock socket deadline
	}
	return link.conn.Close()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
