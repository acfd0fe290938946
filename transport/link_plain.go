// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/sendlog/lib/netutil"
)

// PlainLink is a Link over an unencrypted TCP socket. It issues read(2)
// and write(2) on the socket descriptor directly, so an empty socket
// reports StatusWantRead instead of parking the goroutine in the runtime
// poller.
type PlainLink struct {
	conn *net.TCPConn
	raw  syscall.RawConn
}

var _ Link = (*PlainLink)(nil)

// NewPlainLink wraps conn. The link owns conn from here on.
func NewPlainLink(conn *net.TCPConn) (*PlainLink, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("plain link: %w", err)
	}
	return &PlainLink{conn: conn, raw: raw}, nil
}

// Handshake is a no-op for plain TCP.
func (link *PlainLink) Handshake(context.Context) (Status, error) {
	return StatusOK, nil
}

// Read performs one non-blocking read.
func (link *PlainLink) Read(p []byte) (int, Status, error) {
	if len(p) == 0 {
		return 0, StatusOK, nil
	}
	var count int
	var readErr error
	if err := link.raw.Read(func(fd uintptr) bool {
		count, readErr = unix.Read(int(fd), p)
		return true
	}); err != nil {
		return 0, classifyError(err), err
	}
	if readErr != nil {
		return 0, readStatus(readErr), readErr
	}
	if count == 0 {
		return 0, StatusClosed, io.EOF
	}
	return count, StatusOK, nil
}

// Write performs one non-blocking write.
func (link *PlainLink) Write(p []byte) (int, Status, error) {
	if len(p) == 0 {
		return 0, StatusOK, nil
	}
	var count int
	var writeErr error
	if err := link.raw.Write(func(fd uintptr) bool {
		count, writeErr = unix.Write(int(fd), p)
		return true
	}); err != nil {
		return 0, classifyError(err), err
	}
	if writeErr != nil {
		if netutil.IsWouldBlock(writeErr) {
			return 0, StatusWantWrite, nil
		}
		return 0, classifyError(writeErr), writeErr
	}
	return count, StatusOK, nil
}

// Wait polls the socket descriptor.
func (link *PlainLink) Wait(interest Interest, timeout time.Duration) (Interest, error) {
	return pollDescriptor(link.raw, interest, timeout)
}

// Close closes the socket.
func (link *PlainLink) Close() error {
	return link.conn.Close()
}

func readStatus(err error) Status {
	if netutil.IsWouldBlock(err) {
		return StatusWantRead
	}
	return classifyError(err)
}

// classifyError maps a failed operation to Closed or Fatal.
func classifyError(err error) Status {
	if netutil.IsExpectedCloseError(err) {
		return StatusClosed
	}
	return StatusFatal
}

// pollDescriptor waits on the descriptor behind raw with poll(2).
func pollDescriptor(raw syscall.RawConn, interest Interest, timeout time.Duration) (Interest, error) {
	var events int16
	if interest.Has(InterestRead) {
		events |= unix.POLLIN
	}
	if interest.Has(InterestWrite) {
		events |= unix.POLLOUT
	}
	if events == 0 {
		return 0, nil
	}

	var ready Interest
	var pollErr error
	controlErr := raw.Control(func(fd uintptr) {
		descriptors := []unix.PollFd{{Fd: int32(fd), Events: events}}
		deadline := time.Now().Add(timeout) //nolint:realclock poll(2) timeouts are wall-clock
		for {
			remaining := time.Until(deadline) //nolint:realclock
			if remaining < 0 {
				remaining = 0
			}
			count, err := unix.Poll(descriptors, int((remaining+time.Millisecond-1)/time.Millisecond))
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if err != nil {
				pollErr = fmt.Errorf("poll: %w", err)
				return
			}
			if count == 0 {
				return
			}
			revents := descriptors[0].Revents
			// Errors and hangups wake both directions so the next
			// operation observes the failure.
			failed := revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0
			if interest.Has(InterestRead) && (revents&unix.POLLIN != 0 || failed) {
				ready |= InterestRead
			}
			if interest.Has(InterestWrite) && (revents&unix.POLLOUT != 0 || failed) {
				ready |= InterestWrite
			}
			return
		}
	})
	if controlErr != nil {
		return 0, controlErr
	}
	return ready, pollErr
}
