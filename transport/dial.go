// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// TCPDialer opens TCP connections to a log server.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a TCP connection to be
	// established. Zero means only the context deadline applies.
	Timeout time.Duration

	// KeepAlive is the TCP keep-alive period. Zero uses the system
	// default; negative disables keep-alives.
	KeepAlive time.Duration
}

// DialContext opens a TCP connection to address (host:port) with Nagle's
// algorithm disabled, since frames are small and latency-sensitive.
func (d *TCPDialer) DialContext(ctx context.Context, address string) (*net.TCPConn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("dial %s: unexpected connection type %T", address, conn)
	}
	if err := tcp.SetNoDelay(true); err != nil {
		tcp.Close()
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return tcp, nil
}

// Dial connects to address and returns a Conn over a plain link, or over
// a TLS link when tlsConfig is non-nil. The TLS handshake is not
// performed; call Conn.Handshake. An empty ServerName in tlsConfig is
// filled from the host part of address.
func Dial(ctx context.Context, address string, tlsConfig *tls.Config, options Options) (*Conn, error) {
	tcp, err := (&TCPDialer{Timeout: options.ConnectTimeout}).DialContext(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}

	var link Link
	if tlsConfig != nil {
		config := tlsConfig.Clone()
		if config.ServerName == "" {
			host, _, splitErr := net.SplitHostPort(address)
			if splitErr != nil {
				host = address
			}
			config.ServerName = host
		}
		link, err = NewTLSLink(tcp, config, options.HandshakeTimeout, options.WriteTimeout)
	} else {
		link, err = NewPlainLink(tcp)
	}
	if err != nil {
		tcp.Close()
		return nil, err
	}
	return NewConn(link, options), nil
}
