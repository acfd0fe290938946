// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bureau-foundation/sendlog/lib/buffer"
	"github.com/bureau-foundation/sendlog/lib/clock"
	"github.com/bureau-foundation/sendlog/lib/tracing"
	"github.com/bureau-foundation/sendlog/recording"
	"github.com/bureau-foundation/sendlog/transport"
)

// Timeouts bound each phase of a session. Zero disables a bound.
type Timeouts struct {
	// Connect bounds the TCP dial.
	Connect time.Duration

	// Handshake bounds the TLS handshake and the wait for ServerHello.
	Handshake time.Duration

	// Idle bounds the time without progress while sending.
	Idle time.Duration

	// Commit bounds the time without progress while waiting for the
	// final commit point.
	Commit time.Duration
}

// Config describes one session.
type Config struct {
	Index   int
	Address string

	// TLS, when non-nil, wraps the connection in TLS.
	TLS *tls.Config

	// Recording is the recording directory.
	Recording        string
	RecordingOptions recording.Options

	Plan     Plan
	Timeouts Timeouts

	Logger   *slog.Logger
	Observer Observer
	Tracer   *tracing.Tracer
	Clock    clock.Clock

	// Connect replaces transport.Dial.
	Connect func(ctx context.Context, address string, tlsConfig *tls.Config, options transport.Options) (*transport.Conn, error)
}

// Session sends one recording to one server.
type Session struct {
	config Config
	logger *slog.Logger
	pool   *buffer.Pool
}

// New returns a session with nil Config fields defaulted.
func New(config Config) *Session {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}
	if config.Tracer == nil {
		config.Tracer = tracing.Disabled()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Connect == nil {
		config.Connect = transport.Dial
	}
	return &Session{
		config: config,
		logger: config.Logger.With("session", config.Index, "server", config.Address),
		pool:   buffer.NewPool(),
	}
}

// Pool returns the session's buffer pool.
func (s *Session) Pool() *buffer.Pool {
	return s.pool
}

// Run connects, streams the recording, and waits for the server to
// commit it. It returns when the session reaches a terminal state.
func (s *Session) Run(ctx context.Context) (report Report) {
	config := s.config
	started := config.Clock.Now()
	ctx, endSpan := config.Tracer.StartSpan(ctx, "session",
		attribute.Int("sendlog.session", config.Index),
		attribute.String("server.address", config.Address),
		attribute.String("sendlog.recording", config.Recording),
		attribute.Bool("sendlog.restart", config.Plan.Restart),
	)
	report = Report{Index: config.Index, Server: config.Address, State: StateError}
	defer func() {
		report.Duration = config.Clock.Since(started)
		endSpan(report.Err)
		config.Observer.SessionEnded(report)
		if report.Succeeded() {
			s.logger.Info("session finished",
				"elapsed", report.Checkpoint.Elapsed, "stopped", report.Stopped, "duration", report.Duration)
		}
	}()

	opened, err := recording.Open(config.Recording, config.RecordingOptions)
	if err != nil {
		report.Err = err
		s.logger.Error("opening recording failed", "error", err)
		return report
	}
	defer opened.Close()

	plan := config.Plan
	if plan.Restart && plan.RecordingDigest == nil {
		digest, err := recording.Digest(config.Recording, config.RecordingOptions)
		if err != nil {
			report.Err = fmt.Errorf("digesting recording: %w", err)
			s.logger.Error("digesting recording failed", "error", err)
			return report
		}
		plan.RecordingDigest = digest
	}

	conn, err := config.Connect(ctx, config.Address, config.TLS, transport.Options{
		ConnectTimeout:   config.Timeouts.Connect,
		HandshakeTimeout: config.Timeouts.Handshake,
		WriteTimeout:     config.Timeouts.Idle,
		Clock:            config.Clock,
	})
	if err != nil {
		report.Err = err
		s.logger.Error("connect failed", "error", err)
		return report
	}
	defer conn.Close()

	engine := NewEngine(InputFrom(opened), plan, s.pool, s.logger, config.Observer)
	s.drive(ctx, conn, engine)

	report.State = engine.State()
	report.Checkpoint = engine.Checkpoint()
	report.ServerID = engine.ServerID()
	report.LogID = engine.LogID()
	report.Stopped = engine.Stopped()
	report.Err = engine.Err()
	return report
}

// drive runs engine over conn until it is terminal.
func (s *Session) drive(ctx context.Context, conn *transport.Conn, engine *Engine) {
	conn.SetTimeout(s.config.Timeouts.Handshake)
	if err := conn.Handshake(ctx); err != nil {
		engine.Fail(err)
		return
	}
	if err := engine.Start(); err != nil {
		return
	}
	for !engine.State().Terminal() {
		if err := engine.Fill(); err != nil {
			return
		}
		if engine.State().Terminal() {
			return
		}
		conn.SetTimeout(s.timeoutFor(engine.State()))
		if err := conn.Pump(ctx, engine); err != nil {
			engine.Fail(err)
		}
	}
}

func (s *Session) timeoutFor(state State) time.Duration {
	switch state {
	case StateAwaitingHello:
		return s.config.Timeouts.Handshake
	case StateClosing:
		return s.config.Timeouts.Commit
	default:
		return s.config.Timeouts.Idle
	}
}
