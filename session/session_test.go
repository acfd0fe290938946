// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session_test

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/sendlog/lib/metrics"
	"github.com/bureau-foundation/sendlog/lib/testutil"
	"github.com/bureau-foundation/sendlog/lib/tlsconfig"
	"github.com/bureau-foundation/sendlog/protocol"
	"github.com/bureau-foundation/sendlog/recording"
	"github.com/bureau-foundation/sendlog/recording/recordingtest"
	"github.com/bureau-foundation/sendlog/session"
	"github.com/bureau-foundation/sendlog/transport"
)

// behavior selects how logServer deviates from a well-behaved server.
type behavior struct {
	// silent never answers ClientHello.
	silent bool

	// withholdCommit reads Exit but never commits.
	withholdCommit bool

	// closeAfterExit drops the connection as soon as Exit arrives.
	closeAfterExit bool

	// abortAfterAccept answers Accept with Abort and keeps reading.
	abortAfterAccept bool
}

// logServer is a minimal log server. Each connection's received
// envelopes are sent on received when the connection ends.
type logServer struct {
	address  string
	behavior behavior
	received chan []protocol.Envelope
	hellos   chan struct{}
}

func startServer(t *testing.T, listener net.Listener, behavior behavior) *logServer {
	t.Helper()
	server := &logServer{
		address:  listener.Addr().String(),
		behavior: behavior,
		received: make(chan []protocol.Envelope, 16),
		hellos:   make(chan struct{}, 16),
	}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.serve(conn)
		}
	}()
	return server
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return listener
}

func (s *logServer) serve(conn net.Conn) {
	defer conn.Close()
	var got []protocol.Envelope
	defer func() { s.received <- got }()

	var elapsed time.Duration
	for {
		envelope, err := protocol.ReadFrame(conn, protocol.ClientToServer)
		if err != nil {
			return
		}
		got = append(got, envelope)

		var reply protocol.Envelope
		switch message := envelope.(type) {
		case protocol.ClientHello:
			s.hellos <- struct{}{}
			if s.behavior.silent {
				continue
			}
			reply = protocol.ServerHello{ServerID: "test-server"}
		case protocol.Accept:
			reply = protocol.LogID{ID: testutil.UniqueID("log")}
			if s.behavior.abortAfterAccept {
				reply = protocol.Abort{Message: "log server shutting down"}
			}
		case protocol.Restart:
			elapsed = message.ResumePoint
		case protocol.IOBuffer:
			elapsed += message.Delay
		case protocol.WindowSize:
			elapsed += message.Delay
		case protocol.Suspend:
			elapsed += message.Delay
		case protocol.Reject:
			return
		case protocol.Exit:
			if s.behavior.closeAfterExit {
				return
			}
			if s.behavior.withholdCommit {
				continue
			}
			reply = protocol.CommitPoint{Elapsed: elapsed}
		}
		if reply != nil {
			if err := protocol.WriteFrame(conn, reply); err != nil {
				return
			}
		}
	}
}

func sessionConfig(address, dir string) session.Config {
	return session.Config{
		Address:   address,
		Recording: dir,
		Plan:      session.Plan{ClientID: "test"},
		Timeouts: session.Timeouts{
			Connect:   5 * time.Second,
			Handshake: 5 * time.Second,
			Idle:      5 * time.Second,
			Commit:    5 * time.Second,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func kinds(envelopes []protocol.Envelope) []protocol.Kind {
	result := make([]protocol.Kind, 0, len(envelopes))
	for _, envelope := range envelopes {
		result = append(result, envelope.Kind())
	}
	return result
}

func TestRunPlain(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	report := session.New(sessionConfig(server.address, dir)).Run(context.Background())
	if !report.Succeeded() {
		t.Fatalf("report: state %s, err %v", report.State, report.Err)
	}
	if report.ServerID != "test-server" || !strings.HasPrefix(report.LogID, "log-") {
		t.Errorf("ids: got server %q log %q", report.ServerID, report.LogID)
	}
	if report.Checkpoint.Elapsed != 150*time.Millisecond || report.Checkpoint.Committed != 150*time.Millisecond {
		t.Errorf("checkpoint: got %+v, want 150ms committed", report.Checkpoint)
	}

	received := testutil.RequireReceive(t, server.received, 10*time.Second, "server connection")
	want := []protocol.Kind{
		protocol.KindClientHello, protocol.KindAccept, protocol.KindIOBuffer,
		protocol.KindWindowSize, protocol.KindIOBuffer, protocol.KindExit,
	}
	if got := kinds(received); !slices.Equal(got, want) {
		t.Errorf("server received %v, want %v", got, want)
	}
	var data bytes.Buffer
	for _, envelope := range received {
		if buffer, ok := envelope.(protocol.IOBuffer); ok {
			data.Write(buffer.Data)
		}
	}
	if data.String() != "hello world" {
		t.Errorf("streamed data: got %q, want %q", data.String(), "hello world")
	}
}

func TestRunTLS(t *testing.T) {
	t.Parallel()
	listener, clientConfig := tlsListen(t)
	server := startServer(t, listener, behavior{})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	config := sessionConfig(server.address, dir)
	config.TLS = clientConfig
	report := session.New(config).Run(context.Background())
	if !report.Succeeded() {
		t.Fatalf("report: state %s, err %v", report.State, report.Err)
	}
	received := testutil.RequireReceive(t, server.received, 10*time.Second, "server connection")
	if len(received) != 6 {
		t.Errorf("server received %v, want six envelopes", kinds(received))
	}
}

// tlsListen returns a TLS listener and a client configuration trusting it.
func tlsListen(t *testing.T) (net.Listener, *tls.Config) {
	t.Helper()
	certs := testutil.WriteCertificates(t)
	serverConfig, err := tlsconfig.Options{Enable: true, CertFile: certs.CertFile, KeyFile: certs.KeyFile}.Server()
	if err != nil {
		t.Fatalf("Server: %v", err)
	}
	clientConfig, err := tlsconfig.Options{Enable: true, CAFile: certs.CAFile}.Client()
	if err != nil {
		t.Fatalf("Client: %v", err)
	}
	listener := tls.NewListener(listen(t), serverConfig)
	t.Cleanup(func() { listener.Close() })
	return listener, clientConfig
}

func TestRunAbortWhileStreaming(t *testing.T) {
	t.Parallel()
	events := make([]recordingtest.Event, 20000)
	for index := range events {
		events[index] = recordingtest.Event{
			Channel: recording.ChannelTTYOut,
			Delay:   time.Millisecond,
			Data:    []byte("output line\r\n"),
		}
	}
	dir := recordingtest.Write(t, events)

	for _, secure := range []bool{false, true} {
		name := "plain"
		if secure {
			name = "tls"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			listener, clientConfig := listen(t), (*tls.Config)(nil)
			if secure {
				listener, clientConfig = tlsListen(t)
			}
			server := startServer(t, listener, behavior{abortAfterAccept: true})

			config := sessionConfig(server.address, dir)
			config.TLS = clientConfig
			report := session.New(config).Run(context.Background())
			if !errors.Is(report.Err, session.ErrServerAbort) {
				t.Fatalf("err: got %v, want ErrServerAbort", report.Err)
			}
			var failure *session.Failure
			if !errors.As(report.Err, &failure) || failure.State != session.StateStreaming {
				t.Errorf("failure: got %v, want failure in streaming", report.Err)
			}

			received := testutil.RequireReceive(t, server.received, 10*time.Second, "server connection")
			if slices.Contains(kinds(received), protocol.KindExit) {
				t.Errorf("server received Exit after aborting (%d envelopes)", len(received))
			}
		})
	}
}

func TestRunCancelledDuringTLSHandshake(t *testing.T) {
	t.Parallel()
	// Accepts connections and never speaks TLS.
	listener := listen(t)
	accepted := make(chan net.Conn, 4)
	t.Cleanup(func() {
		listener.Close()
		for {
			select {
			case conn := <-accepted:
				conn.Close()
			default:
				return
			}
		}
	})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()
	_, clientConfig := tlsListen(t)
	dir := recordingtest.Write(t, recordingtest.Scenario())

	config := sessionConfig(listener.Addr().String(), dir)
	config.TLS = clientConfig
	config.Timeouts.Handshake = 4 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	report := session.New(config).Run(ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run returned after %v, want prompt cancellation", elapsed)
	}
	if !errors.Is(report.Err, transport.ErrCancelled) {
		t.Fatalf("err: got %v, want ErrCancelled", report.Err)
	}
	var failure *session.Failure
	if !errors.As(report.Err, &failure) || failure.State != session.StateAwaitingHello {
		t.Errorf("failure: got %v, want failure in awaiting-hello", report.Err)
	}
}

func TestRunRestart(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	config := sessionConfig(server.address, dir)
	config.Plan.Restart = true
	config.Plan.SessionID = "00/00/01"
	config.Plan.ResumePoint = 100 * time.Millisecond
	report := session.New(config).Run(context.Background())
	if !report.Succeeded() {
		t.Fatalf("report: state %s, err %v", report.State, report.Err)
	}

	received := testutil.RequireReceive(t, server.received, 10*time.Second, "server connection")
	want := []protocol.Kind{protocol.KindClientHello, protocol.KindRestart, protocol.KindIOBuffer, protocol.KindExit}
	if got := kinds(received); !slices.Equal(got, want) {
		t.Fatalf("server received %v, want %v", got, want)
	}
	digest, err := recording.Digest(dir, recording.Options{})
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	restart := received[1].(protocol.Restart)
	if restart.LogID != "00/00/01" || restart.ResumePoint != 100*time.Millisecond {
		t.Errorf("Restart: got %+v", restart)
	}
	if !bytes.Equal(restart.RecordingDigest, digest) {
		t.Errorf("Restart digest: got %x, want %x", restart.RecordingDigest, digest)
	}
	if data := received[2].(protocol.IOBuffer).Data; string(data) != " world" {
		t.Errorf("first data after restart: got %q, want %q", data, " world")
	}
}

func TestRunCommitTimeout(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{withholdCommit: true})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	config := sessionConfig(server.address, dir)
	config.Timeouts.Commit = 200 * time.Millisecond
	report := session.New(config).Run(context.Background())
	if report.State != session.StateError {
		t.Fatalf("state: got %s, want error", report.State)
	}
	if !errors.Is(report.Err, session.ErrExitedPrematurely) || !errors.Is(report.Err, transport.ErrTimeout) {
		t.Errorf("err: got %v, want premature exit after timeout", report.Err)
	}
	var failure *session.Failure
	if !errors.As(report.Err, &failure) || failure.State != session.StateClosing {
		t.Errorf("failure: got %v, want failure in closing", report.Err)
	}
}

func TestRunPrematureClose(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{closeAfterExit: true})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	report := session.New(sessionConfig(server.address, dir)).Run(context.Background())
	if !errors.Is(report.Err, session.ErrExitedPrematurely) {
		t.Fatalf("err: got %v, want ErrExitedPrematurely", report.Err)
	}
	if report.Checkpoint.Pending() != 150*time.Millisecond {
		t.Errorf("pending: got %v, want 150ms", report.Checkpoint.Pending())
	}
}

func TestRunReject(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	config := sessionConfig(server.address, dir)
	config.Plan.RejectReason = "not permitted"
	report := session.New(config).Run(context.Background())
	if !report.Succeeded() {
		t.Fatalf("report: state %s, err %v", report.State, report.Err)
	}
	received := testutil.RequireReceive(t, server.received, 10*time.Second, "server connection")
	if got := kinds(received); !slices.Equal(got, []protocol.Kind{protocol.KindClientHello, protocol.KindReject}) {
		t.Errorf("server received %v", got)
	}
}

func TestRunMissingRecording(t *testing.T) {
	t.Parallel()
	config := sessionConfig("127.0.0.1:1", t.TempDir())
	config.Connect = func(context.Context, string, *tls.Config, transport.Options) (*transport.Conn, error) {
		t.Error("Connect should not be called without a recording")
		return nil, errors.New("unreachable")
	}
	report := session.New(config).Run(context.Background())
	if report.State != session.StateError || report.Err == nil {
		t.Errorf("report: state %s, err %v", report.State, report.Err)
	}
}

func TestRunConnectionRefused(t *testing.T) {
	t.Parallel()
	listener := listen(t)
	address := listener.Addr().String()
	listener.Close()

	report := session.New(sessionConfig(address, recordingtest.Write(t, recordingtest.Scenario()))).Run(context.Background())
	if report.State != session.StateError || report.Err == nil {
		t.Errorf("report: state %s, err %v", report.State, report.Err)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{silent: true})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reports := make(chan session.Report, 1)
	go func() {
		reports <- session.New(sessionConfig(server.address, dir)).Run(ctx)
	}()
	testutil.RequireReceive(t, server.hellos, 10*time.Second, "client hello")
	cancel()

	report := testutil.RequireReceive(t, reports, 10*time.Second, "session report")
	if !errors.Is(report.Err, transport.ErrCancelled) {
		t.Errorf("err: got %v, want ErrCancelled", report.Err)
	}
	var failure *session.Failure
	if !errors.As(report.Err, &failure) || failure.State != session.StateAwaitingHello {
		t.Errorf("failure: got %v, want failure in awaiting-hello", report.Err)
	}
}

func TestManagerRun(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{})
	dir := recordingtest.Write(t, recordingtest.Scenario())
	collectors := metrics.New()

	manager := session.NewManager()
	for range 3 {
		config := sessionConfig(server.address, dir)
		config.Observer = session.MetricsObserver{Collectors: collectors}
		manager.Add(config)
	}
	if manager.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", manager.Len())
	}

	reports := manager.Run(context.Background())
	if len(reports) != 3 {
		t.Fatalf("reports: got %d, want 3", len(reports))
	}
	for index, report := range reports {
		if report.Index != index {
			t.Errorf("report %d: index %d", index, report.Index)
		}
		if !report.Succeeded() {
			t.Errorf("report %d: state %s, err %v", index, report.State, report.Err)
		}
	}
	if failed := session.Failed(reports); len(failed) != 0 {
		t.Errorf("Failed: got %d reports, want none", len(failed))
	}
	if got := promtestutil.ToFloat64(collectors.Sessions.WithLabelValues(metrics.ResultFinished)); got != 3 {
		t.Errorf("finished sessions metric: got %v, want 3", got)
	}
	if got := promtestutil.ToFloat64(collectors.EnvelopesSent.WithLabelValues("io_buffer")); got != 6 {
		t.Errorf("io_buffer envelopes metric: got %v, want 6", got)
	}
}

func TestManagerShutdown(t *testing.T) {
	t.Parallel()
	server := startServer(t, listen(t), behavior{silent: true})
	dir := recordingtest.Write(t, recordingtest.Scenario())

	manager := session.NewManager()
	manager.Add(sessionConfig(server.address, dir))
	manager.Add(sessionConfig(server.address, dir))

	done := make(chan []session.Report, 1)
	go func() { done <- manager.Run(context.Background()) }()
	testutil.RequireReceive(t, server.hellos, 10*time.Second, "first hello")
	testutil.RequireReceive(t, server.hellos, 10*time.Second, "second hello")
	manager.Shutdown()

	reports := testutil.RequireReceive(t, done, 10*time.Second, "manager reports")
	failed := session.Failed(reports)
	if len(failed) != 2 {
		t.Fatalf("Failed: got %d, want 2", len(failed))
	}
	for _, report := range failed {
		if !errors.Is(report.Err, transport.ErrCancelled) {
			t.Errorf("session %d: got %v, want ErrCancelled", report.Index, report.Err)
		}
	}
}

func TestFailed(t *testing.T) {
	t.Parallel()
	reports := []session.Report{
		{Index: 0, State: session.StateFinished},
		{Index: 1, State: session.StateError, Err: session.ErrServerAbort},
		{Index: 2, State: session.StateFinished, Stopped: true},
	}
	failed := session.Failed(reports)
	if len(failed) != 1 || failed[0].Index != 1 {
		t.Errorf("Failed: got %+v, want only session 1", failed)
	}
}
