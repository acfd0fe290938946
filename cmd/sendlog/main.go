// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sendlog/lib/config"
	"github.com/bureau-foundation/sendlog/lib/metrics"
	"github.com/bureau-foundation/sendlog/lib/tlsconfig"
	"github.com/bureau-foundation/sendlog/lib/tracing"
	"github.com/bureau-foundation/sendlog/lib/version"
	"github.com/bureau-foundation/sendlog/recording"
	"github.com/bureau-foundation/sendlog/session"
)

// errSessionsFailed is returned when any session did not finish. The
// summary has already described each failure.
var errSessionsFailed = errors.New("one or more sessions failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
	case errors.Is(err, errSessionsFailed):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "sendlog %s\n", version.Info())
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	level, _ := cfg.LogLevel()
	logger := newLogger(stderr, cfg.Observability.LogFormat, level)

	tlsConfig, err := tlsconfig.Options{
		Enable:             cfg.TLS.Enabled,
		CAFile:             cfg.TLS.CABundle,
		CertFile:           cfg.TLS.Certificate,
		KeyFile:            cfg.TLS.Key,
		ServerName:         cfg.TLS.ServerName,
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
	}.Client()
	if err != nil {
		return err
	}

	var recordingOptions recording.Options
	if cfg.Recording.Identity != "" {
		identities, err := recording.LoadIdentities(cfg.Recording.Identity)
		if err != nil {
			return err
		}
		recordingOptions.Identities = identities
	}

	collectors := metrics.New()
	if cfg.Observability.MetricsListen != "" {
		registry := prometheus.NewRegistry()
		if err := collectors.Register(registry); err != nil {
			return err
		}
		metricsContext, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()
		go func() {
			if err := metrics.Serve(metricsContext, cfg.Observability.MetricsListen, registry, logger); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	tracer, err := tracing.Setup(cfg.Observability.Trace, stderr)
	if err != nil {
		return err
	}
	defer func() {
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownContext); err != nil {
			logger.Warn("flushing traces failed", "error", err)
		}
	}()

	manager := session.NewManager()
	for range opts.parallel {
		manager.Add(session.Config{
			Address:          cfg.Server.Address,
			TLS:              tlsConfig,
			Recording:        opts.recording,
			RecordingOptions: recordingOptions,
			Plan: session.Plan{
				ClientID:     version.ClientID(),
				Restart:      opts.restart != "",
				SessionID:    opts.sessionID,
				ResumePoint:  opts.resumePoint,
				RejectReason: opts.reject,
				AcceptOnly:   opts.acceptOnly,
				StopAfter:    opts.stopPoint,
			},
			Timeouts: session.Timeouts{
				Connect:   cfg.Timeouts.Connect,
				Handshake: cfg.Timeouts.Handshake,
				Idle:      cfg.Timeouts.Idle,
				Commit:    cfg.Timeouts.Commit,
			},
			Logger:   logger,
			Observer: session.MetricsObserver{Collectors: collectors},
			Tracer:   tracer,
		})
	}

	logger.Debug("starting sessions", "count", manager.Len(), "server", cfg.Server.Address,
		"tls", tlsConfig != nil, "recording", opts.recording)
	reports := manager.Run(ctx)

	failed := session.Failed(reports)
	if len(failed) > 0 || len(reports) > 1 {
		writeSummary(stdout, reports)
	}
	if len(failed) > 0 {
		return errSessionsFailed
	}
	return nil
}
