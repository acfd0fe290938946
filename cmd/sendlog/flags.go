// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sendlog/lib/config"
	"github.com/bureau-foundation/sendlog/recording"
)

// options holds the parsed command line.
type options struct {
	configPath string
	recording  string

	restart     string
	stopAfter   string
	sessionID   string
	reject      string
	acceptOnly  bool
	parallel    int
	showVersion bool

	resumePoint time.Duration
	stopPoint   time.Duration

	// Config overrides, applied only when given.
	server        string
	tls           bool
	caBundle      string
	cert          string
	key           string
	serverName    string
	insecure      bool
	identity      string
	metricsListen string
	trace         bool
	logFormat     string
	logLevel      string

	flagSet *pflag.FlagSet
}

func newFlagSet(output io.Writer, opts *options) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("sendlog", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprintf(output, "Usage:\n  sendlog [flags] <recording-dir>\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	flagSet.StringVar(&opts.configPath, "config", "", "YAML configuration file (default $"+config.ConfigEnvironmentVariable+")")
	flagSet.StringVar(&opts.server, "server", "", "log server host:port")
	flagSet.BoolVar(&opts.tls, "tls", false, "connect with TLS")
	flagSet.StringVar(&opts.caBundle, "ca-bundle", "", "PEM bundle verifying the server certificate")
	flagSet.StringVar(&opts.cert, "cert", "", "PEM client certificate for mutual TLS")
	flagSet.StringVar(&opts.key, "key", "", "PEM private key for --cert")
	flagSet.StringVar(&opts.serverName, "server-name", "", "name to verify in the server certificate")
	flagSet.BoolVar(&opts.insecure, "insecure-skip-verify", false, "do not verify the server certificate")
	flagSet.StringVar(&opts.identity, "identity", "", "age identity file for encrypted recordings")
	flagSet.StringVar(&opts.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	flagSet.BoolVar(&opts.trace, "trace", false, "write OpenTelemetry spans to stderr")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "log format: auto, text, or json")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, or error")

	flagSet.StringVarP(&opts.restart, "restart", "r", "", "resume the log at seconds[,nanoseconds]")
	flagSet.StringVarP(&opts.stopAfter, "stop-after", "s", "", "stop sending at seconds[,nanoseconds] without sending the exit status")
	flagSet.StringVarP(&opts.sessionID, "session-id", "i", "", "log id to resume, as assigned by the server")
	flagSet.StringVarP(&opts.reject, "reject", "R", "", "send a rejection with this reason instead of the session")
	flagSet.BoolVarP(&opts.acceptOnly, "accept-only", "A", false, "send the accept and exit status without any I/O")
	flagSet.IntVarP(&opts.parallel, "test", "t", 1, "run this many sessions in parallel")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	return flagSet
}

// parseArgs parses args into options and validates flag combinations.
func parseArgs(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	opts.flagSet = newFlagSet(output, opts)
	if err := opts.flagSet.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	rest := opts.flagSet.Args()
	switch len(rest) {
	case 0:
		return nil, errors.New("missing recording directory")
	case 1:
		opts.recording = rest[0]
	default:
		return nil, fmt.Errorf("unexpected argument: %s", rest[1])
	}

	if opts.restart != "" {
		point, err := parseTimePoint(opts.restart)
		if err != nil {
			return nil, fmt.Errorf("--restart: %w", err)
		}
		if opts.sessionID == "" {
			return nil, errors.New("--restart requires --session-id")
		}
		opts.resumePoint = point
	} else if opts.sessionID != "" {
		return nil, errors.New("--session-id requires --restart")
	}
	if opts.stopAfter != "" {
		point, err := parseTimePoint(opts.stopAfter)
		if err != nil {
			return nil, fmt.Errorf("--stop-after: %w", err)
		}
		if point <= opts.resumePoint {
			return nil, fmt.Errorf("--stop-after %v must be after the resume point %v", point, opts.resumePoint)
		}
		opts.stopPoint = point
	}
	if opts.reject != "" && (opts.restart != "" || opts.acceptOnly) {
		return nil, errors.New("--reject cannot be combined with --restart or --accept-only")
	}
	if opts.acceptOnly && opts.restart != "" {
		return nil, errors.New("--accept-only cannot be combined with --restart")
	}
	if opts.parallel < 1 {
		return nil, fmt.Errorf("--test must be at least 1, got %d", opts.parallel)
	}
	return opts, nil
}

// apply copies every flag that was given onto cfg.
func (opts *options) apply(cfg *config.Config) {
	changed := opts.flagSet.Changed
	if changed("server") {
		cfg.Server.Address = opts.server
	}
	if changed("tls") {
		cfg.TLS.Enabled = opts.tls
	}
	if changed("ca-bundle") {
		cfg.TLS.CABundle = opts.caBundle
	}
	if changed("cert") {
		cfg.TLS.Certificate = opts.cert
	}
	if changed("key") {
		cfg.TLS.Key = opts.key
	}
	if changed("server-name") {
		cfg.TLS.ServerName = opts.serverName
	}
	if changed("insecure-skip-verify") {
		cfg.TLS.InsecureSkipVerify = opts.insecure
	}
	if changed("identity") {
		cfg.Recording.Identity = opts.identity
	}
	if changed("metrics-listen") {
		cfg.Observability.MetricsListen = opts.metricsListen
	}
	if changed("trace") {
		cfg.Observability.Trace = opts.trace
	}
	if changed("log-format") {
		cfg.Observability.LogFormat = opts.logFormat
	}
	if changed("log-level") {
		cfg.Observability.LogLevel = opts.logLevel
	}
}

// parseTimePoint parses "seconds[,nanoseconds]". A decimal
// "seconds.fraction" is also accepted.
func parseTimePoint(text string) (time.Duration, error) {
	seconds, nanoseconds, found := strings.Cut(text, ",")
	if !found {
		return recording.ParseDelay(text)
	}
	whole, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil || whole < 0 {
		return 0, fmt.Errorf("invalid seconds %q", seconds)
	}
	fraction, err := strconv.ParseInt(nanoseconds, 10, 64)
	if err != nil || fraction < 0 || fraction >= int64(time.Second) {
		return 0, fmt.Errorf("invalid nanoseconds %q", nanoseconds)
	}
	if whole > math.MaxInt64/int64(time.Second)-1 {
		return 0, fmt.Errorf("time point %q out of range", text)
	}
	return time.Duration(whole)*time.Second + time.Duration(fraction), nil
}
