// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors sendlog exports.
//
// Collectors are owned by a [Collectors] value rather than package
// globals, so tests register into their own registry. All collectors are
// safe for concurrent use by every session.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sendlog"

// Session results used as the "result" label.
const (
	ResultFinished = "finished"
	ResultStopped  = "stopped"
	ResultFailed   = "failed"
)

// Collectors holds every sendlog metric.
type Collectors struct {
	// Sessions counts completed sessions by result.
	Sessions *prometheus.CounterVec

	// EnvelopesSent and EnvelopesReceived count envelopes by kind name.
	EnvelopesSent     *prometheus.CounterVec
	EnvelopesReceived *prometheus.CounterVec

	// BytesSent counts framed bytes written to the transport.
	BytesSent prometheus.Counter

	// CommitLag observes elapsed minus committed each time the server
	// reports a commit point.
	CommitLag prometheus.Histogram

	// SessionDuration observes wall-clock time from dial to a terminal
	// state.
	SessionDuration prometheus.Histogram
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions that reached a terminal state, by result",
		}, []string{"result"}),
		EnvelopesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "sent_total",
			Help:      "Envelopes fully written to the log server, by kind",
		}, []string{"kind"}),
		EnvelopesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "envelopes",
			Name:      "received_total",
			Help:      "Envelopes decoded from the log server, by kind",
		}, []string{"kind"}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Framed bytes written to the log server",
		}),
		CommitLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_lag_seconds",
			Help:      "Session time sent but not yet committed, sampled at each commit point",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall-clock duration of a session from dial to terminal state",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
}

// Register adds every collector to registerer.
func (c *Collectors) Register(registerer prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{
		c.Sessions,
		c.EnvelopesSent,
		c.EnvelopesReceived,
		c.BytesSent,
		c.CommitLag,
		c.SessionDuration,
	} {
		if err := registerer.Register(collector); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	return nil
}

// Serve exposes gatherer at /metrics on address until ctx is done.
func Serve(ctx context.Context, address string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	return serveListener(ctx, listener, gatherer, logger)
}

func serveListener(ctx context.Context, listener net.Listener, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownContext, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownContext)
	}()

	logger.Info("serving metrics", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
