// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"time"

	"github.com/bureau-foundation/sendlog/lib/metrics"
	"github.com/bureau-foundation/sendlog/protocol"
)

// Observer receives engine events for metrics. Implementations must be
// safe for concurrent use, since every session shares one.
type Observer interface {
	EnvelopeSent(kind protocol.Kind)
	EnvelopeReceived(kind protocol.Kind)
	BytesSent(count int)
	CommitLag(lag time.Duration)
	SessionEnded(report Report)
}

type nopObserver struct{}

func (nopObserver) EnvelopeSent(protocol.Kind)     {}
func (nopObserver) EnvelopeReceived(protocol.Kind) {}
func (nopObserver) BytesSent(int)                  {}
func (nopObserver) CommitLag(time.Duration)        {}
func (nopObserver) SessionEnded(Report)            {}

// MetricsObserver records engine events in Prometheus collectors.
type MetricsObserver struct {
	Collectors *metrics.Collectors
}

func (o MetricsObserver) EnvelopeSent(kind protocol.Kind) {
	o.Collectors.EnvelopesSent.WithLabelValues(kind.String()).Inc()
}

func (o MetricsObserver) EnvelopeReceived(kind protocol.Kind) {
	o.Collectors.EnvelopesReceived.WithLabelValues(kind.String()).Inc()
}

func (o MetricsObserver) BytesSent(count int) {
	o.Collectors.BytesSent.Add(float64(count))
}

func (o MetricsObserver) CommitLag(lag time.Duration) {
	o.Collectors.CommitLag.Observe(lag.Seconds())
}

func (o MetricsObserver) SessionEnded(report Report) {
	result := metrics.ResultFailed
	switch {
	case report.State == StateFinished && report.Stopped:
		result = metrics.ResultStopped
	case report.State == StateFinished:
		result = metrics.ResultFinished
	}
	o.Collectors.Sessions.WithLabelValues(result).Inc()
	o.Collectors.SessionDuration.Observe(report.Duration.Seconds())
}
