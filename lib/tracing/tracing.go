// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracing wraps OpenTelemetry for sendlog: one span per session,
// exported as JSON to a writer when enabled and a no-op otherwise.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/bureau-foundation/sendlog"

// Tracer starts spans. The zero value is not usable; use [Setup].
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// Setup returns a Tracer that exports to output when enable is true and
// discards spans otherwise. Call Shutdown to flush.
func Setup(enable bool, output io.Writer) (*Tracer, error) {
	if !enable {
		return Disabled(), nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(output), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	return &Tracer{
		tracer:   provider.Tracer(instrumentationName),
		shutdown: provider.Shutdown,
	}, nil
}

// Disabled returns a Tracer whose spans are discarded.
func Disabled() *Tracer {
	return &Tracer{
		tracer:   noop.NewTracerProvider().Tracer(instrumentationName),
		shutdown: func(context.Context) error { return nil },
	}
}

// StartSpan starts a span named name. The returned function ends it,
// recording err as the span status when non-nil.
func (t *Tracer) StartSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attributes...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// Shutdown flushes pending spans.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}
