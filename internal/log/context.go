// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

type correlationKey struct{}

// correlation is stored by value; each With* helper derives a new context.
type correlation struct {
	requestID string
	jobID     string
}

func correlationFrom(ctx context.Context) correlation {
	if ctx == nil {
		return correlation{}
	}
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, update func(*correlation)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	c := correlationFrom(ctx)
	update(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

// ContextWithRequestID tags ctx with the HTTP request that started the work.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.requestID = id })
}

// ContextWithJobID tags ctx with the video job being processed.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.jobID = id })
}

func RequestIDFromContext(ctx context.Context) string { return correlationFrom(ctx).requestID }

func JobIDFromContext(ctx context.Context) string { return correlationFrom(ctx).jobID }

// WithContext enriches logger with the request and job IDs of ctx and, when
// a span is active, its trace and span IDs.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	c := correlationFrom(ctx)
	sc := trace.SpanContextFromContext(ctx)
	if c.requestID == "" && c.jobID == "" && !sc.IsValid() {
		return logger
	}
	b := logger.With()
	if c.requestID != "" {
		b = b.Str(FieldRequestID, c.requestID)
	}
	if c.jobID != "" {
		b = b.Str(FieldJobID, c.jobID)
	}
	if sc.IsValid() {
		b = b.Str(FieldTraceID, sc.TraceID().String()).Str(FieldSpanID, sc.SpanID().String())
	}
	return b.Logger()
}

// WithComponentFromContext is WithComponent followed by WithContext.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}

// FromContext returns the base logger enriched with the correlation fields
// of ctx.
func FromContext(ctx context.Context) zerolog.Logger {
	return WithContext(ctx, Base())
}
