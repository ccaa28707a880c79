// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithJobID(ctx, "job-9")

	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "req-1", entry[FieldRequestID])
	require.Equal(t, "job-9", entry[FieldJobID])
}

func TestWithContextWithoutFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.NotContains(t, entry, FieldRequestID)
	require.NotContains(t, entry, FieldJobID)
}

func TestConfigureAttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "svc-test", Version: "v0"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("stage")
	l.Debug().Str(FieldEvent, "test.event").Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "svc-test", entry["service"])
	require.Equal(t, "v0", entry["version"])
	require.Equal(t, "stage", entry[FieldComponent])
	require.Equal(t, "test.event", entry[FieldEvent])
}

func TestWithContextAddsTraceIDs(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))
	ctx = ContextWithJobID(ctx, "job-2")
	ctx = ContextWithJobID(ctx, "job-3")

	var buf bytes.Buffer
	l := WithContext(ctx, zerolog.New(&buf))
	l.Info().Msg("stage done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", entry[FieldTraceID])
	require.Equal(t, "00f067aa0ba902b7", entry[FieldSpanID])
	require.Equal(t, "job-3", entry[FieldJobID], "later tag replaces the earlier one")
	require.NotContains(t, entry, FieldRequestID)
}

func TestNilContextHelpers(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	require.Empty(t, RequestIDFromContext(nil))
	//nolint:staticcheck
	require.Empty(t, JobIDFromContext(nil))
}

func TestFromContextUsesBaseLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Service: "svc-ctx"})
	t.Cleanup(func() { Configure(Config{}) })

	l := FromContext(ContextWithRequestID(context.Background(), "req-7"))
	l.Info().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "svc-ctx", entry["service"])
	require.Equal(t, "req-7", entry[FieldRequestID])
}
