// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamstage/internal/metrics"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestBreakerOpensAtThreshold(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("object_detect_service", 3, 30*time.Second, WithClock(clk))

	for i := 0; i < 2; i++ {
		require.NoError(t, cb.Allow())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State())
	}
	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(10 * time.Second)
	err := cb.Allow()
	require.ErrorIs(t, err, ErrCircuitOpen)

	var open *OpenError
	require.True(t, errors.As(err, &open))
	assert.Equal(t, "object_detect_service", open.Backend)
	assert.Equal(t, 20*time.Second, open.RetryAfter)
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("face_detect_service", 1, 10*time.Second, WithClock(clk))

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clk.advance(10 * time.Second)
	require.NoError(t, cb.Allow(), "first lease after reset timeout is the probe")
	assert.Equal(t, StateHalfOpen, cb.State())

	err := cb.Allow()
	require.ErrorIs(t, err, ErrCircuitOpen, "second lease waits for the probe")
	var open *OpenError
	require.True(t, errors.As(err, &open))
	assert.Equal(t, probeRetryAfter, open.RetryAfter)

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	clk.advance(10 * time.Second)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	require.NoError(t, cb.Allow())
	require.NoError(t, cb.Allow(), "closed breaker admits concurrent leases")
}

func TestBreakerFailuresMustBeConsecutive(t *testing.T) {
	cb := NewCircuitBreaker("video_pre_service", 2, time.Minute)

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerDefaultsAndMetrics(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("defaults_backend", 0, 0, WithClock(clk))
	assert.Equal(t, defaultThreshold, cb.threshold)
	assert.Equal(t, defaultResetTimeout, cb.resetTimeout)

	trips := testutil.ToFloat64(metrics.CircuitBreakerTrips("defaults_backend", "threshold_exceeded"))
	for i := 0; i < defaultThreshold; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, trips+1, testutil.ToFloat64(metrics.CircuitBreakerTrips("defaults_backend", "threshold_exceeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CircuitBreakerStateGauge("defaults_backend", string(StateOpen))))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.CircuitBreakerStateGauge("defaults_backend", string(StateClosed))))
}
