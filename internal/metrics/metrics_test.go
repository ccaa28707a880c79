// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	m, ok := o.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestObserveStageLabelsResult(t *testing.T) {
	before := histogramCount(t, StageDuration.WithLabelValues("metrics_test_backend", "failure"))
	ObserveStage("metrics_test_backend", false, 0.2)
	ObserveStage("metrics_test_backend", true, 0.1)
	assert.Equal(t, before+1, histogramCount(t, StageDuration.WithLabelValues("metrics_test_backend", "failure")))
}

func TestRecordChainRun(t *testing.T) {
	c := ChainRuns.WithLabelValues("metrics_test_pipeline", "success")
	before := testutil.ToFloat64(c)
	RecordChainRun("metrics_test_pipeline", true)
	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestObserveHTTPRequestUsesStatusCode(t *testing.T) {
	ObserveHTTPRequest("POST", "/api/video/face", 413, 0.01)
	o := httpRequestDuration.WithLabelValues("POST", "/api/video/face", "413")
	assert.GreaterOrEqual(t, histogramCount(t, o), uint64(1))
}

func TestProcessCounters(t *testing.T) {
	sig := procSignals.WithLabelValues("SIGTERM", "sent")
	exit := procExits.WithLabelValues("graceful")
	sigBefore, exitBefore := testutil.ToFloat64(sig), testutil.ToFloat64(exit)

	IncProcSignal("SIGTERM", "sent")
	IncProcExit("graceful")

	assert.Equal(t, sigBefore+1, testutil.ToFloat64(sig))
	assert.Equal(t, exitBefore+1, testutil.ToFloat64(exit))
}

func TestCircuitBreakerStateIsExclusive(t *testing.T) {
	SetCircuitBreakerState("metrics_test_backend", "half-open")
	SetCircuitBreakerState("metrics_test_backend", "open")
	for state, want := range map[string]float64{"closed": 0, "half-open": 0, "open": 1} {
		assert.Equal(t, want, testutil.ToFloat64(CircuitBreakerStateGauge("metrics_test_backend", state)), state)
	}
}
