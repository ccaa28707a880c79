// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesSent counts frame messages written to a backend stream (terminal frame included).
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_frames_sent_total",
		Help: "Total frame messages sent to backend streams",
	}, []string{"backend"})

	// ChunksReceived counts response chunks read from a backend stream.
	ChunksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_chunks_received_total",
		Help: "Total response chunks received from backend streams",
	}, []string{"backend"})

	// ExchangeErrors counts failed exchanges by failure kind.
	ExchangeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_exchange_errors_total",
		Help: "Total failed backend exchanges",
	}, []string{"backend", "kind"}) // kind=acquire|open|cancelled|source|stream

	// PoolAcquisitions counts connection leases handed out per backend.
	PoolAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_pool_acquisitions_total",
		Help: "Total connection leases acquired per backend",
	}, []string{"backend"})

	// StageDuration tracks wall time of a single stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamstage_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.05, 2.0, 12), // 50ms to ~100s
	}, []string{"backend", "result"})

	// ChainRuns counts chain executions by outcome.
	ChainRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_chain_runs_total",
		Help: "Total pipeline chain executions",
	}, []string{"pipeline", "result"}) // result=success|failure

	// JobsInflight is the number of jobs currently holding an admission slot.
	JobsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamstage_jobs_inflight",
		Help: "Jobs currently executing a pipeline",
	})
)

// ObserveStage records a stage duration with its result label.
func ObserveStage(backend string, ok bool, seconds float64) {
	StageDuration.WithLabelValues(backend, resultLabel(ok)).Observe(seconds)
}

// RecordChainRun increments the chain counter for the given pipeline.
func RecordChainRun(pipeline string, ok bool) {
	ChainRuns.WithLabelValues(pipeline, resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
