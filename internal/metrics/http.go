// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamstage_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2.0, 14), // 10ms to ~80s
	}, []string{"method", "path", "status"})

	// HTTPRequestsInFlight is the number of HTTP requests being served.
	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamstage_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	// UploadBytes counts bytes of accepted video uploads.
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamstage_upload_bytes_total",
		Help: "Total bytes of accepted video uploads",
	})

	// UploadsRejected counts uploads refused before a job was created.
	UploadsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_uploads_rejected_total",
		Help: "Total rejected video uploads",
	}, []string{"reason"}) // reason=too_large|malformed|io
)

// ObserveHTTPRequest records one served request. path must be a route
// pattern, not the raw URL, to keep cardinality bounded.
func ObserveHTTPRequest(method, path string, status int, seconds float64) {
	httpRequestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(seconds)
}
