// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "streamstage_circuit_breaker_state",
		Help: "Breaker position per backend; the active state is 1",
	}, []string{"backend", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_circuit_breaker_trips_total",
		Help: "Transitions of a backend breaker into the open state",
	}, []string{"backend", "reason"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetCircuitBreakerState marks state as the active position for backend.
func SetCircuitBreakerState(backend, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(backend, s).Set(v)
	}
}

func RecordCircuitBreakerTrip(backend, reason string) {
	breakerTrips.WithLabelValues(backend, reason).Inc()
}

// CircuitBreakerTrips exposes one trip series for assertions.
func CircuitBreakerTrips(backend, reason string) prometheus.Counter {
	return breakerTrips.WithLabelValues(backend, reason)
}

// CircuitBreakerStateGauge exposes one state series for assertions.
func CircuitBreakerStateGauge(backend, state string) prometheus.Gauge {
	return breakerState.WithLabelValues(backend, state)
}
