// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_decoder_signals_total",
		Help: "Signals sent to decoder process groups",
	}, []string{"signal", "result"})

	procExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamstage_decoder_exits_total",
		Help: "Decoder process exits observed during termination",
	}, []string{"outcome"})
)

// IncProcSignal counts one signal sent to a decoder process group.
func IncProcSignal(signal, result string) {
	procSignals.WithLabelValues(signal, result).Inc()
}

// IncProcExit counts one terminated decoder process by outcome.
func IncProcExit(outcome string) {
	procExits.WithLabelValues(outcome).Inc()
}
