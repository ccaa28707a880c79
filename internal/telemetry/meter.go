// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChainOutcomeMetric counts finished chain runs by pipeline and failure kind.
const ChainOutcomeMetric = "streamstage.chain.outcome"

// Outcome attribute keys (frozen).
const (
	OutcomeKindKey = "outcome.kind"
)

// RecordChainOutcome adds one chain run to ChainOutcomeMetric. The global
// meter provider is looked up per call so tests can swap it in.
func RecordChainOutcome(ctx context.Context, pipeline, kind string) {
	meter := otel.GetMeterProvider().Meter("streamstage.pipeline")
	counter, err := meter.Int64Counter(ChainOutcomeMetric,
		metric.WithDescription("Finished pipeline chain runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String(PipelineKey, pipeline),
		attribute.String(OutcomeKindKey, kind),
	))
}
