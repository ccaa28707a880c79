// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordChainOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })

	ctx := context.Background()
	RecordChainOutcome(ctx, "withpre", "transport")
	RecordChainOutcome(ctx, "withpre", "transport")
	RecordChainOutcome(ctx, "face", "none")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	got := map[attribute.Distinct]int64{}
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != ChainOutcomeMetric {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				got[dp.Attributes.Equivalent()] = dp.Value
			}
		}
	}
	require.True(t, found)

	transport := attribute.NewSet(attribute.String(PipelineKey, "withpre"), attribute.String(OutcomeKindKey, "transport"))
	ok := attribute.NewSet(attribute.String(PipelineKey, "face"), attribute.String(OutcomeKindKey, "none"))
	assert.Equal(t, int64(2), got[transport.Equivalent()])
	assert.Equal(t, int64(1), got[ok.Equivalent()])
}
