// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/metrics"
	"github.com/ManuGH/streamstage/internal/telemetry"
)

// Observer is told about every job status transition a chain makes.
type Observer func(ctx context.Context, rec job.Record)

// Chain runs a fixed Spec against jobs, one stage after another.
type Chain struct {
	spec     Spec
	runner   *StageRunner
	observer Observer
	logger   zerolog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithObserver registers fn for status transitions.
func WithObserver(fn Observer) ChainOption {
	return func(c *Chain) { c.observer = fn }
}

// NewChain validates spec and copies it; later changes to the caller's
// slice do not affect the chain.
func NewChain(spec Spec, runner *StageRunner, opts ...ChainOption) (*Chain, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	c := &Chain{
		spec:   spec.clone(),
		runner: runner,
		logger: log.WithComponent("pipeline.chain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Spec returns a copy of the chain's spec.
func (c *Chain) Spec() Spec { return c.spec.clone() }

// Run executes every stage in order and returns the final artifact location.
// The first failing stage ends the run; later backends are never contacted.
// Run returns job.ErrBusy without touching j while another caller holds it.
func (c *Chain) Run(ctx context.Context, j *job.Job) (string, error) {
	if err := j.Claim(); err != nil {
		return "", err
	}
	defer j.Release()
	return c.run(ctx, j)
}

// run requires the caller to hold j's claim.
func (c *Chain) run(ctx context.Context, j *job.Job) (loc string, err error) {
	ctx = log.ContextWithJobID(ctx, j.ID)
	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.chain")
	span.SetAttributes(
		attribute.String(telemetry.PipelineKey, c.spec.Name),
		attribute.String(telemetry.JobIDKey, j.ID),
	)
	logger := log.WithContext(ctx, c.logger).With().Str(log.FieldPipeline, c.spec.Name).Logger()
	defer func() {
		span.SetAttributes(attribute.String(telemetry.JobStatusKey, string(j.Status)))
		telemetry.EndSpan(span, err)
		metrics.RecordChainRun(c.spec.Name, err == nil)
		telemetry.RecordChainOutcome(ctx, c.spec.Name, Kind(err))
	}()

	j.Pipeline = c.spec.Name
	origin := j.Dir
	logger.Info().
		Str(log.FieldEvent, "chain.start").
		Str(log.FieldLocation, origin).
		Int("stages", len(c.spec.Stages)).
		Msg("pipeline started")

	for i, stage := range c.spec.Stages {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &StageError{Stage: i, Backend: stage.Backend, Err: ctxErr}
			c.fail(ctx, j, err)
			return "", err
		}

		res := c.runner.Run(ctx, j, i, stage)
		if !res.OK() {
			c.fail(ctx, j, res.Err)
			logger.Warn().Err(res.Err).
				Str(log.FieldEvent, "chain.failed").
				Int(log.FieldStage, i).
				Str(log.FieldLocation, j.Dir).
				Msg("pipeline aborted")
			return "", res.Err
		}
		c.notify(ctx, j)
	}

	if err := j.Complete(); err != nil {
		return "", fmt.Errorf("complete job %s: %w", j.ID, err)
	}
	c.notify(ctx, j)
	logger.Info().
		Str(log.FieldEvent, "chain.done").
		Str(log.FieldLocation, j.Dir).
		Int(log.FieldChunks, len(j.Output)).
		Msg("pipeline completed")
	return j.Dir, nil
}

func (c *Chain) fail(ctx context.Context, j *job.Job, cause error) {
	if err := j.Fail(cause); err != nil {
		c.logger.Error().Err(err).Str(log.FieldJobID, j.ID).Msg("mark job failed")
	}
	c.notify(ctx, j)
}

func (c *Chain) notify(ctx context.Context, j *job.Job) {
	if c.observer != nil {
		c.observer(ctx, j.Snapshot())
	}
}
