// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamstage/internal/artifact"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/metrics"
	"github.com/ManuGH/streamstage/internal/rpc"
	"github.com/ManuGH/streamstage/internal/telemetry"
)

// Exchanger performs one duplex exchange. *rpc.DuplexClient implements it.
type Exchanger interface {
	Exchange(ctx context.Context, backend string, frames rpc.FrameReader, sink func(rpc.Chunk)) (rpc.Summary, error)
}

// StageResult is the ephemeral outcome of one stage.
type StageResult struct {
	Stage    int
	Backend  string
	Location string // new job location; empty on failure
	Chunks   int
	FPS      float64
	Err      error // *StageError on failure
}

// OK reports whether the stage succeeded.
func (r StageResult) OK() bool { return r.Err == nil }

// StageRunner executes single stages. It holds no per-job state and may be
// shared by concurrent chains.
type StageRunner struct {
	Opener        media.Opener
	Client        Exchanger
	Artifacts     artifact.Store
	SourceOptions []media.Option
	Logger        zerolog.Logger
}

// NewStageRunner wires a runner with the component logger.
func NewStageRunner(opener media.Opener, client Exchanger, artifacts artifact.Store, opts ...media.Option) *StageRunner {
	return &StageRunner{
		Opener:        opener,
		Client:        client,
		Artifacts:     artifacts,
		SourceOptions: opts,
		Logger:        log.WithComponent("pipeline.stage"),
	}
}

// Run executes stage index of j. The caller must hold j's claim.
//
// On success j.Dir is the stage's artifact location. On failure j.Dir is
// unchanged; j.Output keeps whatever chunks arrived before the failure.
func (r *StageRunner) Run(ctx context.Context, j *job.Job, index int, stage StageSpec) (res StageResult) {
	res = StageResult{Stage: index, Backend: stage.Backend}
	start := time.Now()

	ctx, span := telemetry.Tracer("pipeline").Start(ctx, "pipeline.stage",
		trace.WithAttributes(telemetry.StageAttributes(j.ID, index, stage.Backend, stage.Target)...))
	logger := log.WithContext(ctx, r.Logger).With().
		Int(log.FieldStage, index).
		Str(log.FieldBackend, stage.Backend).
		Str(log.FieldTarget, stage.Target).
		Logger()

	defer func() {
		span.SetAttributes(attribute.Int(telemetry.ChunksKey, res.Chunks))
		telemetry.EndSpan(span, res.Err)
		metrics.ObserveStage(stage.Backend, res.OK(), time.Since(start).Seconds())
	}()

	fail := func(err error) StageResult {
		res.Err = &StageError{Stage: index, Backend: stage.Backend, Err: err}
		res.Chunks = len(j.Output)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "stage.failed").
			Str("kind", Kind(err)).
			Int(log.FieldChunks, res.Chunks).
			Str(log.FieldLocation, j.Dir).
			Msg("stage failed; job location left unchanged")
		return res
	}

	if err := j.EnterStage(index); err != nil {
		return fail(err)
	}

	input := j.Path()
	src, err := media.Open(ctx, r.Opener, input, j.ID, r.SourceOptions...)
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Debug().Err(err).Str(log.FieldPath, input).Msg("source close")
		}
	}()

	j.FPS = src.FPS()
	res.FPS = j.FPS
	span.SetAttributes(attribute.Float64(telemetry.FPSKey, j.FPS))
	logger.Info().
		Str(log.FieldEvent, "stage.start").
		Str(log.FieldPath, input).
		Float64(log.FieldNativeFPS, src.NativeFPS()).
		Float64(log.FieldFPS, j.FPS).
		Msg("stage started")

	j.ResetOutput()
	sum, err := r.Client.Exchange(ctx, stage.Backend, src, func(c rpc.Chunk) {
		j.Append(c.Data)
	})
	if err != nil {
		return fail(err)
	}

	location, err := r.Artifacts.Save(ctx, stage.Target, j.ID, j.Filename, j.Output)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrPersistenceFailure, err))
	}

	j.Dir = location
	res.Location = location
	res.Chunks = len(j.Output)
	logger.Info().
		Str(log.FieldEvent, "stage.done").
		Int(log.FieldFrames, sum.FramesSent).
		Int(log.FieldChunks, res.Chunks).
		Str(log.FieldLocation, location).
		Dur("duration", time.Since(start)).
		Msg("stage completed")
	return res
}
