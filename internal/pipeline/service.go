// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/metrics"
)

const defaultMaxConcurrentJobs = 4

// ServiceConfig tunes admission and failure handling.
type ServiceConfig struct {
	MaxConcurrentJobs int
	// DiscardSourceOnFailure removes the job's input file when its chain
	// fails. By default the file stays for inspection.
	DiscardSourceOnFailure bool
}

// Service exposes run(job) per configured pipeline.
type Service struct {
	chains  map[string]*Chain
	sem     *semaphore.Weighted
	store   job.Store
	discard bool
	logger  zerolog.Logger
}

// NewService builds one chain per spec. Every status transition is written
// to store.
func NewService(runner *StageRunner, specs map[string]Spec, store job.Store, cfg ServiceConfig) (*Service, error) {
	if store == nil {
		store = job.NewMemoryStore()
	}
	limit := cfg.MaxConcurrentJobs
	if limit <= 0 {
		limit = defaultMaxConcurrentJobs
	}
	s := &Service{
		chains:  make(map[string]*Chain, len(specs)),
		sem:     semaphore.NewWeighted(int64(limit)),
		store:   store,
		discard: cfg.DiscardSourceOnFailure,
		logger:  log.WithComponent("pipeline.service"),
	}
	for name, spec := range specs {
		if spec.Name == "" {
			spec.Name = name
		}
		c, err := NewChain(spec, runner, WithObserver(s.record))
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		s.chains[name] = c
	}
	return s, nil
}

// Pipelines lists the configured pipeline names, sorted.
func (s *Service) Pipelines() []string {
	out := make([]string, 0, len(s.chains))
	for name := range s.chains {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Spec returns the named pipeline's spec.
func (s *Service) Spec(name string) (Spec, bool) {
	c, ok := s.chains[name]
	if !ok {
		return Spec{}, false
	}
	return c.Spec(), true
}

// Run admits j, runs the named pipeline and returns the final artifact path.
// It blocks while MaxConcurrentJobs jobs are already running. A job claimed
// elsewhere is rejected with job.ErrBusy and left untouched.
func (s *Service) Run(ctx context.Context, pipeline string, j *job.Job) (string, error) {
	c, ok := s.chains[pipeline]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPipeline, pipeline)
	}
	if err := j.Claim(); err != nil {
		return "", err
	}
	defer j.Release()

	ctx = log.ContextWithJobID(ctx, j.ID)
	logger := log.WithContext(ctx, s.logger)

	j.Pipeline = pipeline
	s.record(ctx, j.Snapshot())

	if err := s.sem.Acquire(ctx, 1); err != nil {
		if ferr := j.Fail(err); ferr == nil {
			s.record(ctx, j.Snapshot())
		}
		return "", fmt.Errorf("admit job %s: %w", j.ID, err)
	}
	metrics.JobsInflight.Inc()
	defer func() {
		metrics.JobsInflight.Dec()
		s.sem.Release(1)
	}()

	source := j.Path()
	if _, err := c.run(ctx, j); err != nil {
		if s.discard {
			s.discardSource(logger, source)
		}
		return "", err
	}
	return j.Path(), nil
}

// Get returns the stored record of a job.
func (s *Service) Get(ctx context.Context, id string) (job.Record, error) {
	return s.store.Get(ctx, id)
}

// List returns all stored job records.
func (s *Service) List(ctx context.Context) ([]job.Record, error) {
	return s.store.List(ctx)
}

func (s *Service) record(ctx context.Context, rec job.Record) {
	// Terminal states must land even when the caller has gone away.
	if err := s.store.Put(context.WithoutCancel(ctx), rec); err != nil {
		logger := log.WithContext(ctx, s.logger)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "job.record_failed").
			Str("status", string(rec.Status)).
			Msg("job status not persisted")
	}
}

func (s *Service) discardSource(logger zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("discard source failed")
		return
	}
	logger.Info().
		Str(log.FieldEvent, "job.source_discarded").
		Str(log.FieldPath, path).
		Msg("source removed after failed pipeline")
}
