// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the HTTP surface: upload a video, run a pipeline over it
// and stream the resulting artifact back.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/streamstage/internal/api/middleware"
	"github.com/ManuGH/streamstage/internal/ingest"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/pipeline"
)

// Runner executes named pipelines and exposes their job records.
type Runner interface {
	Run(ctx context.Context, pipeline string, j *job.Job) (string, error)
	Get(ctx context.Context, id string) (job.Record, error)
	List(ctx context.Context) ([]job.Record, error)
	Pipelines() []string
}

// Config tunes the HTTP surface.
type Config struct {
	Version        string
	RateLimit      int // requests per minute per client IP; 0 disables
	AllowedOrigins []string
	TracingService string // empty disables request tracing
}

// Server routes HTTP requests to the pipeline service.
type Server struct {
	runner Runner
	ingest *ingest.Ingestor
	cfg    Config
	logger zerolog.Logger
	router chi.Router
}

// New wires the routes. The upload size cap is taken from in.
func New(runner Runner, in *ingest.Ingestor, cfg Config) *Server {
	s := &Server{
		runner: runner,
		ingest: in,
		cfg:    cfg,
		logger: log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins: s.cfg.AllowedOrigins,
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(middleware.RateLimit(middleware.RateLimitConfig{
				RequestLimit: s.cfg.RateLimit,
				WindowSize:   time.Minute,
			}))
		}
		r.Post("/video/face", s.handleRun(pipeline.PipelineFace))
		r.Post("/object_detection/test", s.handleRun(pipeline.PipelineObject))
		r.Post("/object_detection/withpre", s.handleRun(pipeline.PipelineWithPre))
		r.Post("/pipelines/{name}", s.handleRunNamed)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server bound to addr serving Handler. Write
// timeouts are left unset: responses last as long as the pipeline runs.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
