// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires configuration into a running service and owns its
// lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ManuGH/streamstage/internal/api"
	"github.com/ManuGH/streamstage/internal/artifact"
	"github.com/ManuGH/streamstage/internal/config"
	"github.com/ManuGH/streamstage/internal/ingest"
	"github.com/ManuGH/streamstage/internal/job"
	"github.com/ManuGH/streamstage/internal/log"
	"github.com/ManuGH/streamstage/internal/media"
	"github.com/ManuGH/streamstage/internal/media/ffmpeg"
	"github.com/ManuGH/streamstage/internal/pipeline"
	"github.com/ManuGH/streamstage/internal/rpc"
	"github.com/ManuGH/streamstage/internal/telemetry"
)

// ServiceName identifies the process in logs and traces.
const ServiceName = "streamstage"

// App owns every long-lived component built from one AppConfig.
type App struct {
	cfg       config.AppConfig
	logger    zerolog.Logger
	telemetry *telemetry.Provider
	pool      *rpc.ConnPool
	store     job.Store
	service   *pipeline.Service
	api       *api.Server
}

type options struct {
	opener   media.Opener
	dialOpts []grpc.DialOption
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

// WithOpener replaces the ffmpeg-backed frame decoder.
func WithOpener(o media.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithDialOptions replaces the backend dial options.
func WithDialOptions(dialOpts ...grpc.DialOption) Option {
	return func(opts *options) { opts.dialOpts = dialOpts }
}

// New builds the app. On error every component built so far is closed again.
func New(ctx context.Context, cfg config.AppConfig, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	poolOpts := []rpc.PoolOption{rpc.WithBreaker(cfg.Breaker.Threshold, cfg.Breaker.ResetTimeout)}
	if len(o.dialOpts) > 0 {
		poolOpts = append(poolOpts, rpc.WithDialOptions(o.dialOpts...))
	}
	a.pool = rpc.NewConnPool(cfg.RPCBackends(), poolOpts...)

	a.store, err = job.OpenStore(ctx, job.StoreConfig{
		Backend:   cfg.Store.Backend,
		Path:      cfg.Store.Path,
		RedisAddr: cfg.Store.RedisAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	opener := o.opener
	if opener == nil {
		ff := ffmpeg.NewOpener(cfg.FFmpeg.Bin, cfg.FFmpeg.FFprobeBin)
		ff.KillTimeout = cfg.FFmpeg.KillTimeout
		opener = ff
	}

	runner := pipeline.NewStageRunner(
		opener,
		rpc.NewDuplexClient(a.pool, rpc.WithDrainGrace(cfg.Pipeline.DrainGrace)),
		artifact.NewFileStore(cfg.DataDir),
		media.WithJPEGQuality(cfg.Pipeline.JPEGQuality),
		media.WithRateLimit(cfg.Pipeline.SendRateLimit),
	)
	a.service, err = pipeline.NewService(runner, cfg.PipelineSpecs(), a.store, pipeline.ServiceConfig{
		MaxConcurrentJobs:      cfg.Pipeline.MaxConcurrentJobs,
		DiscardSourceOnFailure: cfg.Pipeline.DiscardSourceOnFailure,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipelines: %w", err)
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.LogService
	}
	a.api = api.New(a.service, ingest.New(cfg.DataDir, cfg.API.MaxUploadBytes), api.Config{
		Version:        cfg.Version,
		RateLimit:      cfg.API.RateLimit,
		AllowedOrigins: cfg.API.AllowedOrigins,
		TracingService: tracing,
	})
	return a, nil
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler { return a.api.Handler() }

// Service returns the pipeline service.
func (a *App) Service() *pipeline.Service { return a.service }

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.cfg.API.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.API.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is done, then shuts down gracefully
// within the configured timeout and releases every component.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	// Requests keep their own contexts so in-flight jobs can finish during
	// the shutdown window.
	srv := a.api.HTTPServer(ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().
			Str(log.FieldEvent, "http.listen").
			Str("addr", ln.Addr().String()).
			Strs("pipelines", a.service.Pipelines()).
			Msg("HTTP server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.API.ShutdownTimeout)
		defer cancel()
		a.logger.Info().Str(log.FieldEvent, "http.shutdown").Msg("shutting down HTTP server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return a.Close(shutdownCtx)
	})
	return g.Wait()
}

// Close releases the backend pool, the job store and the tracer provider.
// It is safe to call on a partially built app.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend pool: %w", err))
		}
		a.pool = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job store: %w", err))
		}
		a.store = nil
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
		a.telemetry = nil
	}
	return errors.Join(errs...)
}
