// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"sort"

	"github.com/ManuGH/streamstage/internal/rpc"
	"github.com/ManuGH/streamstage/internal/validate"
)

// Validate checks the effective configuration, including that every stage of
// every pipeline names a configured backend.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.Directory("dataDir", cfg.DataDir, false)
	v.LogLevel("logLevel", cfg.LogLevel)

	v.HostPort("api.listenAddr", cfg.API.ListenAddr)
	v.Range("api.rateLimit", cfg.API.RateLimit, 0, 1_000_000)
	v.PositiveBytes("api.maxUploadBytes", cfg.API.MaxUploadBytes)
	v.PositiveDuration("api.shutdownTimeout", cfg.API.ShutdownTimeout)

	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := cfg.Backends[name]
		field := "backends." + name
		v.BackendAddress(field+".address", b.Address)
		switch {
		case b.Method != "":
			v.FullMethod(field+".method", b.Method)
		case rpc.DefaultMethods[name] == "":
			v.AddError(field+".method", "method is required for backends without a default", b.Method)
		}
	}

	specs := cfg.PipelineSpecs()
	pipelines := make([]string, 0, len(specs))
	for name := range specs {
		pipelines = append(pipelines, name)
	}
	sort.Strings(pipelines)
	for _, name := range pipelines {
		spec := specs[name]
		if len(spec.Stages) == 0 {
			v.AddError("pipelines."+name, "pipeline has no stages", name)
		}
		for i, st := range spec.Stages {
			field := fmt.Sprintf("pipelines.%s.stages[%d]", name, i)
			if _, ok := cfg.Backends[st.Backend]; !ok {
				v.AddError(field+".backend", fmt.Sprintf("backend %q is not configured", st.Backend), st.Backend)
			}
			v.LocalPath(field+".target", st.Target)
		}
	}

	v.Range("pipeline.maxConcurrentJobs", cfg.Pipeline.MaxConcurrentJobs, 1, 1024)
	v.Range("pipeline.jpegQuality", cfg.Pipeline.JPEGQuality, 1, 100)
	v.NonNegative("pipeline.sendRateLimit", cfg.Pipeline.SendRateLimit)
	v.PositiveDuration("pipeline.drainGrace", cfg.Pipeline.DrainGrace)

	v.NotEmpty("ffmpeg.bin", cfg.FFmpeg.Bin)

	v.OneOf("store.backend", cfg.Store.Backend, []string{"memory", "sqlite", "badger", "redis"})
	if cfg.Store.Backend == "redis" {
		v.HostPort("store.redisAddr", cfg.Store.RedisAddr)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("telemetry.samplingRate", cfg.Telemetry.SamplingRate)
	}

	v.Positive("breaker.threshold", cfg.Breaker.Threshold)
	v.PositiveDuration("breaker.resetTimeout", cfg.Breaker.ResetTimeout)

	return v.Err()
}
