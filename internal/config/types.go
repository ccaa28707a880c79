// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// AppConfig is the effective runtime configuration.
type AppConfig struct {
	Version    string
	DataDir    string
	LogLevel   string
	LogService string

	API       APIConfig
	Backends  map[string]BackendConfig
	Pipelines map[string]PipelineConfig
	Pipeline  PipelineRuntimeConfig
	FFmpeg    FFmpegConfig
	Store     StoreConfig
	Telemetry TelemetryConfig
	Breaker   BreakerConfig
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	ListenAddr      string
	RateLimit       int // requests per minute per client IP; 0 disables
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	AllowedOrigins  []string // CORS; "*" allows any origin, empty disables CORS
}

// BackendConfig locates one detection backend.
type BackendConfig struct {
	Address string `yaml:"address"`
	Method  string `yaml:"method,omitempty"`
}

// PipelineConfig declares an ordered list of stages.
type PipelineConfig struct {
	Stages []StageConfig `yaml:"stages"`
}

// StageConfig is one backend and the location its artifact lands in.
type StageConfig struct {
	Backend string `yaml:"backend"`
	Target  string `yaml:"target"`
}

// PipelineRuntimeConfig tunes job execution.
type PipelineRuntimeConfig struct {
	MaxConcurrentJobs      int
	JPEGQuality            int
	SendRateLimit          float64 // frames per second, 0 = unpaced
	DrainGrace             time.Duration
	DiscardSourceOnFailure bool
}

// FFmpegConfig locates the decoder binaries.
type FFmpegConfig struct {
	Bin         string
	FFprobeBin  string
	KillTimeout time.Duration
}

// StoreConfig selects the job store backend.
type StoreConfig struct {
	Backend   string // memory|sqlite|badger|redis
	Path      string
	RedisAddr string
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string // grpc|http
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// BreakerConfig configures the per-backend circuit breaker.
type BreakerConfig struct {
	Threshold    int
	ResetTimeout time.Duration
}

// FileConfig is the YAML representation. Pointer fields distinguish
// "absent" from zero values; durations are Go duration strings.
type FileConfig struct {
	DataDir    string `yaml:"dataDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`

	API       *APIFileConfig            `yaml:"api,omitempty"`
	Backends  map[string]BackendConfig  `yaml:"backends,omitempty"`
	Pipelines map[string]PipelineConfig `yaml:"pipelines,omitempty"`
	Pipeline  *PipelineFileConfig       `yaml:"pipeline,omitempty"`
	FFmpeg    *FFmpegFileConfig         `yaml:"ffmpeg,omitempty"`
	Store     *StoreFileConfig          `yaml:"store,omitempty"`
	Telemetry *TelemetryFileConfig      `yaml:"telemetry,omitempty"`
	Breaker   *BreakerFileConfig        `yaml:"breaker,omitempty"`
}

type APIFileConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty"`
	RateLimit       *int   `yaml:"rateLimit,omitempty"`
	MaxUploadBytes  *int64 `yaml:"maxUploadBytes,omitempty"`
	ShutdownTimeout string   `yaml:"shutdownTimeout,omitempty"`
	AllowedOrigins  []string `yaml:"allowedOrigins,omitempty"`
}

type PipelineFileConfig struct {
	MaxConcurrentJobs      *int     `yaml:"maxConcurrentJobs,omitempty"`
	JPEGQuality            *int     `yaml:"jpegQuality,omitempty"`
	SendRateLimit          *float64 `yaml:"sendRateLimit,omitempty"`
	DrainGrace             string   `yaml:"drainGrace,omitempty"`
	DiscardSourceOnFailure *bool    `yaml:"discardSourceOnFailure,omitempty"`
}

type FFmpegFileConfig struct {
	Bin         string `yaml:"bin,omitempty"`
	FFprobeBin  string `yaml:"ffprobeBin,omitempty"`
	KillTimeout string `yaml:"killTimeout,omitempty"`
}

type StoreFileConfig struct {
	Backend   string `yaml:"backend,omitempty"`
	Path      string `yaml:"path,omitempty"`
	RedisAddr string `yaml:"redisAddr,omitempty"`
}

type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
}

type BreakerFileConfig struct {
	Threshold    *int   `yaml:"threshold,omitempty"`
	ResetTimeout string `yaml:"resetTimeout,omitempty"`
}
