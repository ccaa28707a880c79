// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Well-known backend names and their default addresses.
var defaultBackends = map[string]BackendConfig{
	"video_pre_service":     {Address: "localhost:50051"},
	"face_detect_service":   {Address: "localhost:50052"},
	"object_detect_service": {Address: "localhost:50053"},
}

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Order: defaults -> strict file parse -> env -> normalise -> validate.
func (l *Loader) Load() (AppConfig, error) {
	var cfg AppConfig
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	cfg.FFmpeg.FFprobeBin = ResolveFFprobeBin(cfg.FFmpeg.FFprobeBin, cfg.FFmpeg.Bin)
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Path == "" && (cfg.Store.Backend == "sqlite" || cfg.Store.Backend == "badger") {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "store", cfg.Store.Backend)
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.DataDir = "data"
	cfg.LogLevel = "info"
	cfg.LogService = "streamstage"

	cfg.API = APIConfig{
		ListenAddr:      ":8000",
		RateLimit:       60,
		MaxUploadBytes:  512 << 20,
		ShutdownTimeout: 15 * time.Second,
	}

	cfg.Backends = make(map[string]BackendConfig, len(defaultBackends))
	for name, b := range defaultBackends {
		cfg.Backends[name] = b
	}
	cfg.Pipelines = map[string]PipelineConfig{}

	cfg.Pipeline = PipelineRuntimeConfig{
		MaxConcurrentJobs: 4,
		JPEGQuality:       90,
		DrainGrace:        10 * time.Second,
	}
	cfg.FFmpeg = FFmpegConfig{Bin: "ffmpeg", KillTimeout: 5 * time.Second}
	cfg.Store = StoreConfig{Backend: "memory"}
	cfg.Telemetry = TelemetryConfig{Exporter: "grpc", Endpoint: "localhost:4317", SamplingRate: 1.0, Environment: "production"}
	cfg.Breaker = BreakerConfig{Threshold: 5, ResetTimeout: 30 * time.Second}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields fail with ErrUnknownConfigField.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %q (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseFile(data)
}

func parseFile(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) error {
	setString(&cfg.DataDir, f.DataDir)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogService, f.LogService)

	if a := f.API; a != nil {
		setString(&cfg.API.ListenAddr, a.ListenAddr)
		setPtr(&cfg.API.RateLimit, a.RateLimit)
		setPtr(&cfg.API.MaxUploadBytes, a.MaxUploadBytes)
		if err := setDuration(&cfg.API.ShutdownTimeout, "api.shutdownTimeout", a.ShutdownTimeout); err != nil {
			return err
		}
		if a.AllowedOrigins != nil {
			cfg.API.AllowedOrigins = append([]string(nil), a.AllowedOrigins...)
		}
	}
	for name, b := range f.Backends {
		cfg.Backends[name] = b
	}
	for name, p := range f.Pipelines {
		cfg.Pipelines[name] = PipelineConfig{Stages: append([]StageConfig(nil), p.Stages...)}
	}
	if p := f.Pipeline; p != nil {
		setPtr(&cfg.Pipeline.MaxConcurrentJobs, p.MaxConcurrentJobs)
		setPtr(&cfg.Pipeline.JPEGQuality, p.JPEGQuality)
		setPtr(&cfg.Pipeline.SendRateLimit, p.SendRateLimit)
		setPtr(&cfg.Pipeline.DiscardSourceOnFailure, p.DiscardSourceOnFailure)
		if err := setDuration(&cfg.Pipeline.DrainGrace, "pipeline.drainGrace", p.DrainGrace); err != nil {
			return err
		}
	}
	if ff := f.FFmpeg; ff != nil {
		setString(&cfg.FFmpeg.Bin, ff.Bin)
		setString(&cfg.FFmpeg.FFprobeBin, ff.FFprobeBin)
		if err := setDuration(&cfg.FFmpeg.KillTimeout, "ffmpeg.killTimeout", ff.KillTimeout); err != nil {
			return err
		}
	}
	if s := f.Store; s != nil {
		setString(&cfg.Store.Backend, s.Backend)
		setString(&cfg.Store.Path, s.Path)
		setString(&cfg.Store.RedisAddr, s.RedisAddr)
	}
	if t := f.Telemetry; t != nil {
		setPtr(&cfg.Telemetry.Enabled, t.Enabled)
		setString(&cfg.Telemetry.Exporter, t.Exporter)
		setString(&cfg.Telemetry.Endpoint, t.Endpoint)
		setPtr(&cfg.Telemetry.SamplingRate, t.SamplingRate)
		setString(&cfg.Telemetry.Environment, t.Environment)
	}
	if b := f.Breaker; b != nil {
		setPtr(&cfg.Breaker.Threshold, b.Threshold)
		if err := setDuration(&cfg.Breaker.ResetTimeout, "breaker.resetTimeout", b.ResetTimeout); err != nil {
			return err
		}
	}
	return nil
}

// mergeEnvConfig applies STREAMSTAGE_* overrides; env has the highest precedence.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.DataDir = l.envString(EnvPrefix+"DATA", cfg.DataDir)
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)

	cfg.API.ListenAddr = l.envString(EnvPrefix+"LISTEN", cfg.API.ListenAddr)
	cfg.API.RateLimit = l.envInt(EnvPrefix+"RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.MaxUploadBytes = l.envInt64(EnvPrefix+"MAX_UPLOAD_BYTES", cfg.API.MaxUploadBytes)
	cfg.API.ShutdownTimeout = l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)
	if origins := l.envString(EnvPrefix+"ALLOWED_ORIGINS", ""); origins != "" {
		cfg.API.AllowedOrigins = splitList(origins)
	}

	names := make([]string, 0, len(cfg.Backends))
	for name := range cfg.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b := cfg.Backends[name]
		b.Address = l.envString(BackendEnvKey(name, "ADDR"), b.Address)
		b.Method = l.envString(BackendEnvKey(name, "METHOD"), b.Method)
		cfg.Backends[name] = b
	}

	cfg.Pipeline.MaxConcurrentJobs = l.envInt(EnvPrefix+"MAX_CONCURRENT_JOBS", cfg.Pipeline.MaxConcurrentJobs)
	cfg.Pipeline.JPEGQuality = l.envInt(EnvPrefix+"JPEG_QUALITY", cfg.Pipeline.JPEGQuality)
	cfg.Pipeline.SendRateLimit = l.envFloat(EnvPrefix+"SEND_RATE_LIMIT", cfg.Pipeline.SendRateLimit)
	cfg.Pipeline.DrainGrace = l.envDuration(EnvPrefix+"DRAIN_GRACE", cfg.Pipeline.DrainGrace)
	cfg.Pipeline.DiscardSourceOnFailure = l.envBool(EnvPrefix+"DISCARD_SOURCE_ON_FAILURE", cfg.Pipeline.DiscardSourceOnFailure)

	cfg.FFmpeg.Bin = l.envString(EnvPrefix+"FFMPEG_BIN", cfg.FFmpeg.Bin)
	cfg.FFmpeg.FFprobeBin = l.envString(EnvPrefix+"FFPROBE_BIN", cfg.FFmpeg.FFprobeBin)
	cfg.FFmpeg.KillTimeout = l.envDuration(EnvPrefix+"FFMPEG_KILL_TIMEOUT", cfg.FFmpeg.KillTimeout)

	cfg.Store.Backend = l.envString(EnvPrefix+"STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString(EnvPrefix+"STORE_PATH", cfg.Store.Path)
	cfg.Store.RedisAddr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Store.RedisAddr)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)

	cfg.Breaker.Threshold = l.envInt(EnvPrefix+"BREAKER_THRESHOLD", cfg.Breaker.Threshold)
	cfg.Breaker.ResetTimeout = l.envDuration(EnvPrefix+"BREAKER_RESET_TIMEOUT", cfg.Breaker.ResetTimeout)
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, field, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	*dst = d
	return nil
}
