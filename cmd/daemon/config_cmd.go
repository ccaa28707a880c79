// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/streamstage/internal/config"
)

func runConfigCLI(args []string) int {
	return runConfig(args, os.Stdout, os.Stderr)
}

func runConfig(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stderr)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  streamstage config validate [--file|-f config.yaml]")
	fmt.Fprintln(w, "  streamstage config dump [--file|-f config.yaml] [--format=yaml|json]")
}

// resolveDefaultConfigPath returns $STREAMSTAGE_DATA/config.yaml if it exists.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv(config.EnvPrefix + "DATA"))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}

func configFlags(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var file string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	return fs, &file
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlags("streamstage config validate", stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	if configPath == "" {
		fmt.Fprintln(stderr, "Error: --file is required (no config.yaml found in $"+config.EnvPrefix+"DATA)")
		return 2
	}

	if _, err := config.NewLoader(configPath, version).Load(); err != nil {
		fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", configPath, err)
		return 1
	}
	fmt.Fprintf(stdout, "%s is valid\n", configPath)
	return 0
}

// effectiveConfig is the dump view of AppConfig.
type effectiveConfig struct {
	Version   string                          `json:"version" yaml:"version"`
	DataDir   string                          `json:"dataDir" yaml:"dataDir"`
	LogLevel  string                          `json:"logLevel" yaml:"logLevel"`
	API       config.APIConfig                `json:"api" yaml:"api"`
	Backends  map[string]config.BackendConfig `json:"backends" yaml:"backends"`
	Pipelines map[string][]string             `json:"pipelines" yaml:"pipelines"`
	Pipeline  config.PipelineRuntimeConfig    `json:"pipeline" yaml:"pipeline"`
	FFmpeg    config.FFmpegConfig             `json:"ffmpeg" yaml:"ffmpeg"`
	Store     config.StoreConfig              `json:"store" yaml:"store"`
	Telemetry config.TelemetryConfig          `json:"telemetry" yaml:"telemetry"`
	Breaker   config.BreakerConfig            `json:"breaker" yaml:"breaker"`
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	fs, file := configFlags("streamstage config dump", stderr)
	format := fs.String("format", "yaml", "output format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	configPath := strings.TrimSpace(*file)
	if configPath == "" {
		configPath = resolveDefaultConfigPath()
	}
	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	out := effectiveConfig{
		Version:   cfg.Version,
		DataDir:   cfg.DataDir,
		LogLevel:  cfg.LogLevel,
		API:       cfg.API,
		Backends:  cfg.Backends,
		Pipelines: map[string][]string{},
		Pipeline:  cfg.Pipeline,
		FFmpeg:    cfg.FFmpeg,
		Store:     cfg.Store,
		Telemetry: cfg.Telemetry,
		Breaker:   cfg.Breaker,
	}
	for name, spec := range cfg.PipelineSpecs() {
		for _, st := range spec.Stages {
			out.Pipelines[name] = append(out.Pipelines[name], st.Backend+" -> "+st.Target)
		}
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "encode: %v\n", err)
			return 1
		}
	case "yaml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(stderr, "encode: %v\n", err)
			return 1
		}
		_ = enc.Close()
	default:
		fmt.Fprintf(stderr, "unknown format: %s\n", *format)
		return 2
	}
	return 0
}
