// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/streamstage/internal/config"
	"github.com/ManuGH/streamstage/internal/daemon"
	"github.com/ManuGH/streamstage/internal/log"
	buildinfo "github.com/ManuGH/streamstage/internal/version"
)

// version is the build version reported by every subcommand.
var version = buildinfo.Version

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	log.Configure(log.Config{
		Level:   "info",
		Service: daemon.ServiceName,
		Version: version,
	})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	cfg, err := config.NewLoader(path, version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = log.WithComponent("daemon")

	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", version).
		Str("commit", buildinfo.Commit).
		Str("build_date", buildinfo.Date).
		Str("config_source", source).
		Str("addr", cfg.API.ListenAddr).
		Str("data_dir", cfg.DataDir).
		Str("store", cfg.Store.Backend).
		Msg("starting streamstage")
	for _, b := range cfg.RPCBackends() {
		logger.Info().
			Str(log.FieldBackend, b.Name).
			Str(log.FieldTarget, b.Address).
			Msg("backend configured")
	}

	app, err := daemon.New(ctx, cfg)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "startup.failed").
			Msg("failed to build service")
	}
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(log.FieldEvent, "daemon.failed").
			Msg("daemon failed")
	}
	logger.Info().Msg("server exiting")
}
