// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/playbook/internal/config"
	"github.com/tombee/playbook/internal/engine"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/log"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML configuration file")
		backend     = flag.String("backend", "", "Store backend (memory, sqlite); overrides the config file")
		sqlitePath  = flag.String("sqlite-path", "", "SQLite database file; overrides the config file")
		metricsAddr = flag.String("metrics", "", "Address to expose Prometheus metrics on; overrides the config file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("playbookd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *sqlitePath != "" {
		cfg.Store.SQLitePath = *sqlitePath
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogConfigFor())
	slog.SetDefault(logger)

	eng, err := engine.New(engine.Config{
		Backend:     cfg.Store.Backend,
		SQLitePath:  cfg.Store.SQLitePath,
		MetricsAddr: cfg.Metrics.Addr,
		Flags:       featureflags.NewEnvChecker(cfg.FeatureFlags),
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to create engine", log.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		if err := eng.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", log.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("engine error", log.Error(err))
			if shutdownErr := eng.Shutdown(context.Background()); shutdownErr != nil {
				logger.Error("error during shutdown", log.Error(shutdownErr))
			}
			os.Exit(1)
		}
	}
}
