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

// Package engine assembles the dispatch and execution components into one
// runnable process: store, bus, catalog, dispatcher, runner, publisher and
// scheduler, plus the metrics endpoint.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/playbook/internal/bus"
	"github.com/tombee/playbook/internal/catalog"
	"github.com/tombee/playbook/internal/dispatch"
	"github.com/tombee/playbook/internal/featureflags"
	"github.com/tombee/playbook/internal/log"
	"github.com/tombee/playbook/internal/publisher"
	"github.com/tombee/playbook/internal/runner"
	"github.com/tombee/playbook/internal/scheduler"
	"github.com/tombee/playbook/internal/store"
	"github.com/tombee/playbook/internal/store/memory"
	"github.com/tombee/playbook/internal/store/sqlite"
)

// Config selects the engine's backing services.
type Config struct {
	// Backend is the store backend: "memory" or "sqlite".
	Backend string

	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string

	// MetricsAddr exposes Prometheus metrics when non-empty, e.g.
	// "127.0.0.1:9090".
	MetricsAddr string

	// Flags is the feature flag source, environment-backed when nil.
	Flags featureflags.Checker

	Logger *slog.Logger
}

// Engine is a fully wired single-process playbook engine.
type Engine struct {
	Store      store.Store
	Bus        *bus.MemoryBus
	Catalog    *catalog.Catalog
	Dispatcher *dispatch.Dispatcher
	Runner     *runner.Runner
	Publisher  *publisher.Publisher
	Ticker     *scheduler.Ticker

	logger  *slog.Logger
	metrics *http.Server
}

// New wires an Engine from the config. Nothing starts running until Start.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	flags := cfg.Flags
	if flags == nil {
		flags = featureflags.NewEnvChecker(nil)
	}

	var st store.Store
	var err error
	switch cfg.Backend {
	case "", "memory":
		st = memory.New()
	case "sqlite":
		st, err = sqlite.New(sqlite.Config{Path: cfg.SQLitePath, WAL: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	cat, err := catalog.NewBuiltin(flags)
	if err != nil {
		return nil, err
	}

	queue := bus.NewMemoryBus()

	dispatcher := dispatch.New(dispatch.Config{
		Playbooks: st,
		Runs:      st,
		Customers: st,
		Orgs:      st,
		Catalog:   cat,
		Flags:     flags,
		Publisher: queue,
		Logger:    logger,
	})

	ticker := scheduler.NewTicker(func(ctx context.Context, playbookID string, version int, triggerID string) {
		dispatcher.DispatchScheduledRun(ctx, playbookID, version, triggerID, "")
	}, logger)

	e := &Engine{
		Store:      st,
		Bus:        queue,
		Catalog:    cat,
		Dispatcher: dispatcher,
		Runner:     runner.New(st, cat, queue, logger),
		Publisher:  publisher.New(st, cat, ticker, logger),
		Ticker:     ticker,
		logger:     log.WithComponent(logger, "engine"),
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		e.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}
	return e, nil
}

// Start runs the engine until the context is cancelled: the scheduler tick
// loop, the run consumer, and the metrics endpoint. It blocks until the
// runner exits.
func (e *Engine) Start(ctx context.Context) error {
	e.Ticker.Start(ctx)

	if e.metrics != nil {
		go func() {
			e.logger.Info("metrics endpoint listening", "addr", e.metrics.Addr)
			if err := e.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				e.logger.Error("metrics endpoint failed", log.Error(err))
			}
		}()
	}

	e.logger.Info("engine started")
	err := e.Runner.Run(ctx)
	if err == context.Canceled || err == bus.ErrClosed {
		return nil
	}
	return err
}

// Shutdown stops the scheduler, drains nothing, and releases resources.
// In-flight runs are already persisted step by step and resume on restart.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.Ticker.Stop()
	if err := e.Bus.Close(); err != nil {
		e.logger.Warn("bus close failed", log.Error(err))
	}

	if e.metrics != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := e.metrics.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("metrics endpoint shutdown failed", log.Error(err))
		}
	}

	if err := e.Store.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}
