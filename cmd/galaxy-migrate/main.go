// Copyright © 2023 Meroxa, Inc. & Yalantis
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

// Command galaxy-migrate migrates the galaxy store collections from MongoDB into Neo4j.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minormending/neo4j-galaxy-store/config"
	"github.com/minormending/neo4j-galaxy-store/destination"
	"github.com/minormending/neo4j-galaxy-store/migration"
	"github.com/minormending/neo4j-galaxy-store/schema"
	"github.com/minormending/neo4j-galaxy-store/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	logFormatJSON = "json"
	// shutdownTimeout bounds teardown and the metrics server shutdown.
	shutdownTimeout = 10 * time.Second
)

var errUnknownStage = errors.New("unknown stage")

// options holds the command line flags.
type options struct {
	envFile  string
	only     string
	migrated string
}

func main() {
	var opts options

	flag.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment, ignored if missing")
	flag.StringVar(&opts.only, "only", "", "comma-separated labels of the stages to run, all if empty")
	flag.StringVar(&opts.migrated, "migrated", "",
		"comma-separated labels whose nodes were migrated by an earlier run")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "galaxy-migrate: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	entities, err := selectStages(schema.Galaxy(schema.BatchSizes{
		Default: cfg.Batch.Size,
		App:     cfg.Batch.AppSize,
	}), splitLabels(opts.only))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := migration.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(ctx, cfg.MetricsAddr, registry)
		defer shutdown()
	}

	report, err := runMigration(ctx, cfg, migration.Params{
		Entities:  entities,
		Migrated:  splitLabels(opts.migrated),
		ChunkSize: cfg.Batch.ChunkSize,
		Pipeline:  cfg.Batch.Pipeline,
		Observer:  metrics,
	})
	if err != nil {
		logger.Error().Err(err).Object("report", report).Msg("migration failed")

		return err
	}

	logger.Info().Object("report", report).Int("totalNodes", report.TotalNodes()).Msg("migration completed")

	return nil
}

// runMigration connects to the source and the sink, runs the stages of params and disconnects.
// The connections of params are set by runMigration.
func runMigration(ctx context.Context, cfg config.Config, params migration.Params) (migration.Report, error) {
	logger := zerolog.Ctx(ctx)

	src := source.New(cfg.Mongo)
	if err := src.Open(ctx); err != nil {
		return migration.Report{}, fmt.Errorf("open source: %w", err)
	}

	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := src.Teardown(teardownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to teardown source")
		}
	}()

	dst := destination.New(cfg.Neo4j)
	if err := dst.Open(ctx); err != nil {
		return migration.Report{}, fmt.Errorf("open destination: %w", err)
	}

	defer func() {
		teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := dst.Teardown(teardownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to teardown destination")
		}
	}()

	params.Finder = src
	params.Executor = dst

	migrator, err := migration.New(params)
	if err != nil {
		return migration.Report{}, fmt.Errorf("create migrator: %w", err)
	}

	report, err := migrator.Run(ctx)
	if err != nil {
		return report, fmt.Errorf("run migration: %w", err)
	}

	return report, nil
}

// newLogger creates a logger writing to out in the configured format and level.
func newLogger(cfg config.LogConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
	}

	if cfg.Format != logFormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// selectStages keeps the entities with the given labels, in dependency order.
// All entities are kept when no label is given.
func selectStages(entities []schema.Entity, labels []string) ([]schema.Entity, error) {
	if len(labels) == 0 {
		return entities, nil
	}

	known := make(map[string]struct{}, len(entities))
	for _, entity := range entities {
		known[entity.Label] = struct{}{}
	}

	wanted := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, ok := known[label]; !ok {
			return nil, fmt.Errorf("%w %q", errUnknownStage, label)
		}

		wanted[label] = struct{}{}
	}

	selected := make([]schema.Entity, 0, len(wanted))
	for _, entity := range entities {
		if _, ok := wanted[entity.Label]; ok {
			selected = append(selected, entity)
		}
	}

	return selected, nil
}

// splitLabels splits a comma-separated flag value, skipping empty items.
func splitLabels(value string) []string {
	var labels []string
	for _, label := range strings.Split(value, ",") {
		if label = strings.TrimSpace(label); label != "" {
			labels = append(labels, label)
		}
	}

	return labels
}

// serveMetrics serves the registry on addr until the returned shutdown function is called.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry) func() {
	logger := zerolog.Ctx(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to shutdown metrics server")
		}
	}
}
