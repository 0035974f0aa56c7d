// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wirepro/wirepro/services/orchestrator"
	"github.com/wirepro/wirepro/services/orchestrator/conversation"
	"github.com/wirepro/wirepro/services/orchestrator/retention"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Wire Pro HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

// runServe wires every component and serves until ctx is cancelled.
func runServe(ctx context.Context, opts *globalOptions) error {
	cfg := opts.cfg
	logger := opts.logger.Slog()

	rt, err := newRuntime(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}

	dbCfg := conversation.DefaultDBConfig(cfg.Storage.Path)
	if cfg.Storage.InMemory {
		dbCfg = conversation.InMemoryDBConfig()
	}
	store, err := conversation.OpenBadgerStore(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close conversation store", "error", err)
		}
	}()

	svc, err := orchestrator.New(orchestrator.Config{
		Port:            cfg.Server.Port,
		ServiceName:     cfg.Telemetry.ServiceName,
		OTelEndpoint:    cfg.Telemetry.OTLPEndpoint,
		EnableMetrics:   cfg.Telemetry.MetricsEnabled,
		GinMode:         "release",
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		MaxImageBytes:   cfg.Server.MaxImageBytes,
		RequestTimeout:  cfg.Server.RequestTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, orchestrator.Deps{
		Pipeline:      rt.pipeline,
		Conversations: store,
		Metrics:       rt.metrics,
		Registry:      rt.registry,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	var sweeper *retention.Sweeper
	if cfg.Storage.ArchiveAfter > 0 {
		sweeper, err = retention.NewSweeper(store, retention.Config{
			Interval:     cfg.Storage.SweepInterval,
			ArchiveAfter: cfg.Storage.ArchiveAfter,
		}, rt.metrics, logger)
		if err != nil {
			return err
		}
	}

	stats := rt.engine.Store().Stats()
	logger.Info("Wire Pro ready",
		"version", version,
		"knowledge_source", stats.Source,
		"knowledge_warnings", len(stats.Warnings),
		"providers", rt.pipeline.Providers(),
		"default_provider", cfg.LLM.DefaultProvider,
		"storage", storageLabel(cfg.Storage.InMemory, cfg.Storage.Path))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Run(gctx)
	})
	if sweeper != nil {
		g.Go(func() error {
			return sweeper.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown requested")
		return nil
	})
	return g.Wait()
}

func storageLabel(inMemory bool, path string) string {
	if inMemory {
		return "memory"
	}
	return path
}
