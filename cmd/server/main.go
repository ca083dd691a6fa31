// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package main is the entry point for the ReelMatch pipeline service.
//
// ReelMatch matches dropshipping product listings against short-form review
// videos. The service consumes collection and feature-extraction events from
// NATS JetStream, tracks per-job progress with idempotent counters, advances
// each job through its phase machine, and runs the visual matching engine
// over the extracted embeddings and keypoints stored in PostgreSQL.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layered loading (env > file > defaults)
//  2. Logging: zerolog, JSON by default
//  3. Broker: embedded NATS server (optional) and JetStream stream
//  4. Database: PostgreSQL with pgvector, schema applied on boot
//  5. Handlers: orchestrator and matching engine on the Watermill router
//  6. Supervision: suture tree runs the router, watermark watcher, and the
//     metrics/health listener until SIGINT or SIGTERM
//
// Key environment variables: NATS_URL, POSTGRES_HOST, POSTGRES_DB,
// RETRIEVAL_TOPK, SIM_DEEP_MIN, MATCH_BEST_MIN, MATCH_CONS_MIN,
// MATCH_ACCEPT, WATERMARK_TTL_SECS, HANDLER_DEADLINE_SECS, PREFETCH,
// DLQ_MAX_RETRIES.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		logging.Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	log := logging.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("nats_url", cfg.NATS.URL).
		Bool("embedded_broker", cfg.NATS.EmbeddedServer).
		Str("database", cfg.Database.Database).
		Msg("starting pipeline")

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown incomplete")
		}
	}()

	healthAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	tree := p.Tree(logging.NewSlogLogger(), healthAddr)

	log.Info().Str("health_addr", healthAddr).Msg("pipeline running")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("pipeline stopped")
	return nil
}
