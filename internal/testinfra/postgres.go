// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

//go:build integration

package testinfra

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/reelmatch/reelmatch/internal/database"
)

// pgvectorImage bundles PostgreSQL 16 with the pgvector extension.
const pgvectorImage = "pgvector/pgvector:pg16"

// StartPostgres runs a throwaway PostgreSQL container with pgvector and
// returns a database config pointing at it. The container is terminated in
// test cleanup.
func StartPostgres(t *testing.T) database.Config {
	t.Helper()
	SkipIfNoDocker(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, pgvectorImage,
		tcpostgres.WithDatabase("reelmatch_test"),
		tcpostgres.WithUsername("reelmatch"),
		tcpostgres.WithPassword("reelmatch"),
		testcontainers.WithLogger(NewContainerLogger(t)),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() { CleanupContainer(t, ctx, container) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		t.Fatalf("parse port %s: %v", mapped.Port(), err)
	}

	cfg := database.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.User = "reelmatch"
	cfg.Password = "reelmatch"
	cfg.Database = "reelmatch_test"
	cfg.EmbeddingDim = 8 // small vectors keep the tests fast
	return cfg
}

// OpenTestStore starts Postgres and opens a store against it, applying the
// schema.
func OpenTestStore(t *testing.T) *database.Store {
	t.Helper()

	cfg := StartPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := database.New(ctx, cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
