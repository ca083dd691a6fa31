// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package progress tracks per-asset completion counters. Each (job, asset
// type) pair has an expected total announced by a batch event, counts
// incremented by per-asset ready events, and a watermark deadline that
// forces completion when producers go quiet. The completed_emitted flag is
// flipped with compare-and-swap so each counter emits at most one phase
// completion event.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Store persists asset counters.
type Store struct {
	db *database.Store
}

// New creates a progress store backed by the given database.
func New(db *database.Store) *Store {
	return &Store{db: db}
}

// Initialize creates a counter with the announced expected total and arms
// its watermark deadline. Re-delivery of the batch announcement is a no-op:
// the first write wins. The created (or existing) counter is returned.
func (s *Store) Initialize(ctx context.Context, jobID string, assetType models.AssetType, expected int, watermarkTTL time.Duration) (*models.AssetCounter, error) {
	deadline := time.Now().UTC().Add(watermarkTTL)

	start := time.Now()
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO asset_counters (job_id, asset_type, expected, processed, failed, watermark_deadline, completed_emitted)
		 VALUES ($1, $2, $3, 0, 0, $4, FALSE)
		 ON CONFLICT (job_id, asset_type) DO NOTHING`,
		jobID, assetType, expected, deadline,
	)
	database.Observe("insert", "asset_counters", start, err)
	if err != nil {
		return nil, fmt.Errorf("initialize counter %s/%s: %w", jobID, assetType, err)
	}

	return s.Get(ctx, jobID, assetType)
}

// Observe applies per-asset ready deltas to a counter. The row is locked
// for the duration of the update so concurrent consumers serialize. Returns
// the post-update counter. Observing a counter that was never initialised
// returns database.ErrNotFound; the caller retries, since the batch
// announcement may still be in flight.
func (s *Store) Observe(ctx context.Context, jobID string, assetType models.AssetType, deltaProcessed, deltaFailed int) (*models.AssetCounter, error) {
	var counter models.AssetCounter

	err := s.db.WithTx(ctx, func(tx pgx.Tx) error {
		start := time.Now()
		err := tx.QueryRow(ctx,
			`SELECT job_id, asset_type, expected, processed, failed, watermark_deadline, completed_emitted
			 FROM asset_counters
			 WHERE job_id = $1 AND asset_type = $2
			 FOR UPDATE`,
			jobID, assetType,
		).Scan(
			&counter.JobID, &counter.AssetType, &counter.Expected,
			&counter.Processed, &counter.Failed,
			&counter.WatermarkDeadline, &counter.CompletedEmitted,
		)
		database.Observe("select", "asset_counters", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return database.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock counter: %w", err)
		}

		counter.Processed += deltaProcessed
		counter.Failed += deltaFailed

		start = time.Now()
		_, err = tx.Exec(ctx,
			`UPDATE asset_counters SET processed = $1, failed = $2
			 WHERE job_id = $3 AND asset_type = $4`,
			counter.Processed, counter.Failed, jobID, assetType,
		)
		database.Observe("update", "asset_counters", start, err)
		if err != nil {
			return fmt.Errorf("update counter: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("observe %s/%s: %w", jobID, assetType, err)
	}

	if deltaProcessed > 0 {
		metrics.AssetsObservedTotal.WithLabelValues(string(assetType), "processed").Add(float64(deltaProcessed))
	}
	if deltaFailed > 0 {
		metrics.AssetsObservedTotal.WithLabelValues(string(assetType), "failed").Add(float64(deltaFailed))
	}

	return &counter, nil
}

// Get returns one counter, or database.ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string, assetType models.AssetType) (*models.AssetCounter, error) {
	start := time.Now()
	var counter models.AssetCounter
	err := s.db.Pool().QueryRow(ctx,
		`SELECT job_id, asset_type, expected, processed, failed, watermark_deadline, completed_emitted
		 FROM asset_counters WHERE job_id = $1 AND asset_type = $2`,
		jobID, assetType,
	).Scan(
		&counter.JobID, &counter.AssetType, &counter.Expected,
		&counter.Processed, &counter.Failed,
		&counter.WatermarkDeadline, &counter.CompletedEmitted,
	)
	database.Observe("select", "asset_counters", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get counter %s/%s: %w", jobID, assetType, err)
	}
	return &counter, nil
}

// SetCompleted claims the right to emit the completion event for a counter.
// The compare-and-swap on completed_emitted guarantees at most one claimant
// across concurrent consumers and the watermark watcher.
func (s *Store) SetCompleted(ctx context.Context, jobID string, assetType models.AssetType) (bool, error) {
	start := time.Now()
	tag, err := s.db.Pool().Exec(ctx,
		`UPDATE asset_counters SET completed_emitted = TRUE
		 WHERE job_id = $1 AND asset_type = $2 AND completed_emitted = FALSE`,
		jobID, assetType,
	)
	database.Observe("update", "asset_counters", start, err)
	if err != nil {
		return false, fmt.Errorf("set completed %s/%s: %w", jobID, assetType, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPending returns counters that have not yet emitted completion and
// carry an armed watermark deadline. Used to rebuild timers after restart.
func (s *Store) ListPending(ctx context.Context) ([]models.AssetCounter, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT job_id, asset_type, expected, processed, failed, watermark_deadline, completed_emitted
		 FROM asset_counters
		 WHERE completed_emitted = FALSE AND watermark_deadline IS NOT NULL`,
	)
	database.Observe("select", "asset_counters", start, err)
	if err != nil {
		return nil, fmt.Errorf("list pending counters: %w", err)
	}
	defer rows.Close()

	var counters []models.AssetCounter
	for rows.Next() {
		var c models.AssetCounter
		if err := rows.Scan(
			&c.JobID, &c.AssetType, &c.Expected,
			&c.Processed, &c.Failed,
			&c.WatermarkDeadline, &c.CompletedEmitted,
		); err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}
