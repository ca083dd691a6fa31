// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package jobstore persists jobs and their phase. Phase updates use
// compare-and-swap so concurrent orchestrator instances cannot apply the
// same transition twice or move a job backwards.
package jobstore

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

// Store persists jobs.
type Store struct {
	db *database.Store
}

// New creates a job store backed by the given database.
func New(db *database.Store) *Store {
	return &Store{db: db}
}

// Create inserts a new job in the collection phase. Re-creating an existing
// job is a no-op so job submission is idempotent.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	start := time.Now()
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO jobs (job_id, industry, phase, has_images, has_videos, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 ON CONFLICT (job_id) DO NOTHING`,
		job.JobID, job.Industry, models.PhaseCollection, job.AssetFlags.HasImages, job.AssetFlags.HasVideos,
	)
	database.Observe("insert", "jobs", start, err)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

// Get returns a job by ID, or database.ErrNotFound.
func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	start := time.Now()
	var job models.Job
	err := s.db.Pool().QueryRow(ctx,
		`SELECT job_id, industry, phase, has_images, has_videos, created_at, updated_at
		 FROM jobs WHERE job_id = $1`,
		jobID,
	).Scan(
		&job.JobID, &job.Industry, &job.Phase,
		&job.AssetFlags.HasImages, &job.AssetFlags.HasVideos,
		&job.CreatedAt, &job.UpdatedAt,
	)
	database.Observe("select", "jobs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &job, nil
}

// UpdatePhase applies a phase transition with compare-and-swap on the
// current phase. Returns true when the transition was applied, false when
// another instance already moved the job past expectFrom.
func (s *Store) UpdatePhase(ctx context.Context, jobID string, expectFrom, to models.Phase) (bool, error) {
	start := time.Now()
	tag, err := s.db.Pool().Exec(ctx,
		`UPDATE jobs SET phase = $1, updated_at = now()
		 WHERE job_id = $2 AND phase = $3`,
		to, jobID, expectFrom,
	)
	database.Observe("update", "jobs", start, err)
	if err != nil {
		return false, fmt.Errorf("update phase for job %s: %w", jobID, err)
	}

	if tag.RowsAffected() == 0 {
		metrics.RecordPhaseCASConflict()
		return false, nil
	}

	metrics.RecordPhaseTransition(string(expectFrom), string(to))
	return true, nil
}
