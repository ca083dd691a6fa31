// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Store persists accepted matches.
type Store struct {
	db *database.Store
}

// NewStore creates a match store backed by the given database.
func NewStore(db *database.Store) *Store {
	return &Store{db: db}
}

// ExistingPairs returns the set of "productID|videoID" keys already matched
// for a job, so re-processing skips them.
func (s *Store) ExistingPairs(ctx context.Context, jobID string) (map[string]bool, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT product_id, video_id FROM matches WHERE job_id = $1`,
		jobID,
	)
	database.Observe("select", "matches", start, err)
	if err != nil {
		return nil, fmt.Errorf("list matches for job %s: %w", jobID, err)
	}
	defer rows.Close()

	pairs := make(map[string]bool)
	for rows.Next() {
		var productID, videoID string
		if err := rows.Scan(&productID, &videoID); err != nil {
			return nil, fmt.Errorf("scan match pair: %w", err)
		}
		pairs[PairKey(productID, videoID)] = true
	}
	return pairs, rows.Err()
}

// Upsert inserts an accepted match, keyed on (job, product, video). A
// second insert for the same key is a no-op, keeping re-processing
// idempotent.
func (s *Store) Upsert(ctx context.Context, m *models.Match) error {
	if m.MatchID == "" {
		m.MatchID = uuid.New().String()
	}

	start := time.Now()
	_, err := s.db.Pool().Exec(ctx,
		`INSERT INTO matches (match_id, job_id, product_id, video_id,
		                      best_image_id, best_frame_id, ts, score, status, evidence_path)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		 ON CONFLICT (job_id, product_id, video_id) DO NOTHING`,
		m.MatchID, m.JobID, m.ProductID, m.VideoID,
		m.BestImageID, m.BestFrameID, m.TS, m.Score, m.Status, m.EvidencePath,
	)
	database.Observe("insert", "matches", start, err)
	if err != nil {
		return fmt.Errorf("upsert match %s/%s/%s: %w", m.JobID, m.ProductID, m.VideoID, err)
	}
	return nil
}

// PairKey builds the map key for a (product, video) pair.
func PairKey(productID, videoID string) string {
	return productID + "|" + videoID
}
