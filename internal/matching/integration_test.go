// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

//go:build integration

package matching_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/jobstore"
	"github.com/reelmatch/reelmatch/internal/matching"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/testinfra"
)

func TestMatchStoreAgainstPostgres(t *testing.T) {
	db := testinfra.OpenTestStore(t)
	store := matching.NewStore(db)
	ctx := context.Background()

	jobID := uuid.New().String()
	if err := jobstore.New(db).Create(ctx, &models.Job{
		JobID:      jobID,
		Phase:      models.PhaseMatching,
		AssetFlags: models.AssetFlags{HasImages: true, HasVideos: true},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Pool().Exec(ctx,
		`INSERT INTO products (product_id, job_id) VALUES ('prod_1', $1)`, jobID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Pool().Exec(ctx,
		`INSERT INTO videos (video_id, job_id) VALUES ('vid_1', $1)`, jobID); err != nil {
		t.Fatal(err)
	}

	match := &models.Match{
		JobID:       jobID,
		ProductID:   "prod_1",
		VideoID:     "vid_1",
		BestImageID: "img_1",
		BestFrameID: "frame_2",
		TS:          4.5,
		Score:       0.93,
		Status:      models.MatchStatusAccepted,
	}

	t.Run("upsert persists", func(t *testing.T) {
		if err := store.Upsert(ctx, match); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
		if match.MatchID == "" {
			t.Error("Upsert() did not assign a match ID")
		}

		pairs, err := store.ExistingPairs(ctx, jobID)
		if err != nil {
			t.Fatalf("ExistingPairs() error = %v", err)
		}
		if !pairs[matching.PairKey("prod_1", "vid_1")] {
			t.Error("persisted pair missing from ExistingPairs")
		}
	})

	t.Run("duplicate pair is a no-op", func(t *testing.T) {
		dup := *match
		dup.MatchID = ""
		dup.Score = 0.5
		if err := store.Upsert(ctx, &dup); err != nil {
			t.Fatalf("duplicate Upsert() error = %v", err)
		}

		var score float64
		err := db.Pool().QueryRow(ctx,
			`SELECT score FROM matches WHERE job_id = $1 AND product_id = 'prod_1' AND video_id = 'vid_1'`,
			jobID,
		).Scan(&score)
		if err != nil {
			t.Fatal(err)
		}
		if score != 0.93 {
			t.Errorf("score = %v after duplicate upsert, want 0.93", score)
		}
	})

	t.Run("other jobs are invisible", func(t *testing.T) {
		pairs, err := store.ExistingPairs(ctx, uuid.New().String())
		if err != nil {
			t.Fatalf("ExistingPairs() error = %v", err)
		}
		if len(pairs) != 0 {
			t.Errorf("pairs = %d, want 0", len(pairs))
		}
	})
}
