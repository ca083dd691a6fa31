// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

//go:build integration

package jobstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/jobstore"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/testinfra"
)

func TestJobStoreAgainstPostgres(t *testing.T) {
	db := testinfra.OpenTestStore(t)
	store := jobstore.New(db)
	ctx := context.Background()

	job := &models.Job{
		JobID:    uuid.New().String(),
		Industry: "kitchenware",
		Phase:    models.PhaseCollection,
		AssetFlags: models.AssetFlags{
			HasImages: true,
			HasVideos: true,
		},
	}

	t.Run("create and get", func(t *testing.T) {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := store.Get(ctx, job.JobID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Phase != models.PhaseCollection {
			t.Errorf("phase = %s, want collection", got.Phase)
		}
		if !got.AssetFlags.HasImages || !got.AssetFlags.HasVideos {
			t.Errorf("asset flags = %+v", got.AssetFlags)
		}
	})

	t.Run("create is idempotent", func(t *testing.T) {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("second Create() error = %v", err)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := store.Get(ctx, uuid.New().String())
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("phase CAS", func(t *testing.T) {
		ok, err := store.UpdatePhase(ctx, job.JobID, models.PhaseCollection, models.PhaseFeatureExtraction)
		if err != nil {
			t.Fatalf("UpdatePhase() error = %v", err)
		}
		if !ok {
			t.Fatal("CAS from current phase failed")
		}

		// Same transition again must miss: the job already moved.
		ok, err = store.UpdatePhase(ctx, job.JobID, models.PhaseCollection, models.PhaseFeatureExtraction)
		if err != nil {
			t.Fatalf("UpdatePhase() error = %v", err)
		}
		if ok {
			t.Error("CAS from stale phase succeeded")
		}

		got, err := store.Get(ctx, job.JobID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Phase != models.PhaseFeatureExtraction {
			t.Errorf("phase = %s, want feature_extraction", got.Phase)
		}
	})
}
