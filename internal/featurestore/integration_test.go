// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

//go:build integration

package featurestore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/featurestore"
	"github.com/reelmatch/reelmatch/internal/jobstore"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/testinfra"
)

// vec8 builds a test embedding padded to the 8-dim test schema.
func vec8(vals ...float32) pgvector.Vector {
	out := make([]float32, 8)
	copy(out, vals)
	return pgvector.NewVector(out)
}

func TestFeatureStoreAgainstPostgres(t *testing.T) {
	db := testinfra.OpenTestStore(t)
	store := featurestore.New(db)
	ctx := context.Background()

	jobID := uuid.New().String()
	if err := jobstore.New(db).Create(ctx, &models.Job{
		JobID:      jobID,
		Phase:      models.PhaseMatching,
		AssetFlags: models.AssetFlags{HasImages: true, HasVideos: true},
	}); err != nil {
		t.Fatal(err)
	}

	pool := db.Pool()
	if _, err := pool.Exec(ctx,
		`INSERT INTO products (product_id, job_id, title) VALUES ('prod_1', $1, 'air fryer')`,
		jobID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO videos (video_id, job_id, platform) VALUES ('vid_1', $1, 'tiktok')`,
		jobID); err != nil {
		t.Fatal(err)
	}
	if _, err := pool.Exec(ctx,
		`INSERT INTO product_images (image_id, product_id, emb_rgb, emb_gray)
		 VALUES ('img_1', 'prod_1', $1, $2)`,
		vec8(1), vec8(0.5, 0.5)); err != nil {
		t.Fatal(err)
	}
	// No embedding yet: extraction has not reached this image.
	if _, err := pool.Exec(ctx,
		`INSERT INTO product_images (image_id, product_id) VALUES ('img_2', 'prod_1')`); err != nil {
		t.Fatal(err)
	}
	frames := []struct {
		id  string
		ts  float64
		emb pgvector.Vector
	}{
		{"frame_b", 7.0, vec8(0.9, 0.1)},
		{"frame_a", 2.5, vec8(1)},
		{"frame_c", 4.0, vec8(0, 1)},
	}
	for _, f := range frames {
		if _, err := pool.Exec(ctx,
			`INSERT INTO video_frames (frame_id, video_id, ts, emb_rgb) VALUES ($1, 'vid_1', $2, $3)`,
			f.id, f.ts, f.emb); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("list products and videos", func(t *testing.T) {
		products, err := store.ListProducts(ctx, jobID)
		if err != nil {
			t.Fatalf("ListProducts() error = %v", err)
		}
		if len(products) != 1 || products[0].Title != "air fryer" {
			t.Errorf("products = %+v", products)
		}

		videos, err := store.ListVideos(ctx, jobID)
		if err != nil {
			t.Fatalf("ListVideos() error = %v", err)
		}
		if len(videos) != 1 || videos[0].Platform != "tiktok" {
			t.Errorf("videos = %+v", videos)
		}
	})

	t.Run("images without embeddings are excluded", func(t *testing.T) {
		images, err := store.ListProductImages(ctx, jobID)
		if err != nil {
			t.Fatalf("ListProductImages() error = %v", err)
		}
		if len(images) != 1 {
			t.Fatalf("images = %d, want 1", len(images))
		}
		if images[0].ImageID != "img_1" || len(images[0].EmbRGB) != 8 {
			t.Errorf("image = %+v", images[0])
		}
	})

	t.Run("frames ordered by timestamp", func(t *testing.T) {
		got, err := store.ListVideoFrames(ctx, "vid_1")
		if err != nil {
			t.Fatalf("ListVideoFrames() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("frames = %d, want 3", len(got))
		}
		if got[0].FrameID != "frame_a" || got[1].FrameID != "frame_c" || got[2].FrameID != "frame_b" {
			t.Errorf("order = %s, %s, %s", got[0].FrameID, got[1].FrameID, got[2].FrameID)
		}
	})

	t.Run("retrieval ranks by cosine similarity", func(t *testing.T) {
		query := make([]float32, 8)
		query[0] = 1

		got, err := store.RetrieveTopFrames(ctx, "vid_1", query, 2)
		if err != nil {
			t.Fatalf("RetrieveTopFrames() error = %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("frames = %v, want 2 results", got)
		}
		if got[0] != "frame_a" || got[1] != "frame_b" {
			t.Errorf("ranking = %v, want [frame_a frame_b]", got)
		}
	})

	t.Run("retrieval for unknown video is empty", func(t *testing.T) {
		got, err := store.RetrieveTopFrames(ctx, "vid_unknown", make([]float32, 8), 5)
		if err != nil {
			t.Fatalf("RetrieveTopFrames() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("frames = %v, want none", got)
		}
	})

	t.Run("keypoint blobs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "img_1.kp")
		if err := os.WriteFile(path, []byte{0x01, 0x02, 0x03}, 0o600); err != nil {
			t.Fatal(err)
		}

		data, err := store.GetKeypointBlob(ctx, path)
		if err != nil {
			t.Fatalf("GetKeypointBlob() error = %v", err)
		}
		if len(data) != 3 {
			t.Errorf("blob = %d bytes, want 3", len(data))
		}

		_, err = store.GetKeypointBlob(ctx, filepath.Join(t.TempDir(), "missing.kp"))
		if !errors.Is(err, database.ErrNotFound) {
			t.Errorf("missing blob error = %v, want ErrNotFound", err)
		}
	})
}
