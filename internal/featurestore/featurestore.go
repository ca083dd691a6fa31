// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package featurestore is the read model over collected catalog rows and
// their extracted features: embeddings as pgvector columns, keypoint
// descriptors as blob files on shared storage.
package featurestore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Store reads products, videos, and their feature columns.
type Store struct {
	db *database.Store
}

// New creates a feature store backed by the given database.
func New(db *database.Store) *Store {
	return &Store{db: db}
}

// ListProducts returns all products collected for a job.
func (s *Store) ListProducts(ctx context.Context, jobID string) ([]models.Product, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT product_id, job_id, src, marketplace, external_id, title, brand, url, created_at
		 FROM products WHERE job_id = $1 ORDER BY product_id`,
		jobID,
	)
	database.Observe("select", "products", start, err)
	if err != nil {
		return nil, fmt.Errorf("list products for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(
			&p.ProductID, &p.JobID, &p.Src, &p.Marketplace,
			&p.ExternalID, &p.Title, &p.Brand, &p.URL, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ListVideos returns all videos collected for a job.
func (s *Store) ListVideos(ctx context.Context, jobID string) ([]models.Video, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT video_id, job_id, platform, url, title, duration_s, COALESCE(published_at, 'epoch'::timestamptz)
		 FROM videos WHERE job_id = $1 ORDER BY video_id`,
		jobID,
	)
	database.Observe("select", "videos", start, err)
	if err != nil {
		return nil, fmt.Errorf("list videos for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var videos []models.Video
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(
			&v.VideoID, &v.JobID, &v.Platform, &v.URL,
			&v.Title, &v.DurationS, &v.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// ListProductImages returns a job's product images that have an RGB
// embedding, the minimum a pair score needs.
func (s *Store) ListProductImages(ctx context.Context, jobID string) ([]models.ProductImage, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT i.image_id, i.product_id, i.local_path, COALESCE(i.masked_local_path, ''),
		        i.emb_rgb, i.emb_gray, COALESCE(i.keypoint_blob_path, ''), i.updated_at
		 FROM product_images i
		 JOIN products p ON p.product_id = i.product_id
		 WHERE p.job_id = $1 AND i.emb_rgb IS NOT NULL
		 ORDER BY i.image_id`,
		jobID,
	)
	database.Observe("select", "product_images", start, err)
	if err != nil {
		return nil, fmt.Errorf("list product images for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var images []models.ProductImage
	for rows.Next() {
		var img models.ProductImage
		var embRGB pgvector.Vector
		var embGray *pgvector.Vector
		if err := rows.Scan(
			&img.ImageID, &img.ProductID, &img.LocalPath, &img.MaskedLocalPath,
			&embRGB, &embGray, &img.KeypointBlobPath, &img.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product image: %w", err)
		}
		img.EmbRGB = embRGB.Slice()
		if embGray != nil {
			img.EmbGray = embGray.Slice()
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// ListVideoFrames returns a video's frames that have an RGB embedding,
// ordered by timestamp.
func (s *Store) ListVideoFrames(ctx context.Context, videoID string) ([]models.VideoFrame, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT frame_id, video_id, ts, local_path, COALESCE(masked_local_path, ''),
		        emb_rgb, emb_gray, COALESCE(keypoint_blob_path, '')
		 FROM video_frames
		 WHERE video_id = $1 AND emb_rgb IS NOT NULL
		 ORDER BY ts, frame_id`,
		videoID,
	)
	database.Observe("select", "video_frames", start, err)
	if err != nil {
		return nil, fmt.Errorf("list frames for video %s: %w", videoID, err)
	}
	defer rows.Close()

	var frames []models.VideoFrame
	for rows.Next() {
		var f models.VideoFrame
		var embRGB pgvector.Vector
		var embGray *pgvector.Vector
		if err := rows.Scan(
			&f.FrameID, &f.VideoID, &f.TS, &f.LocalPath, &f.MaskedLocalPath,
			&embRGB, &embGray, &f.KeypointBlobPath,
		); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.EmbRGB = embRGB.Slice()
		if embGray != nil {
			f.EmbGray = embGray.Slice()
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// RetrieveTopFrames ranks a video's frames by cosine similarity to an image
// embedding through the ANN index, returning up to topK frame IDs.
func (s *Store) RetrieveTopFrames(ctx context.Context, videoID string, embedding []float32, topK int) ([]string, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT frame_id FROM video_frames
		 WHERE video_id = $1 AND emb_rgb IS NOT NULL
		 ORDER BY emb_rgb <=> $2
		 LIMIT $3`,
		videoID, pgvector.NewVector(embedding), topK,
	)
	database.Observe("select", "video_frames", start, err)
	if err != nil {
		return nil, fmt.Errorf("retrieve frames for video %s: %w", videoID, err)
	}
	defer rows.Close()

	var frameIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan frame id: %w", err)
		}
		frameIDs = append(frameIDs, id)
	}
	return frameIDs, rows.Err()
}

// GetKeypointBlob loads a keypoint descriptor blob from shared storage.
func (s *Store) GetKeypointBlob(ctx context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, database.ErrNotFound
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read keypoint blob %s: %w", path, err)
	}
	return data, nil
}
