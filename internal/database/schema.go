// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package database

import (
	"context"
	"fmt"
)

// Schema is applied on startup and is fully idempotent. The embedding
// columns are created at the configured dimension; changing the dimension
// requires a manual migration of existing data.
const schemaTemplate = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS jobs (
    job_id      UUID PRIMARY KEY,
    industry    TEXT NOT NULL DEFAULT '',
    phase       TEXT NOT NULL DEFAULT 'collection',
    has_images  BOOLEAN NOT NULL DEFAULT FALSE,
    has_videos  BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS processed_events (
    event_id      UUID PRIMARY KEY,
    job_id        UUID NOT NULL,
    event_name    TEXT NOT NULL,
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_processed_events_job ON processed_events(job_id, event_name);

CREATE TABLE IF NOT EXISTS asset_counters (
    job_id             UUID NOT NULL REFERENCES jobs(job_id),
    asset_type         TEXT NOT NULL,
    expected           INTEGER NOT NULL DEFAULT 0,
    processed          INTEGER NOT NULL DEFAULT 0,
    failed             INTEGER NOT NULL DEFAULT 0,
    watermark_deadline TIMESTAMPTZ,
    completed_emitted  BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (job_id, asset_type)
);

CREATE TABLE IF NOT EXISTS products (
    product_id  TEXT PRIMARY KEY,
    job_id      UUID NOT NULL REFERENCES jobs(job_id),
    src         TEXT NOT NULL DEFAULT '',
    marketplace TEXT NOT NULL DEFAULT '',
    external_id TEXT NOT NULL DEFAULT '',
    title       TEXT NOT NULL DEFAULT '',
    brand       TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_products_job ON products(job_id);

CREATE TABLE IF NOT EXISTS product_images (
    image_id           TEXT PRIMARY KEY,
    product_id         TEXT NOT NULL REFERENCES products(product_id),
    local_path         TEXT NOT NULL DEFAULT '',
    masked_local_path  TEXT,
    emb_rgb            vector(%[1]d),
    emb_gray           vector(%[1]d),
    keypoint_blob_path TEXT,
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id);

CREATE TABLE IF NOT EXISTS videos (
    video_id     TEXT PRIMARY KEY,
    job_id       UUID NOT NULL REFERENCES jobs(job_id),
    platform     TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    duration_s   DOUBLE PRECISION NOT NULL DEFAULT 0,
    published_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_videos_job ON videos(job_id);

CREATE TABLE IF NOT EXISTS video_frames (
    frame_id           TEXT PRIMARY KEY,
    video_id           TEXT NOT NULL REFERENCES videos(video_id),
    ts                 DOUBLE PRECISION NOT NULL DEFAULT 0,
    local_path         TEXT NOT NULL DEFAULT '',
    masked_local_path  TEXT,
    emb_rgb            vector(%[1]d),
    emb_gray           vector(%[1]d),
    keypoint_blob_path TEXT
);
CREATE INDEX IF NOT EXISTS idx_video_frames_video ON video_frames(video_id);

CREATE TABLE IF NOT EXISTS matches (
    match_id      UUID PRIMARY KEY,
    job_id        UUID NOT NULL REFERENCES jobs(job_id),
    product_id    TEXT NOT NULL REFERENCES products(product_id),
    video_id      TEXT NOT NULL REFERENCES videos(video_id),
    best_image_id TEXT NOT NULL DEFAULT '',
    best_frame_id TEXT NOT NULL DEFAULT '',
    ts            DOUBLE PRECISION NOT NULL DEFAULT 0,
    score         DOUBLE PRECISION NOT NULL DEFAULT 0,
    status        TEXT NOT NULL DEFAULT 'accepted',
    evidence_path TEXT,
    UNIQUE (job_id, product_id, video_id)
);
CREATE INDEX IF NOT EXISTS idx_matches_job ON matches(job_id);
`

// annIndexTemplate builds the approximate nearest neighbour indexes used by
// retrieval. HNSW with cosine distance matches the retrieval query operator.
const annIndexTemplate = `
CREATE INDEX IF NOT EXISTS idx_product_images_emb_rgb
    ON product_images USING hnsw (emb_rgb vector_cosine_ops);
CREATE INDEX IF NOT EXISTS idx_video_frames_emb_rgb
    ON video_frames USING hnsw (emb_rgb vector_cosine_ops);
`

func (s *Store) applySchema(ctx context.Context) error {
	ddl := fmt.Sprintf(schemaTemplate, s.cfg.EmbeddingDim)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := s.pool.Exec(ctx, annIndexTemplate); err != nil {
		return fmt.Errorf("create ANN indexes: %w", err)
	}
	return nil
}
