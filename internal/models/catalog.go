// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import "time"

// Product source marketplaces.
const (
	SourceAmazon = "amazon"
	SourceEbay   = "ebay"
)

// Video platforms.
const (
	PlatformYouTube  = "youtube"
	PlatformTikTok   = "tiktok"
	PlatformBilibili = "bilibili"
)

// Product is one collected marketplace listing. Owned by the collector that
// created it; read-only for the pipeline core after insertion.
type Product struct {
	ProductID   string
	JobID       string
	Src         string
	Marketplace string
	ExternalID  string
	Title       string
	Brand       string
	URL         string
	CreatedAt   time.Time
}

// ProductImage is one listing image with its extracted features. The core
// consumes only the feature fields; collectors and feature workers write the
// rest. Feature writes are idempotent updates.
type ProductImage struct {
	ImageID          string
	ProductID        string
	LocalPath        string
	MaskedLocalPath  string
	EmbRGB           []float32
	EmbGray          []float32
	KeypointBlobPath string
	UpdatedAt        time.Time
}

// Video is one collected review video.
type Video struct {
	VideoID     string
	JobID       string
	Platform    string
	URL         string
	Title       string
	DurationS   float64
	PublishedAt time.Time
}

// VideoFrame is one extracted keyframe with its features. TS is the frame
// timestamp in seconds within its video.
type VideoFrame struct {
	FrameID          string
	VideoID          string
	TS               float64
	LocalPath        string
	MaskedLocalPath  string
	EmbRGB           []float32
	EmbGray          []float32
	KeypointBlobPath string
}

// Match statuses. Only accepted matches are persisted.
const MatchStatusAccepted = "accepted"

// Match is one accepted product-video pairing with its best supporting
// (image, frame) evidence. At most one match exists per
// (job, product, video); inserts are upserts on that key.
type Match struct {
	MatchID      string
	JobID        string
	ProductID    string
	VideoID      string
	BestImageID  string
	BestFrameID  string
	TS           float64
	Score        float64
	Status       string
	EvidencePath string
}
