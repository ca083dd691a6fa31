// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import "time"

// AssetType identifies one per-job progress counter. Collection counters are
// observational; feature counters gate the phase completion events.
type AssetType string

// Counter types tracked per job.
const (
	AssetImageCollection AssetType = "image_collection"
	AssetVideoCollection AssetType = "video_collection"
	AssetImageEmbeddings AssetType = "image_embeddings"
	AssetImageKeypoints  AssetType = "image_keypoints"
	AssetVideoEmbeddings AssetType = "video_embeddings"
	AssetVideoKeypoints  AssetType = "video_keypoints"
)

// Valid reports whether t is a known asset type.
func (t AssetType) Valid() bool {
	switch t {
	case AssetImageCollection, AssetVideoCollection,
		AssetImageEmbeddings, AssetImageKeypoints,
		AssetVideoEmbeddings, AssetVideoKeypoints:
		return true
	}
	return false
}

// Emits reports whether a terminal counter of this type produces a phase
// completion event. Collection counters only feed metrics; the collectors
// themselves announce collection completion.
func (t AssetType) Emits() bool {
	switch t {
	case AssetImageEmbeddings, AssetImageKeypoints,
		AssetVideoEmbeddings, AssetVideoKeypoints:
		return true
	}
	return false
}

// AssetCounter tracks per-asset progress for one (job, asset type) pair.
// Initialised by the batch announcement, mutated by per-asset ready events,
// terminal when counts reach expected or the watermark deadline elapses.
type AssetCounter struct {
	JobID             string
	AssetType         AssetType
	Expected          int
	Processed         int
	Failed            int
	WatermarkDeadline time.Time
	CompletedEmitted  bool
}

// IsTerminal reports whether the counter is complete, either via counts or
// via the watermark deadline.
func (c *AssetCounter) IsTerminal(now time.Time) bool {
	if c.Processed+c.Failed >= c.Expected {
		return true
	}
	return !c.WatermarkDeadline.IsZero() && !now.Before(c.WatermarkDeadline)
}

// HasPartialCompletion reports whether the counter is short of its expected
// total. Zero-expected counters are partial by definition: the batch
// announced nothing to process.
func (c *AssetCounter) HasPartialCompletion() bool {
	if c.Expected == 0 {
		return true
	}
	return c.Processed+c.Failed < c.Expected
}
