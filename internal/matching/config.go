// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package matching implements the product-to-video matching engine: vector
// retrieval, pair scoring from deep, keypoint, and edge similarities,
// per-video aggregation, and match persistence.
package matching

// Config holds the matching thresholds. Defaults follow the tuned
// production values; changing them shifts precision/recall.
type Config struct {
	// RetrievalTopK bounds how many frames are retrieved per product image.
	RetrievalTopK int `koanf:"retrieval_topk" validate:"min=1"`

	// SimDeepMin drops pairs whose embedding cosine is below it.
	SimDeepMin float64 `koanf:"sim_deep_min"`

	// InliersMin drops pairs whose RANSAC inlier ratio is below it, when
	// keypoints are present on both sides.
	InliersMin float64 `koanf:"inliers_min"`

	// MatchBestMin is the best-pair threshold for the two-signal accept rule.
	MatchBestMin float64 `koanf:"match_best_min"`

	// MatchConsMin is the minimum number of consistent pairs for the
	// two-signal accept rule.
	MatchConsMin int `koanf:"match_cons_min"`

	// MatchAccept is the floor on the final aggregated score.
	MatchAccept float64 `koanf:"match_accept"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		RetrievalTopK: 20,
		SimDeepMin:    0.82,
		InliersMin:    0.35,
		MatchBestMin:  0.88,
		MatchConsMin:  2,
		MatchAccept:   0.80,
	}
}
