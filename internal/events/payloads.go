// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package events

// SearchQueries maps a locale code ("en", "vi", "zh") to expanded search
// query strings for that locale.
type SearchQueries map[string][]string

// ProductsCollectRequest asks the marketplace collectors to gather listings.
type ProductsCollectRequest struct {
	Envelope
	Queries SearchQueries `json:"queries"`
	TopAmz  int           `json:"top_amz"`
	TopEbay int           `json:"top_ebay"`
}

// VideosSearchRequest asks the video collectors to gather review videos.
type VideosSearchRequest struct {
	Envelope
	Industry    string        `json:"industry"`
	Queries     SearchQueries `json:"queries"`
	Platforms   []string      `json:"platforms"`
	RecencyDays int           `json:"recency_days"`
}

// ProductImageReady announces one downloaded listing image.
type ProductImageReady struct {
	Envelope
	ProductID string `json:"product_id"`
	ImageID   string `json:"image_id"`
	LocalPath string `json:"local_path"`
}

// ProductImagesReadyBatch announces the expected image count for a job.
type ProductImagesReadyBatch struct {
	Envelope
	TotalImages int `json:"total_images"`
}

// FrameRef identifies one extracted keyframe within a video.
type FrameRef struct {
	FrameID   string  `json:"frame_id"`
	TS        float64 `json:"ts"`
	LocalPath string  `json:"local_path"`
}

// VideoKeyframesReady announces the extracted keyframes of one video.
type VideoKeyframesReady struct {
	Envelope
	VideoID string     `json:"video_id"`
	Frames  []FrameRef `json:"frames"`
}

// VideoKeyframesReadyBatch announces the expected keyframe count for a job.
type VideoKeyframesReadyBatch struct {
	Envelope
	TotalKeyframes int `json:"total_keyframes"`
}

// ProductImageMasked announces a segmentation mask for one image.
type ProductImageMasked struct {
	Envelope
	ImageID  string `json:"image_id"`
	MaskPath string `json:"mask_path"`
}

// ProductImagesMaskedBatch announces the masked image total for a job.
type ProductImagesMaskedBatch struct {
	Envelope
	TotalImages int `json:"total_images"`
}

// VideoKeyframesMasked announces segmentation masks for one video's frames.
type VideoKeyframesMasked struct {
	Envelope
	VideoID string     `json:"video_id"`
	Frames  []FrameRef `json:"frames"`
}

// VideoKeyframesMaskedBatch announces the masked keyframe total for a job.
type VideoKeyframesMaskedBatch struct {
	Envelope
	TotalKeyframes int `json:"total_keyframes"`
}

// AssetFeatureReady announces one extracted feature (embedding or keypoint
// blob) for a single asset. Failed is set by the feature worker when
// extraction was attempted and gave up; the asset still counts toward
// completion.
type AssetFeatureReady struct {
	Envelope
	AssetID string `json:"asset_id"`
	Failed  bool   `json:"failed,omitempty"`
}

// PhaseCompleted reports that a feature stage finished for one modality.
// Emitted exactly once per (job, asset type) by the completion emitter.
type PhaseCompleted struct {
	Envelope
	TotalAssets          int  `json:"total_assets"`
	ProcessedAssets      int  `json:"processed_assets"`
	FailedAssets         int  `json:"failed_assets"`
	HasPartialCompletion bool `json:"has_partial_completion"`
	WatermarkTTL         int  `json:"watermark_ttl,omitempty"`
}

// CollectionsCompleted reports that a collector finished its side of a job.
type CollectionsCompleted struct {
	Envelope
}

// MatchRequest triggers the matching engine for a job. TopK bounds the
// retrieval depth; nil means the configured default.
type MatchRequest struct {
	Envelope
	TopK *int `json:"top_k,omitempty"`
}

// BestPair is the highest-scoring (image, frame) pair behind a match.
type BestPair struct {
	ImgID     string  `json:"img_id"`
	FrameID   string  `json:"frame_id"`
	ScorePair float64 `json:"score_pair"`
	TS        float64 `json:"ts"`
}

// MatchResult reports one accepted product-video match.
type MatchResult struct {
	Envelope
	ProductID string   `json:"product_id"`
	VideoID   string   `json:"video_id"`
	BestPair  BestPair `json:"best_pair"`
	Score     float64  `json:"score"`
}

// MatchingsProcessCompleted reports that the matching engine finished a job.
type MatchingsProcessCompleted struct {
	Envelope
}

// EvidencesGenerationCompleted reports that evidence artifacts exist for all
// accepted matches of a job.
type EvidencesGenerationCompleted struct {
	Envelope
}

// JobFailed reports an unrecoverable job failure.
type JobFailed struct {
	Envelope
	Reason string `json:"reason"`
}

// JobCompleted reports that a job reached its terminal completed phase.
type JobCompleted struct {
	Envelope
}
