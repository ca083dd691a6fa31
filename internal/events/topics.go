// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package events defines the wire contract of the pipeline: topic names,
// the event envelope, typed payloads, and the static topic dispatch table.
// Topic names are normative; external collectors and feature workers publish
// and consume exactly these subjects.
package events

// Outbound request topics consumed by external workers.
const (
	TopicProductsCollectRequest = "products.collect.request"
	TopicVideosSearchRequest    = "videos.search.request"
)

// Per-asset progress and batch announcement topics.
const (
	TopicProductImageReady         = "products.image.ready"
	TopicProductImagesReadyBatch   = "products.images.ready.batch"
	TopicVideoKeyframesReady       = "video.keyframes.ready"
	TopicVideoKeyframesReadyBatch  = "video.keyframes.ready.batch"
	TopicProductImageMasked        = "products.image.masked"
	TopicProductImagesMaskedBatch  = "products.images.masked.batch"
	TopicVideoKeyframesMasked      = "video.keyframes.masked"
	TopicVideoKeyframesMaskedBatch = "video.keyframes.masked.batch"
	TopicImageEmbeddingReady       = "image.embedding.ready"
	TopicImageKeypointReady        = "image.keypoint.ready"
	TopicVideoEmbeddingReady       = "video.embedding.ready"
	TopicVideoKeypointReady        = "video.keypoint.ready"
)

// Phase completion topics.
const (
	TopicProductsCollectionsCompleted = "products.collections.completed"
	TopicVideosCollectionsCompleted   = "videos.collections.completed"
	TopicImageEmbeddingsCompleted     = "image.embeddings.completed"
	TopicImageKeypointsCompleted      = "image.keypoints.completed"
	TopicVideoEmbeddingsCompleted     = "video.embeddings.completed"
	TopicVideoKeypointsCompleted      = "video.keypoints.completed"
	TopicMatchingsProcessCompleted    = "matchings.process.completed"
	TopicEvidencesGenerationCompleted = "evidences.generation.completed"
)

// Matching and terminal topics.
const (
	TopicMatchRequest = "match.request"
	TopicMatchResult  = "match.result"
	TopicJobFailed    = "job.failed"
	TopicJobCompleted = "job.completed"
)

// TopicDLQ receives messages that exhausted their redelivery budget.
const TopicDLQ = "pipeline.poison"

// CorrelationIDMetadataKey is the message metadata (header) key carrying the
// correlation ID across services.
const CorrelationIDMetadataKey = "correlation_id"
