// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package events

import (
	"sort"

	"github.com/reelmatch/reelmatch/internal/models"
)

// Kind classifies how the orchestrator interprets an inbound topic.
type Kind int

const (
	// KindUnknown marks topics the orchestrator does not consume.
	KindUnknown Kind = iota
	// KindAssetProgress increments an asset counter.
	KindAssetProgress
	// KindBatchAnnouncement initialises asset counters with expected totals.
	KindBatchAnnouncement
	// KindObservational is recorded in the ledger and metrics only.
	KindObservational
	// KindPhaseCompletion feeds the phase transition decision.
	KindPhaseCompletion
	// KindFailure moves the job to the failed phase.
	KindFailure
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindAssetProgress:
		return "asset_progress"
	case KindBatchAnnouncement:
		return "batch_announcement"
	case KindObservational:
		return "observational"
	case KindPhaseCompletion:
		return "phase_completion"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Route describes the orchestrator's handling of one topic. For asset
// progress and batch announcements, AssetTypes names the affected counters.
type Route struct {
	Kind       Kind
	AssetTypes []models.AssetType
}

// routes is the static dispatch table. Event interpretation is data, not
// reflection: adding a topic means adding a row here.
var routes = map[string]Route{
	TopicProductImageReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetImageCollection},
	},
	TopicVideoKeyframesReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetVideoCollection},
	},
	TopicImageEmbeddingReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetImageEmbeddings},
	},
	TopicImageKeypointReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetImageKeypoints},
	},
	TopicVideoEmbeddingReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetVideoEmbeddings},
	},
	TopicVideoKeypointReady: {
		Kind:       KindAssetProgress,
		AssetTypes: []models.AssetType{models.AssetVideoKeypoints},
	},

	// A batch announcement seeds every downstream feature counter for its
	// modality: each image produces one embedding and one keypoint event.
	TopicProductImagesReadyBatch: {
		Kind: KindBatchAnnouncement,
		AssetTypes: []models.AssetType{
			models.AssetImageCollection,
			models.AssetImageEmbeddings,
			models.AssetImageKeypoints,
		},
	},
	TopicVideoKeyframesReadyBatch: {
		Kind: KindBatchAnnouncement,
		AssetTypes: []models.AssetType{
			models.AssetVideoCollection,
			models.AssetVideoEmbeddings,
			models.AssetVideoKeypoints,
		},
	},

	TopicProductImageMasked:        {Kind: KindObservational},
	TopicProductImagesMaskedBatch:  {Kind: KindObservational},
	TopicVideoKeyframesMasked:      {Kind: KindObservational},
	TopicVideoKeyframesMaskedBatch: {Kind: KindObservational},

	TopicProductsCollectionsCompleted: {Kind: KindPhaseCompletion},
	TopicVideosCollectionsCompleted:   {Kind: KindPhaseCompletion},
	TopicImageEmbeddingsCompleted:     {Kind: KindPhaseCompletion},
	TopicImageKeypointsCompleted:      {Kind: KindPhaseCompletion},
	TopicVideoEmbeddingsCompleted:     {Kind: KindPhaseCompletion},
	TopicVideoKeypointsCompleted:      {Kind: KindPhaseCompletion},
	TopicMatchingsProcessCompleted:    {Kind: KindPhaseCompletion},
	TopicEvidencesGenerationCompleted: {Kind: KindPhaseCompletion},

	TopicJobFailed: {Kind: KindFailure},
}

// RouteFor returns the dispatch route for a topic.
func RouteFor(topic string) (Route, bool) {
	r, ok := routes[topic]
	return r, ok
}

// CompletionTopic maps an emitting asset type to its completion topic.
// Returns empty string for observational counters.
func CompletionTopic(t models.AssetType) string {
	switch t {
	case models.AssetImageEmbeddings:
		return TopicImageEmbeddingsCompleted
	case models.AssetImageKeypoints:
		return TopicImageKeypointsCompleted
	case models.AssetVideoEmbeddings:
		return TopicVideoEmbeddingsCompleted
	case models.AssetVideoKeypoints:
		return TopicVideoKeypointsCompleted
	default:
		return ""
	}
}

// OrchestratorTopics returns the sorted list of topics the phase event
// service subscribes to.
func OrchestratorTopics() []string {
	topics := make([]string, 0, len(routes))
	for t := range routes {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
