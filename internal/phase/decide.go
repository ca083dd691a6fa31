// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package phase holds the job phase transition rules as a pure function
// over the job record and the set of completion events seen for it. No I/O
// and no timers live here; the orchestrator supplies the view and applies
// the decision.
package phase

import (
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Emission names a side-effect event the orchestrator must publish after
// applying a transition.
type Emission int

const (
	EmitMatchRequest Emission = iota
	EmitJobCompleted
)

// Decision is the outcome of evaluating the transition table. When Apply is
// false the incoming event changes nothing and is acknowledged as a no-op.
type Decision struct {
	Apply bool
	From  models.Phase
	To    models.Phase
	Emit  []Emission
}

// View is the per-job slice of the ledger: which completion event names
// have been recorded for the job.
type View map[string]bool

// ViewNames lists every event name a View needs to answer for.
var ViewNames = []string{
	events.TopicProductsCollectionsCompleted,
	events.TopicVideosCollectionsCompleted,
	events.TopicImageEmbeddingsCompleted,
	events.TopicImageKeypointsCompleted,
	events.TopicVideoEmbeddingsCompleted,
	events.TopicVideoKeypointsCompleted,
	events.TopicMatchingsProcessCompleted,
	events.TopicEvidencesGenerationCompleted,
}

// Decide evaluates a single step of the transition table for the job's
// current phase. Callers loop until Apply is false: a zero-asset job moves
// through feature_extraction without waiting for events that will never
// arrive.
func Decide(job *models.Job, view View) Decision {
	switch job.Phase {
	case models.PhaseCollection:
		if view[events.TopicProductsCollectionsCompleted] &&
			view[events.TopicVideosCollectionsCompleted] {
			return Decision{
				Apply: true,
				From:  models.PhaseCollection,
				To:    models.PhaseFeatureExtraction,
			}
		}

	case models.PhaseFeatureExtraction:
		if job.AssetFlags.Zero() || view.hasRequiredSet(job.AssetFlags) {
			return Decision{
				Apply: true,
				From:  models.PhaseFeatureExtraction,
				To:    models.PhaseMatching,
				Emit:  []Emission{EmitMatchRequest},
			}
		}

	case models.PhaseMatching:
		if view[events.TopicMatchingsProcessCompleted] {
			return Decision{
				Apply: true,
				From:  models.PhaseMatching,
				To:    models.PhaseEvidence,
			}
		}

	case models.PhaseEvidence:
		if view[events.TopicEvidencesGenerationCompleted] {
			return Decision{
				Apply: true,
				From:  models.PhaseEvidence,
				To:    models.PhaseCompleted,
				Emit:  []Emission{EmitJobCompleted},
			}
		}
	}

	return Decision{}
}

// DecideFailure moves any non-terminal job to failed.
func DecideFailure(job *models.Job) Decision {
	if job.Phase.IsTerminal() {
		return Decision{}
	}
	return Decision{
		Apply: true,
		From:  job.Phase,
		To:    models.PhaseFailed,
	}
}

// hasRequiredSet checks that every completion the job's modalities demand is
// present. Image-only and video-only jobs must not wait on the other side.
func (v View) hasRequiredSet(flags models.AssetFlags) bool {
	if flags.HasImages {
		if !v[events.TopicImageEmbeddingsCompleted] || !v[events.TopicImageKeypointsCompleted] {
			return false
		}
	}
	if flags.HasVideos {
		if !v[events.TopicVideoEmbeddingsCompleted] || !v[events.TopicVideoKeypointsCompleted] {
			return false
		}
	}
	return flags.HasImages || flags.HasVideos
}
