// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package models defines the persistent domain entities shared across the
// pipeline: jobs, asset counters, catalog rows, and matches. The database
// owns every entity; in-memory values are transient views.
package models

import "time"

// Phase is the coarse state of a job. Phases only move forward along the
// transition graph; they never move backward.
type Phase string

// Job phases in pipeline order.
const (
	PhaseCollection        Phase = "collection"
	PhaseFeatureExtraction Phase = "feature_extraction"
	PhaseMatching          Phase = "matching"
	PhaseEvidence          Phase = "evidence"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseCollection, PhaseFeatureExtraction, PhaseMatching,
		PhaseEvidence, PhaseCompleted, PhaseFailed:
		return true
	}
	return false
}

// AssetFlags records which asset modalities a job carries. A job with both
// flags false skips feature extraction entirely.
type AssetFlags struct {
	HasImages bool
	HasVideos bool
}

// Zero reports whether the job has no assets at all.
func (f AssetFlags) Zero() bool {
	return !f.HasImages && !f.HasVideos
}

// Job is one matching job admitted into the pipeline. Created by an external
// admission step before the first request event is published.
type Job struct {
	JobID      string
	Industry   string
	Phase      Phase
	AssetFlags AssetFlags
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProcessedEvent is one row of the idempotency ledger. Written exactly once
// per event ID and read-only afterwards.
type ProcessedEvent struct {
	EventID     string
	EventName   string
	FirstSeenAt time.Time
}
