// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package metrics provides Prometheus instrumentation for the pipeline:
// event bus throughput, orchestrator phase transitions, asset progress, and
// matching engine outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event bus metrics
	BusPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_publish_total",
			Help: "Total number of events published to the broker",
		},
		[]string{"topic"},
	)

	BusConsumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_consume_total",
			Help: "Total number of events consumed from the broker",
		},
		[]string{"topic"},
	)

	BusHandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_handler_duration_seconds",
			Help:    "Message handler execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	BusPoisonedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_poisoned_total",
			Help: "Total number of messages routed to the dead-letter queue",
		},
		[]string{"topic", "category"},
	)

	BusValidationDropTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_validation_drop_total",
			Help: "Total number of malformed events dropped without retry",
		},
	)

	// Orchestrator metrics
	EventsDeduplicatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_events_deduplicated_total",
			Help: "Total number of duplicate event deliveries ignored via the ledger",
		},
	)

	PhaseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_phase_transitions_total",
			Help: "Total number of job phase transitions applied",
		},
		[]string{"from", "to"},
	)

	PhaseCASConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_phase_cas_conflicts_total",
			Help: "Total number of phase updates rejected by compare-and-swap",
		},
	)

	WatermarkFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_watermark_fired_total",
			Help: "Total number of watermark deadlines that forced completion",
		},
		[]string{"asset_type"},
	)

	PartialCompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_partial_completions_total",
			Help: "Total number of phase completions emitted with missing assets",
		},
		[]string{"asset_type"},
	)

	AssetsObservedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_assets_observed_total",
			Help: "Total number of per-asset progress events applied to counters",
		},
		[]string{"asset_type", "outcome"}, // outcome: processed, failed
	)

	// Matching engine metrics
	MatchRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_requests_total",
			Help: "Total number of match.request events processed",
		},
	)

	MatchRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_request_duration_seconds",
			Help:    "End-to-end duration of a single match request",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	MatchPairsScoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_pairs_scored_total",
			Help: "Total number of (image, frame) pairs scored",
		},
	)

	MatchesAcceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_accepted_total",
			Help: "Total number of accepted product-video matches persisted",
		},
	)

	MatchKeypointFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_keypoint_fallback_total",
			Help: "Total number of pairs scored with deep-similarity fallback due to missing keypoint blobs",
		},
	)

	MatchPairErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_pair_errors_total",
			Help: "Total number of pairs skipped after exhausting retries",
		},
		[]string{"reason"}, // missing_embedding, blob_read, database
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of Postgres queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of Postgres query errors",
		},
		[]string{"operation", "table"},
	)
)

// RecordPublish records a successful broker publish.
func RecordPublish(topic string) {
	BusPublishTotal.WithLabelValues(topic).Inc()
}

// RecordConsume records a message delivery to a handler.
func RecordConsume(topic string) {
	BusConsumeTotal.WithLabelValues(topic).Inc()
}

// RecordHandlerDuration records handler execution time.
func RecordHandlerDuration(handler string, d time.Duration) {
	BusHandlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}

// RecordPoisoned records a message routed to the DLQ.
func RecordPoisoned(topic, category string) {
	BusPoisonedTotal.WithLabelValues(topic, category).Inc()
}

// RecordValidationDrop records a malformed event dropped without retry.
func RecordValidationDrop() {
	BusValidationDropTotal.Inc()
}

// RecordDeduplicated records a duplicate event delivery ignored by the ledger.
func RecordDeduplicated() {
	EventsDeduplicatedTotal.Inc()
}

// RecordPhaseTransition records an applied phase transition.
func RecordPhaseTransition(from, to string) {
	PhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordPhaseCASConflict records a lost phase-update race.
func RecordPhaseCASConflict() {
	PhaseCASConflictsTotal.Inc()
}

// RecordWatermarkFired records a watermark deadline forcing completion.
func RecordWatermarkFired(assetType string) {
	WatermarkFiredTotal.WithLabelValues(assetType).Inc()
}

// RecordPartialCompletion records a completion emitted with missing assets.
func RecordPartialCompletion(assetType string) {
	PartialCompletionsTotal.WithLabelValues(assetType).Inc()
}

// RecordAssetObserved records a per-asset progress increment.
func RecordAssetObserved(assetType string, failed bool) {
	outcome := "processed"
	if failed {
		outcome = "failed"
	}
	AssetsObservedTotal.WithLabelValues(assetType, outcome).Inc()
}

// RecordMatchRequest records a processed match.request.
func RecordMatchRequest(d time.Duration) {
	MatchRequestsTotal.Inc()
	MatchRequestDuration.Observe(d.Seconds())
}

// RecordPairScored records one scored (image, frame) pair.
func RecordPairScored() {
	MatchPairsScoredTotal.Inc()
}

// RecordMatchAccepted records one persisted match.
func RecordMatchAccepted() {
	MatchesAcceptedTotal.Inc()
}

// RecordKeypointFallback records a pair scored without keypoint geometry.
func RecordKeypointFallback() {
	MatchKeypointFallbackTotal.Inc()
}

// RecordPairError records a pair abandoned after retries.
func RecordPairError(reason string) {
	MatchPairErrorsTotal.WithLabelValues(reason).Inc()
}

// RecordDBQuery records a query duration and optional error.
func RecordDBQuery(operation, table string, d time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(d.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
