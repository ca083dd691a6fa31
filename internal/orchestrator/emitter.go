// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/eventbus"
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// maybeEmitCompletion checks a counter after any mutation and, when it is
// terminal, claims emission via the completed_emitted CAS. Only the claim
// winner publishes, so each (job, asset type) emits exactly one completion
// event no matter how many deliveries race here.
func (o *Orchestrator) maybeEmitCompletion(ctx context.Context, counter *models.AssetCounter) error {
	if counter.CompletedEmitted || !counter.IsTerminal(time.Now().UTC()) {
		return nil
	}

	if o.watermark != nil {
		o.watermark.Cancel(counter.JobID, counter.AssetType)
	}

	if !counter.AssetType.Emits() {
		// Collection counters complete silently; the collectors announce
		// their own completion events.
		_, err := o.progress.SetCompleted(ctx, counter.JobID, counter.AssetType)
		if err != nil {
			return eventbus.NewRetryableError("set completed", err)
		}
		return nil
	}

	won, err := o.progress.SetCompleted(ctx, counter.JobID, counter.AssetType)
	if err != nil {
		return eventbus.NewRetryableError("set completed", err)
	}
	if !won {
		return nil
	}

	return o.emitPhaseCompleted(ctx, counter)
}

// OnWatermarkFired is the watcher callback. The timer only hints that the
// deadline elapsed; the CAS decides whether this instance actually emits.
func (o *Orchestrator) OnWatermarkFired(ctx context.Context, jobID string, assetType models.AssetType) {
	counter, err := o.progress.Get(ctx, jobID, assetType)
	if errors.Is(err, database.ErrNotFound) {
		return
	}
	if err != nil {
		logging.CtxErr(ctx, err).
			Str("job_id", jobID).
			Str("asset_type", string(assetType)).
			Msg("loading counter after watermark")
		return
	}
	if counter.CompletedEmitted {
		return
	}

	won, err := o.progress.SetCompleted(ctx, jobID, assetType)
	if err != nil || !won {
		if err != nil {
			logging.CtxErr(ctx, err).Msg("claiming completion after watermark")
		}
		return
	}

	if !assetType.Emits() {
		return
	}

	// Readies observed between the snapshot read and the claim belong in the
	// completion event; emit from a fresh row.
	if fresh, err := o.progress.Get(ctx, jobID, assetType); err == nil {
		counter = fresh
	} else {
		logging.CtxErr(ctx, err).
			Str("job_id", jobID).
			Str("asset_type", string(assetType)).
			Msg("re-reading counter after watermark claim")
	}

	if err := o.emitPhaseCompleted(ctx, counter); err != nil {
		logging.CtxErr(ctx, err).
			Str("job_id", jobID).
			Str("asset_type", string(assetType)).
			Msg("emitting completion after watermark")
	}
}

// emitPhaseCompleted publishes the single completion event for a counter.
// Partial completion is an expected outcome, logged at WARN and carried in
// the event flag; the FSM continues normally.
func (o *Orchestrator) emitPhaseCompleted(ctx context.Context, counter *models.AssetCounter) error {
	partial := counter.HasPartialCompletion()
	if partial {
		metrics.RecordPartialCompletion(string(counter.AssetType))
		logging.Ctx(ctx).Warn().
			Str("job_id", counter.JobID).
			Str("asset_type", string(counter.AssetType)).
			Int("expected", counter.Expected).
			Int("processed", counter.Processed).
			Int("failed", counter.Failed).
			Msg("phase completed with missing assets")
	}

	evt := &events.PhaseCompleted{
		Envelope:             events.NewEnvelope(counter.JobID),
		TotalAssets:          counter.Expected,
		ProcessedAssets:      counter.Processed,
		FailedAssets:         counter.Failed,
		HasPartialCompletion: partial,
		WatermarkTTL:         int(o.cfg.WatermarkTTL.Seconds()),
	}

	topic := events.CompletionTopic(counter.AssetType)
	if err := o.publisher.PublishEvent(ctx, topic, evt); err != nil {
		return eventbus.NewRetryableError("publish phase completion", err)
	}

	logging.Ctx(ctx).Info().
		Str("job_id", counter.JobID).
		Str("topic", topic).
		Bool("partial", partial).
		Msg("phase completion emitted")
	return nil
}
