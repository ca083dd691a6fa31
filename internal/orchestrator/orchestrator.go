// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package orchestrator is the phase event service: the single consumer of
// pipeline progress events. Every message passes through validate, dedup,
// interpret, decide, apply. The database CAS operations in the job store
// and progress store make the handler safe under concurrent delivery.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/eventbus"
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/phase"
)

// Publisher publishes typed events.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event events.Event) error
}

// Ledger is the idempotency ledger consumed by the orchestrator.
type Ledger interface {
	Record(ctx context.Context, eventID, jobID, eventName string) (bool, error)
	Release(ctx context.Context, eventID string) error
	SeenForJob(ctx context.Context, jobID string, names []string) (map[string]bool, error)
}

// Jobs is the job record store.
type Jobs interface {
	Get(ctx context.Context, jobID string) (*models.Job, error)
	UpdatePhase(ctx context.Context, jobID string, from, to models.Phase) (bool, error)
}

// Progress is the asset counter registry.
type Progress interface {
	Initialize(ctx context.Context, jobID string, assetType models.AssetType, expected int, watermarkTTL time.Duration) (*models.AssetCounter, error)
	Observe(ctx context.Context, jobID string, assetType models.AssetType, deltaProcessed, deltaFailed int) (*models.AssetCounter, error)
	Get(ctx context.Context, jobID string, assetType models.AssetType) (*models.AssetCounter, error)
	SetCompleted(ctx context.Context, jobID string, assetType models.AssetType) (bool, error)
}

// WatermarkScheduler arms and disarms watermark timers.
type WatermarkScheduler interface {
	Schedule(jobID string, assetType models.AssetType, deadline time.Time)
	Cancel(jobID string, assetType models.AssetType)
}

// Config holds orchestrator tunables.
type Config struct {
	// WatermarkTTL is the quiet period after which an incomplete counter
	// force-completes with the partial flag.
	WatermarkTTL time.Duration `koanf:"watermark_ttl"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{WatermarkTTL: 300 * time.Second}
}

// Orchestrator handles every inbound pipeline event.
type Orchestrator struct {
	cfg       Config
	ledger    Ledger
	jobs      Jobs
	progress  Progress
	publisher Publisher
	watermark WatermarkScheduler
}

// New creates an orchestrator. The watermark scheduler may be nil in tests.
func New(cfg Config, ledger Ledger, jobs Jobs, progress Progress, publisher Publisher, watermark WatermarkScheduler) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		ledger:    ledger,
		jobs:      jobs,
		progress:  progress,
		publisher: publisher,
		watermark: watermark,
	}
}

// Handle processes one raw message from a topic. Returned permanent errors
// cause an ack-and-drop; retryable errors cause redelivery.
func (o *Orchestrator) Handle(ctx context.Context, topic string, payload []byte) error {
	env, err := events.ParseEnvelope(payload)
	if err != nil {
		metrics.RecordValidationDrop()
		return eventbus.NewValidationDrop("unparseable payload", err)
	}
	if err := env.Validate(); err != nil {
		metrics.RecordValidationDrop()
		logging.Ctx(ctx).Error().Err(err).
			Str("topic", topic).
			Msg("dropping malformed event")
		return eventbus.NewValidationDrop("invalid envelope", err)
	}

	ctx = logging.ContextWithJobID(ctx, env.JobID)

	route, ok := events.RouteFor(topic)
	if !ok {
		logging.Ctx(ctx).Warn().Str("topic", topic).Msg("no route for topic")
		return nil
	}

	first, err := o.ledger.Record(ctx, env.EventID, env.JobID, topic)
	if err != nil {
		return eventbus.NewRetryableError("record event", err)
	}
	if !first {
		logging.Ctx(ctx).Debug().
			Str("event_id", env.EventID).
			Str("topic", topic).
			Msg("duplicate event ignored")
		return nil
	}

	if err := o.dispatch(ctx, topic, route, payload, env); err != nil {
		// A retryable failure hands the event back to the broker; withdraw
		// the claim so the redelivery is not mistaken for a duplicate.
		if !eventbus.IsPermanent(err) {
			o.releaseClaim(ctx, env.EventID)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, topic string, route events.Route, payload []byte, env *events.Envelope) error {
	switch route.Kind {
	case events.KindBatchAnnouncement:
		return o.handleBatch(ctx, topic, route, payload, env)
	case events.KindAssetProgress:
		return o.handleAssetProgress(ctx, topic, route, payload, env)
	case events.KindObservational:
		logging.Ctx(ctx).Debug().Str("topic", topic).Msg("observational event recorded")
		return nil
	case events.KindPhaseCompletion:
		return o.advance(ctx, env.JobID)
	case events.KindFailure:
		return o.handleFailure(ctx, payload, env)
	default:
		return nil
	}
}

// releaseClaim is best-effort: when the delete itself fails the claim stays
// and the redelivery dedups, leaving the watermark to force completion.
func (o *Orchestrator) releaseClaim(ctx context.Context, eventID string) {
	if err := o.ledger.Release(ctx, eventID); err != nil {
		logging.CtxErr(ctx, err).Str("event_id", eventID).Msg("releasing ledger claim")
	}
}

// handleBatch initialises every counter the announcement seeds. Expected
// totals of zero make the counter terminal immediately, so the completion
// check runs right after initialisation.
func (o *Orchestrator) handleBatch(ctx context.Context, topic string, route events.Route, payload []byte, env *events.Envelope) error {
	total, err := batchTotal(topic, payload)
	if err != nil {
		metrics.RecordValidationDrop()
		return eventbus.NewValidationDrop("invalid batch payload", err)
	}

	for _, assetType := range route.AssetTypes {
		counter, err := o.progress.Initialize(ctx, env.JobID, assetType, total, o.cfg.WatermarkTTL)
		if err != nil {
			return eventbus.NewRetryableError("initialize counter", err)
		}

		if o.watermark != nil && !counter.CompletedEmitted {
			o.watermark.Schedule(env.JobID, assetType, counter.WatermarkDeadline)
		}

		if err := o.maybeEmitCompletion(ctx, counter); err != nil {
			return err
		}
	}

	logging.Ctx(ctx).Info().
		Str("topic", topic).
		Int("expected", total).
		Msg("asset counters initialised")
	return nil
}

// handleAssetProgress applies one ready event to its counter and emits the
// phase completion when the counter becomes terminal.
func (o *Orchestrator) handleAssetProgress(ctx context.Context, topic string, route events.Route, payload []byte, env *events.Envelope) error {
	deltaProcessed, deltaFailed, err := progressDeltas(topic, payload)
	if err != nil {
		metrics.RecordValidationDrop()
		return eventbus.NewValidationDrop("invalid progress payload", err)
	}

	for _, assetType := range route.AssetTypes {
		counter, err := o.progress.Observe(ctx, env.JobID, assetType, deltaProcessed, deltaFailed)
		if errors.Is(err, database.ErrNotFound) {
			// The batch announcement may still be in flight.
			return eventbus.NewRetryableError("counter not initialised", err)
		}
		if err != nil {
			return eventbus.NewRetryableError("observe counter", err)
		}

		if err := o.maybeEmitCompletion(ctx, counter); err != nil {
			return err
		}
	}
	return nil
}

// advance loads the job, evaluates the transition table, and applies every
// decision it yields. A CAS miss means another instance got there first;
// the job is reloaded and evaluation continues from its new phase.
func (o *Orchestrator) advance(ctx context.Context, jobID string) error {
	job, err := o.jobs.Get(ctx, jobID)
	if errors.Is(err, database.ErrNotFound) {
		// Admission may lag the first collector events.
		return eventbus.NewRetryableError("job not found", err)
	}
	if err != nil {
		return eventbus.NewRetryableError("load job", err)
	}

	seen, err := o.ledger.SeenForJob(ctx, jobID, phase.ViewNames)
	if err != nil {
		return eventbus.NewRetryableError("load ledger view", err)
	}
	view := phase.View(seen)

	for {
		decision := phase.Decide(job, view)
		if !decision.Apply {
			return nil
		}

		applied, err := o.jobs.UpdatePhase(ctx, jobID, decision.From, decision.To)
		if err != nil {
			return eventbus.NewRetryableError("update phase", err)
		}
		if !applied {
			job, err = o.jobs.Get(ctx, jobID)
			if err != nil {
				return eventbus.NewRetryableError("reload job", err)
			}
			continue
		}

		job.Phase = decision.To
		logging.Ctx(ctx).Info().
			Str("from", string(decision.From)).
			Str("to", string(decision.To)).
			Msg("phase transition applied")

		if err := o.emitDecision(ctx, jobID, decision); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) emitDecision(ctx context.Context, jobID string, decision phase.Decision) error {
	for _, emit := range decision.Emit {
		switch emit {
		case phase.EmitMatchRequest:
			evt := &events.MatchRequest{Envelope: events.NewEnvelope(jobID)}
			if err := o.publisher.PublishEvent(ctx, events.TopicMatchRequest, evt); err != nil {
				return eventbus.NewRetryableError("publish match.request", err)
			}
		case phase.EmitJobCompleted:
			evt := &events.JobCompleted{Envelope: events.NewEnvelope(jobID)}
			if err := o.publisher.PublishEvent(ctx, events.TopicJobCompleted, evt); err != nil {
				return eventbus.NewRetryableError("publish job.completed", err)
			}
		}
	}
	return nil
}

// handleFailure moves the job to failed. The failure event itself already
// reached every subscriber, so nothing is re-published.
func (o *Orchestrator) handleFailure(ctx context.Context, payload []byte, env *events.Envelope) error {
	var evt events.JobFailed
	if err := events.Unmarshal(payload, &evt); err != nil {
		metrics.RecordValidationDrop()
		return eventbus.NewValidationDrop("invalid failure payload", err)
	}

	job, err := o.jobs.Get(ctx, env.JobID)
	if errors.Is(err, database.ErrNotFound) {
		logging.Ctx(ctx).Warn().Msg("failure for unknown job")
		return nil
	}
	if err != nil {
		return eventbus.NewRetryableError("load job", err)
	}

	decision := phase.DecideFailure(job)
	if !decision.Apply {
		return nil
	}

	applied, err := o.jobs.UpdatePhase(ctx, env.JobID, decision.From, decision.To)
	if err != nil {
		return eventbus.NewRetryableError("update phase", err)
	}
	if applied {
		logging.Ctx(ctx).Warn().
			Str("reason", evt.Reason).
			Str("from", string(decision.From)).
			Msg("job failed")
	}
	return nil
}

// batchTotal extracts the expected asset count from a batch announcement.
func batchTotal(topic string, payload []byte) (int, error) {
	switch topic {
	case events.TopicProductImagesReadyBatch:
		var evt events.ProductImagesReadyBatch
		if err := events.Unmarshal(payload, &evt); err != nil {
			return 0, err
		}
		return evt.TotalImages, nil
	case events.TopicVideoKeyframesReadyBatch:
		var evt events.VideoKeyframesReadyBatch
		if err := events.Unmarshal(payload, &evt); err != nil {
			return 0, err
		}
		return evt.TotalKeyframes, nil
	default:
		return 0, fmt.Errorf("topic %s is not a batch announcement", topic)
	}
}

// progressDeltas extracts the counter deltas from a per-asset ready event.
// A keyframes-ready event contributes one unit per frame it carries.
func progressDeltas(topic string, payload []byte) (processed, failed int, err error) {
	switch topic {
	case events.TopicVideoKeyframesReady:
		var evt events.VideoKeyframesReady
		if err := events.Unmarshal(payload, &evt); err != nil {
			return 0, 0, err
		}
		return len(evt.Frames), 0, nil
	case events.TopicProductImageReady:
		var evt events.ProductImageReady
		if err := events.Unmarshal(payload, &evt); err != nil {
			return 0, 0, err
		}
		return 1, 0, nil
	default:
		var evt events.AssetFeatureReady
		if err := events.Unmarshal(payload, &evt); err != nil {
			return 0, 0, err
		}
		if evt.Failed {
			return 0, 1, nil
		}
		return 1, 0, nil
	}
}
