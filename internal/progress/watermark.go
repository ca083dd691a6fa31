// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package progress

import (
	"context"
	"sync"
	"time"

	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// FireFunc is invoked when a counter's watermark deadline elapses. The
// callback runs on the timer goroutine and must claim emission itself via
// SetCompleted; firing is a hint, not a guarantee of exclusivity.
type FireFunc func(ctx context.Context, jobID string, assetType models.AssetType)

type timerKey struct {
	jobID     string
	assetType models.AssetType
}

// Watcher maintains one-shot timers for armed watermark deadlines. Timers
// live in memory only; Rebuild restores them from persisted deadlines after
// a restart, so a crash cannot orphan a stuck counter.
type Watcher struct {
	store *Store
	fire  FireFunc

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher. Serve must be running before Schedule is
// useful; fire callbacks are suppressed after shutdown.
func NewWatcher(store *Store, fire FireFunc) *Watcher {
	return &Watcher{
		store:  store,
		fire:   fire,
		timers: make(map[timerKey]*time.Timer),
	}
}

// Serve rebuilds timers from the database and blocks until ctx is
// cancelled, then stops all pending timers. Implements suture.Service.
func (w *Watcher) Serve(ctx context.Context) error {
	w.mu.Lock()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	if err := w.Rebuild(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	w.mu.Lock()
	defer w.mu.Unlock()
	for key, timer := range w.timers {
		timer.Stop()
		delete(w.timers, key)
	}
	return ctx.Err()
}

// Rebuild schedules timers for every pending counter. Deadlines already in
// the past fire immediately.
func (w *Watcher) Rebuild(ctx context.Context) error {
	counters, err := w.store.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, c := range counters {
		w.Schedule(c.JobID, c.AssetType, c.WatermarkDeadline)
	}

	logging.WithComponent("watermark").Info().
		Int("count", len(counters)).
		Msg("rebuilt watermark timers")
	return nil
}

// Schedule arms (or re-arms) the one-shot timer for a counter.
func (w *Watcher) Schedule(jobID string, assetType models.AssetType, deadline time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := timerKey{jobID: jobID, assetType: assetType}
	if timer, ok := w.timers[key]; ok {
		timer.Stop()
	}

	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	w.timers[key] = time.AfterFunc(delay, func() {
		w.fired(key)
	})
}

// Cancel disarms the timer for a counter that completed via counts.
func (w *Watcher) Cancel(jobID string, assetType models.AssetType) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := timerKey{jobID: jobID, assetType: assetType}
	if timer, ok := w.timers[key]; ok {
		timer.Stop()
		delete(w.timers, key)
	}
}

func (w *Watcher) fired(key timerKey) {
	w.mu.Lock()
	delete(w.timers, key)
	ctx := w.ctx
	w.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	metrics.RecordWatermarkFired(string(key.assetType))
	logging.WithComponent("watermark").Info().
		Str("job_id", key.jobID).
		Str("asset_type", string(key.assetType)).
		Msg("watermark deadline elapsed")

	w.fire(ctx, key.jobID, key.assetType)
}
