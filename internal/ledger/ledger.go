// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package ledger implements the processed-events idempotency ledger.
// Every consumed event is recorded by its event ID; a second delivery of
// the same ID is detected before any side effect runs, which turns
// at-least-once delivery into exactly-once effect. The claim compensates
// rather than commits with the work: a handler that fails transiently
// releases its claim so the redelivery is processed again.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/reelmatch/reelmatch/internal/cache"
	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/metrics"
)

// Store records and checks processed event IDs. A small LRU cache fronts
// the database so hot duplicates (broker redeliveries arrive in bursts)
// skip the round trip.
type Store struct {
	db    *database.Store
	cache *cache.LRUCache
}

// New creates a ledger backed by the given database.
func New(db *database.Store) *Store {
	return &Store{
		db:    db,
		cache: cache.NewLRUCache(10000, 10*time.Minute),
	}
}

// Record attempts to claim an event ID. It returns true when this is the
// first delivery, false when the ID was already recorded. The conditional
// insert makes the claim atomic across concurrent consumers.
func (s *Store) Record(ctx context.Context, eventID, jobID, eventName string) (bool, error) {
	if s.cache.Contains(eventID) {
		metrics.RecordDeduplicated()
		return false, nil
	}

	start := time.Now()
	tag, err := s.db.Pool().Exec(ctx,
		`INSERT INTO processed_events (event_id, job_id, event_name, first_seen_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, jobID, eventName,
	)
	database.Observe("insert", "processed_events", start, err)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", eventID, err)
	}

	s.cache.Add(eventID, time.Now())

	if tag.RowsAffected() == 0 {
		metrics.RecordDeduplicated()
		return false, nil
	}
	return true, nil
}

// Release withdraws a claim whose side effects did not complete. Handlers
// call this before returning a retryable error so the broker redelivery is
// treated as a first delivery instead of a duplicate.
func (s *Store) Release(ctx context.Context, eventID string) error {
	start := time.Now()
	_, err := s.db.Pool().Exec(ctx,
		`DELETE FROM processed_events WHERE event_id = $1`, eventID)
	database.Observe("delete", "processed_events", start, err)
	if err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	s.cache.Remove(eventID)
	return nil
}

// Has reports whether an event ID was already processed.
func (s *Store) Has(ctx context.Context, eventID string) (bool, error) {
	if s.cache.Contains(eventID) {
		return true, nil
	}

	start := time.Now()
	var exists bool
	err := s.db.Pool().QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID,
	).Scan(&exists)
	database.Observe("select", "processed_events", start, err)
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}

	if exists {
		s.cache.Add(eventID, time.Now())
	}
	return exists, nil
}

// SeenForJob returns the set of event names recorded for a job, restricted
// to names. The phase transition decision reads this view to learn which
// completion events have arrived.
func (s *Store) SeenForJob(ctx context.Context, jobID string, names []string) (map[string]bool, error) {
	start := time.Now()
	rows, err := s.db.Pool().Query(ctx,
		`SELECT DISTINCT event_name FROM processed_events
		 WHERE job_id = $1 AND event_name = ANY($2)`,
		jobID, names,
	)
	database.Observe("select", "processed_events", start, err)
	if err != nil {
		return nil, fmt.Errorf("list events for job %s: %w", jobID, err)
	}
	defer rows.Close()

	seen := make(map[string]bool, len(names))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan event name: %w", err)
		}
		seen[name] = true
	}
	return seen, rows.Err()
}
