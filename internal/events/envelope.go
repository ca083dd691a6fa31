// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package events

import (
	"time"

	"github.com/google/uuid"
)

// Envelope carries the fields common to every pipeline event. Payload
// structs embed it so the wire format stays one flat JSON object.
//
// EventID is the idempotency key: re-publishes of the same logical event
// carry the same EventID, and consumers must treat it as
// exactly-once-effect under at-least-once delivery.
type Envelope struct {
	EventID   string    `json:"event_id"`
	JobID     string    `json:"job_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope creates an envelope with a fresh event ID and UTC timestamp.
func NewEnvelope(jobID string) Envelope {
	return Envelope{
		EventID:   uuid.New().String(),
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the required identification fields. Events failing
// validation are dropped without retry; they can never succeed.
func (e *Envelope) Validate() error {
	if e.EventID == "" {
		return &ValidationError{Field: "event_id", Message: "required"}
	}
	if _, err := uuid.Parse(e.EventID); err != nil {
		return &ValidationError{Field: "event_id", Message: "not a UUID"}
	}
	if e.JobID == "" {
		return &ValidationError{Field: "job_id", Message: "required"}
	}
	if _, err := uuid.Parse(e.JobID); err != nil {
		return &ValidationError{Field: "job_id", Message: "not a UUID"}
	}
	return nil
}

// Common returns the envelope itself; payload types satisfy the Event
// interface through embedding.
func (e *Envelope) Common() *Envelope {
	return e
}

// Event is implemented by every typed payload via the embedded Envelope.
type Event interface {
	Common() *Envelope
	Validate() error
}

// ValidationError reports a missing or malformed envelope field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
