// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package events

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Marshal validates and encodes an event as one flat JSON object.
func Marshal(event Event) ([]byte, error) {
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("validate event: %w", err)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return data, nil
}

// Unmarshal decodes payload bytes into the typed event and validates the
// envelope fields.
func Unmarshal(data []byte, into Event) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if err := into.Validate(); err != nil {
		return fmt.Errorf("validate event: %w", err)
	}
	return nil
}

// ParseEnvelope decodes only the common envelope fields. Used by the
// orchestrator to validate and dedup before payload-specific decoding.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &env, nil
}
