// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
)

func TestWatermillAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillAdapterWithLogger(NewTestLogger(&buf))

	adapter.Info("info message", watermill.LogFields{"topic": "match.request"})
	adapter.Error("error message", errors.New("boom"), nil)

	out := buf.String()
	if !strings.Contains(out, "info message") {
		t.Errorf("expected info message, got %q", out)
	}
	if !strings.Contains(out, `"topic":"match.request"`) {
		t.Errorf("expected topic field, got %q", out)
	}
	if !strings.Contains(out, "boom") {
		t.Errorf("expected error in output, got %q", out)
	}
}

func TestWatermillAdapter_With(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillAdapterWithLogger(NewTestLogger(&buf))

	child := adapter.With(watermill.LogFields{"handler": "phase-events"})
	child.Info("handled", nil)

	if !strings.Contains(buf.String(), `"handler":"phase-events"`) {
		t.Errorf("expected inherited field, got %q", buf.String())
	}
}
