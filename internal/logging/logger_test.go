// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit_Format(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: false, Output: &buf})

	Info().Str("key", "value").Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"key":"value"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestWithComponent_Chainable(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Timestamp: false, Output: &buf})

	WithComponent("database").Info().Str("table", "jobs").Msg("query")

	out := buf.String()
	if !strings.Contains(out, `"component":"database"`) {
		t.Errorf("expected component field in output, got %q", out)
	}
	if !strings.Contains(out, `"table":"jobs"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"garbage", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCtx_CorrelationAndJobID(t *testing.T) {
	t.Cleanup(func() { Init(DefaultConfig()) })

	var buf bytes.Buffer
	Init(Config{Level: "debug", Timestamp: false, Output: &buf})

	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	ctx = ContextWithJobID(ctx, "job-1")

	Ctx(ctx).Info().Msg("processing")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"corr-1"`) {
		t.Errorf("expected correlation_id field, got %q", out)
	}
	if !strings.Contains(out, `"job_id":"job-1"`) {
		t.Errorf("expected job_id field, got %q", out)
	}
}

func TestCtx_EmptyContext(t *testing.T) {
	if got := CorrelationIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty correlation ID, got %q", got)
	}
	if got := JobIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty job ID, got %q", got)
	}
}

func TestGenerateCorrelationID_Unique(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if a == b {
		t.Error("expected unique correlation IDs")
	}
}
