// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package pipeline

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reelmatch/reelmatch/internal/events"
)

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(newHealthMux(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newHealthMux(nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestConsumedTopicsAreRouted(t *testing.T) {
	// Every topic the services subscribe to must have a dispatch route or be
	// the matching engine's own topic.
	topics := events.OrchestratorTopics()
	for _, topic := range topics {
		if _, ok := events.RouteFor(topic); !ok {
			t.Errorf("topic %s has no route", topic)
		}
		if topic == events.TopicMatchRequest {
			t.Errorf("orchestrator must not consume %s", topic)
		}
	}

	for _, topic := range topics {
		if strings.TrimSpace(topic) == "" {
			t.Error("empty topic in subscription list")
		}
	}
}
