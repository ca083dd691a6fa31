// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package events

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/models"
)

func TestEnvelopeValidate(t *testing.T) {
	valid := NewEnvelope(uuid.New().String())
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	tests := []struct {
		name  string
		env   Envelope
		field string
	}{
		{"missing event_id", Envelope{JobID: uuid.New().String()}, "event_id"},
		{"malformed event_id", Envelope{EventID: "not-a-uuid", JobID: uuid.New().String()}, "event_id"},
		{"missing job_id", Envelope{EventID: uuid.New().String()}, "job_id"},
		{"malformed job_id", Envelope{EventID: uuid.New().String(), JobID: "42"}, "job_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	evt := &ProductImageReady{
		Envelope:  Envelope{EventID: uuid.New().String()},
		ProductID: "p1",
		ImageID:   "i1",
	}
	if _, err := Marshal(evt); err == nil {
		t.Fatal("expected error for envelope without job_id")
	}
}

func TestRoundTrip(t *testing.T) {
	jobID := uuid.New().String()
	evt := &VideoKeyframesReady{
		Envelope: NewEnvelope(jobID),
		VideoID:  "v1",
		Frames: []FrameRef{
			{FrameID: "f1", TS: 1.5, LocalPath: "/data/f1.jpg"},
			{FrameID: "f2", TS: 3.0, LocalPath: "/data/f2.jpg"},
		},
	}

	data, err := Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.JobID != jobID {
		t.Errorf("envelope job_id = %q, want %q", env.JobID, jobID)
	}
	if env.EventID != evt.EventID {
		t.Errorf("envelope event_id = %q, want %q", env.EventID, evt.EventID)
	}

	var decoded VideoKeyframesReady
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.VideoID != "v1" || len(decoded.Frames) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Frames[1].TS != 3.0 {
		t.Errorf("frame ts = %v, want 3.0", decoded.Frames[1].TS)
	}
}

func TestDispatchTable(t *testing.T) {
	t.Run("asset progress targets", func(t *testing.T) {
		tests := []struct {
			topic string
			want  models.AssetType
		}{
			{TopicProductImageReady, models.AssetImageCollection},
			{TopicVideoKeyframesReady, models.AssetVideoCollection},
			{TopicImageEmbeddingReady, models.AssetImageEmbeddings},
			{TopicImageKeypointReady, models.AssetImageKeypoints},
			{TopicVideoEmbeddingReady, models.AssetVideoEmbeddings},
			{TopicVideoKeypointReady, models.AssetVideoKeypoints},
		}
		for _, tt := range tests {
			r, ok := RouteFor(tt.topic)
			if !ok {
				t.Fatalf("no route for %s", tt.topic)
			}
			if r.Kind != KindAssetProgress {
				t.Errorf("%s kind = %s, want asset_progress", tt.topic, r.Kind)
			}
			if len(r.AssetTypes) != 1 || r.AssetTypes[0] != tt.want {
				t.Errorf("%s targets = %v, want [%s]", tt.topic, r.AssetTypes, tt.want)
			}
		}
	})

	t.Run("batch announcements seed feature counters", func(t *testing.T) {
		r, ok := RouteFor(TopicProductImagesReadyBatch)
		if !ok || r.Kind != KindBatchAnnouncement {
			t.Fatalf("route = %+v, ok = %v", r, ok)
		}
		if len(r.AssetTypes) != 3 {
			t.Errorf("image batch seeds %d counters, want 3", len(r.AssetTypes))
		}
	})

	t.Run("unknown topic", func(t *testing.T) {
		if _, ok := RouteFor("no.such.topic"); ok {
			t.Error("expected no route for unknown topic")
		}
	})

	t.Run("completion topics cover emitting counters", func(t *testing.T) {
		for _, at := range []models.AssetType{
			models.AssetImageEmbeddings,
			models.AssetImageKeypoints,
			models.AssetVideoEmbeddings,
			models.AssetVideoKeypoints,
		} {
			topic := CompletionTopic(at)
			if topic == "" {
				t.Fatalf("no completion topic for %s", at)
			}
			r, ok := RouteFor(topic)
			if !ok || r.Kind != KindPhaseCompletion {
				t.Errorf("completion topic %s not routed as phase completion", topic)
			}
		}
		if CompletionTopic(models.AssetImageCollection) != "" {
			t.Error("observational counter must not map to a completion topic")
		}
	})

	t.Run("subscription list is stable and complete", func(t *testing.T) {
		topics := OrchestratorTopics()
		if len(topics) != len(routes) {
			t.Fatalf("got %d topics, want %d", len(topics), len(routes))
		}
		for i := 1; i < len(topics); i++ {
			if topics[i-1] >= topics[i] {
				t.Fatalf("topics not sorted at %d: %q >= %q", i, topics[i-1], topics[i])
			}
		}
	})
}
