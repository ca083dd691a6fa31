// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/eventbus"
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/models"
)

type fakeReader struct {
	products []models.Product
	videos   []models.Video
	images   []models.ProductImage
	frames   map[string][]models.VideoFrame
	blobs    map[string][]byte

	listErr  error
	topKSeen int
}

func (r *fakeReader) ListProducts(_ context.Context, _ string) ([]models.Product, error) {
	return r.products, r.listErr
}

func (r *fakeReader) ListVideos(_ context.Context, _ string) ([]models.Video, error) {
	return r.videos, nil
}

func (r *fakeReader) ListProductImages(_ context.Context, _ string) ([]models.ProductImage, error) {
	return r.images, nil
}

func (r *fakeReader) ListVideoFrames(_ context.Context, videoID string) ([]models.VideoFrame, error) {
	return r.frames[videoID], nil
}

func (r *fakeReader) RetrieveTopFrames(_ context.Context, videoID string, embedding []float32, topK int) ([]string, error) {
	r.topKSeen = topK
	frames := r.frames[videoID]
	type ranked struct {
		id  string
		sim float64
	}
	order := make([]ranked, 0, len(frames))
	for _, f := range frames {
		order = append(order, ranked{id: f.FrameID, sim: Cosine(embedding, f.EmbRGB)})
	}
	sort.Slice(order, func(a, b int) bool { return order[a].sim > order[b].sim })
	if topK > len(order) {
		topK = len(order)
	}
	ids := make([]string, topK)
	for i := 0; i < topK; i++ {
		ids[i] = order[i].id
	}
	return ids, nil
}

func (r *fakeReader) GetKeypointBlob(_ context.Context, path string) ([]byte, error) {
	blob, ok := r.blobs[path]
	if !ok {
		return nil, database.ErrNotFound
	}
	return blob, nil
}

type fakeMatchWriter struct {
	existing   map[string]bool
	upserts    []models.Match
	failAlways bool
}

func (w *fakeMatchWriter) ExistingPairs(_ context.Context, _ string) (map[string]bool, error) {
	if w.existing == nil {
		return map[string]bool{}, nil
	}
	return w.existing, nil
}

func (w *fakeMatchWriter) Upsert(_ context.Context, m *models.Match) error {
	if w.failAlways {
		return errors.New("connection reset")
	}
	w.upserts = append(w.upserts, *m)
	return nil
}

type fakeEnginePublisher struct {
	byTopic map[string][]events.Event
}

func (p *fakeEnginePublisher) PublishEvent(_ context.Context, topic string, event events.Event) error {
	if p.byTopic == nil {
		p.byTopic = make(map[string][]events.Event)
	}
	p.byTopic[topic] = append(p.byTopic[topic], event)
	return nil
}

type fakeEngineLedger struct {
	seen map[string]bool
}

func (l *fakeEngineLedger) Record(_ context.Context, eventID, _, _ string) (bool, error) {
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[eventID] {
		return false, nil
	}
	l.seen[eventID] = true
	return true, nil
}

func (l *fakeEngineLedger) Release(_ context.Context, eventID string) error {
	delete(l.seen, eventID)
	return nil
}

// unitVec returns an L2-normalised 3-dim embedding.
func unitVec(x, y, z float32) []float32 {
	v := []float32{x, y, z}
	Normalize(v)
	return v
}

func matchRequest(jobID string) []byte {
	req := &events.MatchRequest{Envelope: events.NewEnvelope(jobID)}
	data, err := events.Marshal(req)
	if err != nil {
		panic(err)
	}
	return data
}

func TestHandleMatchRequest(t *testing.T) {
	jobID := uuid.New().String()

	// One product with one image, one video with two frames. frame_2 shares
	// the image's embedding; frame_1 is dissimilar enough to be filtered.
	newFixture := func() (*fakeReader, *fakeMatchWriter, *fakeEnginePublisher, *Engine) {
		reader := &fakeReader{
			products: []models.Product{{ProductID: "prod_1", JobID: jobID}},
			videos:   []models.Video{{VideoID: "vid_1", JobID: jobID}},
			images: []models.ProductImage{{
				ImageID:   "img_1",
				ProductID: "prod_1",
				EmbRGB:    unitVec(1, 0, 0),
				EmbGray:   unitVec(1, 0, 0),
			}},
			frames: map[string][]models.VideoFrame{
				"vid_1": {
					{FrameID: "frame_1", VideoID: "vid_1", TS: 1.0, EmbRGB: unitVec(0, 1, 0), EmbGray: unitVec(0, 1, 0)},
					{FrameID: "frame_2", VideoID: "vid_1", TS: 4.5, EmbRGB: unitVec(1, 0, 0), EmbGray: unitVec(1, 0, 0)},
				},
			},
		}
		writer := &fakeMatchWriter{}
		publisher := &fakeEnginePublisher{}
		engine := NewEngine(DefaultConfig(), reader, writer, publisher, &fakeEngineLedger{})
		return reader, writer, publisher, engine
	}

	t.Run("accepted match produces result and row", func(t *testing.T) {
		_, writer, publisher, engine := newFixture()

		if err := engine.HandleMatchRequest(context.Background(), matchRequest(jobID)); err != nil {
			t.Fatalf("HandleMatchRequest() error = %v", err)
		}

		results := publisher.byTopic[events.TopicMatchResult]
		if len(results) != 1 {
			t.Fatalf("match.result events = %d, want 1", len(results))
		}
		result := results[0].(*events.MatchResult)
		if result.BestPair.FrameID != "frame_2" {
			t.Errorf("best frame = %s, want frame_2", result.BestPair.FrameID)
		}
		if result.Score < 0.9 {
			t.Errorf("score = %v, want >= 0.9", result.Score)
		}

		if len(writer.upserts) != 1 {
			t.Fatalf("persisted matches = %d, want 1", len(writer.upserts))
		}
		m := writer.upserts[0]
		if m.ProductID != "prod_1" || m.VideoID != "vid_1" || m.BestFrameID != "frame_2" {
			t.Errorf("persisted match = %+v", m)
		}
		if m.Status != models.MatchStatusAccepted {
			t.Errorf("status = %s, want accepted", m.Status)
		}

		if n := len(publisher.byTopic[events.TopicMatchingsProcessCompleted]); n != 1 {
			t.Errorf("matchings.process.completed events = %d, want 1", n)
		}
	})

	t.Run("no similar frames completes with zero matches", func(t *testing.T) {
		reader, writer, publisher, engine := newFixture()
		reader.images[0].EmbRGB = unitVec(0, 0, 1)
		reader.images[0].EmbGray = unitVec(0, 0, 1)

		if err := engine.HandleMatchRequest(context.Background(), matchRequest(jobID)); err != nil {
			t.Fatalf("HandleMatchRequest() error = %v", err)
		}

		if n := len(publisher.byTopic[events.TopicMatchResult]); n != 0 {
			t.Errorf("match.result events = %d, want 0", n)
		}
		if len(writer.upserts) != 0 {
			t.Errorf("persisted matches = %d, want 0", len(writer.upserts))
		}
		if n := len(publisher.byTopic[events.TopicMatchingsProcessCompleted]); n != 1 {
			t.Errorf("matchings.process.completed events = %d, want 1", n)
		}
	})

	t.Run("already matched pair skipped", func(t *testing.T) {
		_, writer, publisher, engine := newFixture()
		writer.existing = map[string]bool{PairKey("prod_1", "vid_1"): true}

		if err := engine.HandleMatchRequest(context.Background(), matchRequest(jobID)); err != nil {
			t.Fatalf("HandleMatchRequest() error = %v", err)
		}
		if len(writer.upserts) != 0 {
			t.Errorf("persisted matches = %d, want 0", len(writer.upserts))
		}
		if n := len(publisher.byTopic[events.TopicMatchingsProcessCompleted]); n != 1 {
			t.Errorf("matchings.process.completed events = %d, want 1", n)
		}
	})

	t.Run("duplicate request ignored", func(t *testing.T) {
		_, _, publisher, engine := newFixture()

		payload := matchRequest(jobID)
		if err := engine.HandleMatchRequest(context.Background(), payload); err != nil {
			t.Fatalf("first delivery error = %v", err)
		}
		if err := engine.HandleMatchRequest(context.Background(), payload); err != nil {
			t.Fatalf("second delivery error = %v", err)
		}
		if n := len(publisher.byTopic[events.TopicMatchingsProcessCompleted]); n != 1 {
			t.Errorf("matchings.process.completed events = %d, want 1", n)
		}
	})

	t.Run("malformed payload dropped without retry", func(t *testing.T) {
		_, _, _, engine := newFixture()
		err := engine.HandleMatchRequest(context.Background(), []byte(`{"job_id":`))
		if !eventbus.IsPermanent(err) {
			t.Errorf("error = %v, want permanent", err)
		}
	})

	t.Run("store outage retried", func(t *testing.T) {
		reader, _, _, _ := newFixture()
		reader.listErr = errors.New("connection refused")
		engine := NewEngine(DefaultConfig(), reader, &fakeMatchWriter{}, &fakeEnginePublisher{}, &fakeEngineLedger{})

		err := engine.HandleMatchRequest(context.Background(), matchRequest(jobID))
		if err == nil || eventbus.IsPermanent(err) {
			t.Errorf("error = %v, want retryable", err)
		}
	})

	t.Run("transient outage does not poison the redelivery", func(t *testing.T) {
		reader, _, _, _ := newFixture()
		reader.listErr = errors.New("connection refused")
		publisher := &fakeEnginePublisher{}
		engine := NewEngine(DefaultConfig(), reader, &fakeMatchWriter{}, publisher, &fakeEngineLedger{})
		payload := matchRequest(jobID)

		if err := engine.HandleMatchRequest(context.Background(), payload); err == nil {
			t.Fatal("first delivery succeeded, want transient failure")
		}

		// The claim was withdrawn with the failure, so the broker's
		// redelivery of the same event_id must do the work.
		reader.listErr = nil
		if err := engine.HandleMatchRequest(context.Background(), payload); err != nil {
			t.Fatalf("redelivery error = %v", err)
		}
		if n := len(publisher.byTopic[events.TopicMatchingsProcessCompleted]); n != 1 {
			t.Errorf("matchings.process.completed events = %d, want 1", n)
		}
	})

	t.Run("top_k override forwarded to retrieval", func(t *testing.T) {
		reader, _, _, engine := newFixture()
		topK := 3
		req := &events.MatchRequest{Envelope: events.NewEnvelope(jobID), TopK: &topK}
		data, err := events.Marshal(req)
		if err != nil {
			t.Fatal(err)
		}
		if err := engine.HandleMatchRequest(context.Background(), data); err != nil {
			t.Fatalf("HandleMatchRequest() error = %v", err)
		}
		if reader.topKSeen != 3 {
			t.Errorf("topK = %d, want 3", reader.topKSeen)
		}
	})

	t.Run("keypoint verification lifts pair score", func(t *testing.T) {
		reader, _, publisher, engine := newFixture()

		kps := []Keypoint{
			{X: 0, Y: 0, Binary: akazeDesc(0x01)},
			{X: 40, Y: 0, Binary: akazeDesc(0x02)},
			{X: 0, Y: 40, Binary: akazeDesc(0x04)},
			{X: 40, Y: 40, Binary: akazeDesc(0x08)},
		}
		blob := makeAKAZEBlob(t, kps)
		reader.blobs = map[string][]byte{"blob/a": blob, "blob/b": blob}
		reader.images[0].KeypointBlobPath = "blob/a"
		frames := reader.frames["vid_1"]
		frames[1].KeypointBlobPath = "blob/b"

		if err := engine.HandleMatchRequest(context.Background(), matchRequest(jobID)); err != nil {
			t.Fatalf("HandleMatchRequest() error = %v", err)
		}

		results := publisher.byTopic[events.TopicMatchResult]
		if len(results) != 1 {
			t.Fatalf("match.result events = %d, want 1", len(results))
		}
		// Identical blobs verify perfectly, so the pair scores 1.0.
		if got := results[0].(*events.MatchResult).BestPair.ScorePair; got != 1 {
			t.Errorf("score_pair = %v, want 1", got)
		}
	})
}
