// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"

	"github.com/reelmatch/reelmatch/internal/events"
)

func newTestPubSub() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
}

func TestPublishEventSetsMetadata(t *testing.T) {
	pubsub := newTestPubSub()
	defer pubsub.Close()

	pub := NewPublisherFromWatermill(pubsub, watermill.NopLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := pubsub.Subscribe(ctx, events.TopicJobCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	jobID := uuid.New().String()
	evt := &events.JobCompleted{Envelope: events.NewEnvelope(jobID)}
	if err := pub.PublishEvent(ctx, events.TopicJobCompleted, evt); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.UUID != evt.EventID {
			t.Errorf("message uuid = %q, want event id %q", msg.UUID, evt.EventID)
		}
		if got := msg.Metadata.Get("job_id"); got != jobID {
			t.Errorf("job_id metadata = %q, want %q", got, jobID)
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestPublishEventRejectsInvalid(t *testing.T) {
	pubsub := newTestPubSub()
	defer pubsub.Close()

	pub := NewPublisherFromWatermill(pubsub, watermill.NopLogger{})

	evt := &events.JobCompleted{} // empty envelope
	if err := pub.PublishEvent(context.Background(), events.TopicJobCompleted, evt); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestPublisherClosed(t *testing.T) {
	pubsub := newTestPubSub()
	pub := NewPublisherFromWatermill(pubsub, watermill.NopLogger{})

	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}

	msg := message.NewMessage(uuid.New().String(), []byte("{}"))
	if err := pub.Publish(context.Background(), "t", msg); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("publish after close = %v, want ErrPublisherClosed", err)
	}
}

func TestRouterAcksPermanentErrors(t *testing.T) {
	pubsub := newTestPubSub()
	defer pubsub.Close()

	cfg := DefaultRouterConfig()
	cfg.RetryMaxRetries = 2
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.PoisonQueueTopic = "" // no DLQ in this test

	router, err := NewRouter(&cfg, nil, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	var calls atomic.Int64
	router.AddConsumerHandler("perm", "in.topic", pubsub, func(msg *message.Message) error {
		calls.Add(1)
		return NewPermanentError("bad payload", nil)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("router run: %v", err)
		}
	}()
	<-router.Running()

	msg := message.NewMessage(uuid.New().String(), []byte("{}"))
	if err := pubsub.Publish("in.topic", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never invoked")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A permanent error must not trigger retries.
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("handler calls = %d, want 1 (no retry on permanent error)", got)
	}

	if err := router.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestRouterRetriesTransientErrors(t *testing.T) {
	pubsub := newTestPubSub()
	defer pubsub.Close()

	cfg := DefaultRouterConfig()
	cfg.RetryMaxRetries = 3
	cfg.RetryInitialInterval = time.Millisecond
	cfg.RetryMaxInterval = 5 * time.Millisecond
	cfg.PoisonQueueTopic = ""

	router, err := NewRouter(&cfg, nil, watermill.NopLogger{})
	if err != nil {
		t.Fatalf("create router: %v", err)
	}

	var calls atomic.Int64
	router.AddConsumerHandler("flaky", "in.topic", pubsub, func(msg *message.Message) error {
		if calls.Add(1) < 3 {
			return NewRetryableError("transient", errors.New("connection reset"))
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	msg := message.NewMessage(uuid.New().String(), []byte("{}"))
	if err := pubsub.Publish("in.topic", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("handler calls = %d, want 3", calls.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := router.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}

func TestErrorCategories(t *testing.T) {
	cause := errors.New("boom")

	retryable := NewRetryableError("fetch embeddings", cause)
	if retryable.Category != CategoryTransient {
		t.Errorf("retryable category = %s", retryable.Category)
	}
	if !errors.Is(retryable, cause) {
		t.Error("retryable should unwrap to cause")
	}
	if IsPermanent(retryable) {
		t.Error("retryable reported as permanent")
	}

	perm := NewValidationDrop("missing job_id", nil)
	if perm.Category != CategoryValidation {
		t.Errorf("validation category = %s", perm.Category)
	}
	if !IsPermanent(perm) {
		t.Error("permanent not detected")
	}
	if !IsPermanent(NewRetryableError("outer", perm)) {
		t.Error("wrapped permanent not detected")
	}
}
