// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package matching

import (
	"context"
	"errors"
	"time"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/eventbus"
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Reader is the feature store surface the engine consumes.
type Reader interface {
	ListProducts(ctx context.Context, jobID string) ([]models.Product, error)
	ListVideos(ctx context.Context, jobID string) ([]models.Video, error)
	ListProductImages(ctx context.Context, jobID string) ([]models.ProductImage, error)
	ListVideoFrames(ctx context.Context, videoID string) ([]models.VideoFrame, error)
	RetrieveTopFrames(ctx context.Context, videoID string, embedding []float32, topK int) ([]string, error)
	GetKeypointBlob(ctx context.Context, path string) ([]byte, error)
}

// MatchWriter persists accepted matches.
type MatchWriter interface {
	ExistingPairs(ctx context.Context, jobID string) (map[string]bool, error)
	Upsert(ctx context.Context, m *models.Match) error
}

// Publisher publishes typed events.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event events.Event) error
}

// Ledger deduplicates match requests by event ID.
type Ledger interface {
	Record(ctx context.Context, eventID, jobID, eventName string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Engine processes match.request events for whole jobs.
type Engine struct {
	cfg       Config
	reader    Reader
	writer    MatchWriter
	publisher Publisher
	ledger    Ledger
}

// NewEngine creates a matching engine.
func NewEngine(cfg Config, reader Reader, writer MatchWriter, publisher Publisher, ledger Ledger) *Engine {
	return &Engine{
		cfg:       cfg,
		reader:    reader,
		writer:    writer,
		publisher: publisher,
		ledger:    ledger,
	}
}

// HandleMatchRequest is the match.request consumer. It scores every
// not-yet-matched (product, video) pair of the job, persists accepted
// matches, emits one match.result per accept, and always finishes with
// exactly one matchings.process.completed.
func (e *Engine) HandleMatchRequest(ctx context.Context, payload []byte) error {
	var req events.MatchRequest
	if err := events.Unmarshal(payload, &req); err != nil {
		metrics.RecordValidationDrop()
		return eventbus.NewValidationDrop("invalid match request", err)
	}

	first, err := e.ledger.Record(ctx, req.EventID, req.JobID, events.TopicMatchRequest)
	if err != nil {
		return eventbus.NewRetryableError("record match request", err)
	}
	if !first {
		logging.Ctx(ctx).Debug().Str("event_id", req.EventID).Msg("duplicate match request ignored")
		return nil
	}

	topK := e.cfg.RetrievalTopK
	if req.TopK != nil && *req.TopK > 0 {
		topK = *req.TopK
	}

	start := time.Now()
	err = e.processJob(ctx, req.JobID, topK)
	metrics.RecordMatchRequest(time.Since(start))

	if err == nil {
		done := &events.MatchingsProcessCompleted{Envelope: events.NewEnvelope(req.JobID)}
		if pubErr := e.publisher.PublishEvent(ctx, events.TopicMatchingsProcessCompleted, done); pubErr != nil {
			err = eventbus.NewRetryableError("publish matchings.process.completed", pubErr)
		}
	}
	if err != nil {
		// Withdraw the claim before handing the event back to the broker, so
		// the redelivery is processed instead of dedupped.
		if !eventbus.IsPermanent(err) {
			if relErr := e.ledger.Release(ctx, req.EventID); relErr != nil {
				logging.CtxErr(ctx, relErr).Str("event_id", req.EventID).Msg("releasing ledger claim")
			}
		}
		return err
	}
	return nil
}

func (e *Engine) processJob(ctx context.Context, jobID string, topK int) error {
	products, err := e.reader.ListProducts(ctx, jobID)
	if err != nil {
		return eventbus.NewRetryableError("list products", err)
	}
	videos, err := e.reader.ListVideos(ctx, jobID)
	if err != nil {
		return eventbus.NewRetryableError("list videos", err)
	}
	if len(products) == 0 || len(videos) == 0 {
		logging.Ctx(ctx).Info().
			Int("products", len(products)).
			Int("videos", len(videos)).
			Msg("nothing to match")
		return nil
	}

	images, err := e.reader.ListProductImages(ctx, jobID)
	if err != nil {
		return eventbus.NewRetryableError("list product images", err)
	}
	imagesByProduct := make(map[string][]models.ProductImage)
	for _, img := range images {
		Normalize(img.EmbRGB)
		Normalize(img.EmbGray)
		imagesByProduct[img.ProductID] = append(imagesByProduct[img.ProductID], img)
	}

	existing, err := e.writer.ExistingPairs(ctx, jobID)
	if err != nil {
		return eventbus.NewRetryableError("list existing matches", err)
	}

	for _, video := range videos {
		frames, err := e.reader.ListVideoFrames(ctx, video.VideoID)
		if err != nil {
			return eventbus.NewRetryableError("list video frames", err)
		}
		for i := range frames {
			Normalize(frames[i].EmbRGB)
			Normalize(frames[i].EmbGray)
		}

		for _, product := range products {
			if existing[PairKey(product.ProductID, video.VideoID)] {
				continue
			}
			imgs := imagesByProduct[product.ProductID]
			if len(imgs) == 0 || len(frames) == 0 {
				continue
			}

			if err := e.scorePair(ctx, jobID, product, video.VideoID, imgs, frames, topK); err != nil {
				return err
			}
		}
	}
	return nil
}

// scorePair scores one (product, video) pair end to end. Data-level
// problems skip the unit; database errors retry with backoff and are
// counted as engine errors on final failure so one bad pair cannot stall
// the whole job.
func (e *Engine) scorePair(ctx context.Context, jobID string, product models.Product, videoID string, imgs []models.ProductImage, frames []models.VideoFrame, topK int) error {
	pairs, err := e.collectPairs(ctx, videoID, imgs, frames, topK)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	agg := AggregatePairs(pairs)
	score, accepted := agg.Accept(e.cfg)
	if !accepted {
		return nil
	}

	match := &models.Match{
		JobID:       jobID,
		ProductID:   product.ProductID,
		VideoID:     videoID,
		BestImageID: agg.Best.ImageID,
		BestFrameID: agg.Best.FrameID,
		TS:          agg.Best.TS,
		Score:       score,
		Status:      models.MatchStatusAccepted,
	}

	if err := e.upsertWithRetry(ctx, match); err != nil {
		metrics.RecordPairError("database")
		logging.CtxErr(ctx, err).
			Str("product_id", product.ProductID).
			Str("video_id", videoID).
			Msg("persisting match failed after retries")
		return nil
	}
	metrics.RecordMatchAccepted()

	result := &events.MatchResult{
		Envelope:  events.NewEnvelope(jobID),
		ProductID: product.ProductID,
		VideoID:   videoID,
		BestPair: events.BestPair{
			ImgID:     agg.Best.ImageID,
			FrameID:   agg.Best.FrameID,
			ScorePair: agg.BestScore,
			TS:        agg.Best.TS,
		},
		Score: score,
	}
	if err := e.publisher.PublishEvent(ctx, events.TopicMatchResult, result); err != nil {
		return eventbus.NewRetryableError("publish match.result", err)
	}

	logging.Ctx(ctx).Info().
		Str("product_id", product.ProductID).
		Str("video_id", videoID).
		Float64("score", score).
		Msg("match accepted")
	return nil
}

// collectPairs retrieves top-K candidate frames per image via the ANN
// index, scores each surviving (image, frame) combination, and applies the
// similarity filters.
func (e *Engine) collectPairs(ctx context.Context, videoID string, imgs []models.ProductImage, frames []models.VideoFrame, topK int) ([]PairScore, error) {
	frameByID := make(map[string]*models.VideoFrame, len(frames))
	for i := range frames {
		frameByID[frames[i].FrameID] = &frames[i]
	}

	var pairs []PairScore
	for i := range imgs {
		img := &imgs[i]
		if len(img.EmbRGB) == 0 {
			metrics.RecordPairError("missing_embedding")
			continue
		}

		frameIDs, err := e.reader.RetrieveTopFrames(ctx, videoID, img.EmbRGB, topK)
		if err != nil {
			return nil, eventbus.NewRetryableError("retrieve candidate frames", err)
		}

		for _, frameID := range frameIDs {
			frame, ok := frameByID[frameID]
			if !ok || len(frame.EmbRGB) == 0 {
				metrics.RecordPairError("missing_embedding")
				continue
			}

			pair, ok := e.scoreImageFrame(ctx, img, frame)
			if !ok {
				continue
			}
			metrics.RecordPairScored()
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

// scoreImageFrame computes the three similarity signals for one pair and
// applies the per-pair filters. The second return is false when the pair
// is filtered out.
func (e *Engine) scoreImageFrame(ctx context.Context, img *models.ProductImage, frame *models.VideoFrame) (PairScore, bool) {
	pair := PairScore{
		ImageID: img.ImageID,
		FrameID: frame.FrameID,
		TS:      frame.TS,
		SimDeep: Cosine(img.EmbRGB, frame.EmbRGB),
		SimEdge: Cosine(img.EmbGray, frame.EmbGray),
	}

	if pair.SimDeep < e.cfg.SimDeepMin {
		return PairScore{}, false
	}

	simKP, fallback := e.keypointSimilarity(ctx, img, frame)
	pair.SimKP, pair.Fallback = simKP, fallback
	if fallback {
		pair.SimKP = pair.SimDeep
		metrics.RecordKeypointFallback()
	} else if pair.SimKP < e.cfg.InliersMin {
		return PairScore{}, false
	}

	return pair, true
}

// keypointSimilarity loads both keypoint blobs and runs descriptor
// matching plus RANSAC. Any missing or unreadable blob triggers the
// deep-similarity fallback rather than failing the pair.
func (e *Engine) keypointSimilarity(ctx context.Context, img *models.ProductImage, frame *models.VideoFrame) (float64, bool) {
	if img.KeypointBlobPath == "" || frame.KeypointBlobPath == "" {
		return 0, true
	}

	imgBlob, err := e.reader.GetKeypointBlob(ctx, img.KeypointBlobPath)
	if err != nil {
		e.blobError(ctx, img.KeypointBlobPath, err)
		return 0, true
	}
	frameBlob, err := e.reader.GetKeypointBlob(ctx, frame.KeypointBlobPath)
	if err != nil {
		e.blobError(ctx, frame.KeypointBlobPath, err)
		return 0, true
	}

	imgKP, err := ParseKeypointBlob(imgBlob)
	if err != nil {
		e.blobError(ctx, img.KeypointBlobPath, err)
		return 0, true
	}
	frameKP, err := ParseKeypointBlob(frameBlob)
	if err != nil {
		e.blobError(ctx, frame.KeypointBlobPath, err)
		return 0, true
	}

	matches := MatchDescriptors(imgKP, frameKP)
	return InlierRatio(imgKP, frameKP, matches), false
}

func (e *Engine) blobError(ctx context.Context, path string, err error) {
	if !errors.Is(err, database.ErrNotFound) {
		metrics.RecordPairError("blob_read")
	}
	logging.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("keypoint blob unavailable, falling back")
}

// upsertWithRetry retries transient database errors with exponential
// backoff before giving up on the single pair.
func (e *Engine) upsertWithRetry(ctx context.Context, match *models.Match) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = e.writer.Upsert(ctx, match); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
