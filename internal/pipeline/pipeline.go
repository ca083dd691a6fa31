// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package pipeline assembles the running service: broker connectivity,
// stream provisioning, stores, the orchestrator, the matching engine, and
// the supervision tree that keeps them alive.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/eventbus"
	"github.com/reelmatch/reelmatch/internal/events"
	"github.com/reelmatch/reelmatch/internal/featurestore"
	"github.com/reelmatch/reelmatch/internal/jobstore"
	"github.com/reelmatch/reelmatch/internal/ledger"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/matching"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/orchestrator"
	"github.com/reelmatch/reelmatch/internal/progress"
	"github.com/reelmatch/reelmatch/internal/supervisor"
)

// Pipeline owns every component of a running instance.
type Pipeline struct {
	cfg *config.Config

	embedded   *eventbus.EmbeddedServer
	natsConn   *nats.Conn
	publisher  *eventbus.Publisher
	subscriber *eventbus.Subscriber
	router     *eventbus.Router

	db           *database.Store
	orchestrator *orchestrator.Orchestrator
	engine       *matching.Engine
	watcher      *progress.Watcher
}

// New builds the pipeline: it starts the embedded broker if configured,
// provisions the stream, connects the database, and wires every handler
// onto the router. Serve must be called to start processing.
func New(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}

	url := cfg.NATS.URL
	if cfg.NATS.EmbeddedServer {
		serverCfg := eventbus.DefaultServerConfig()
		serverCfg.StoreDir = cfg.NATS.StoreDir
		serverCfg.JetStreamMaxMem = cfg.NATS.MaxMemory
		serverCfg.JetStreamMaxStore = cfg.NATS.MaxStore

		embedded, err := eventbus.NewEmbeddedServer(&serverCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded broker: %w", err)
		}
		p.embedded = embedded
		url = embedded.ClientURL()
	}

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.Name("reelmatch-stream-manager"),
	)
	if err != nil {
		p.closePartial()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	p.natsConn = nc

	streamCfg := eventbus.DefaultStreamConfig()
	streams, err := eventbus.NewStreamManager(nc, &streamCfg)
	if err != nil {
		p.closePartial()
		return nil, err
	}
	if _, err := streams.EnsureStream(ctx); err != nil {
		p.closePartial()
		return nil, fmt.Errorf("provision stream: %w", err)
	}

	wmLogger := logging.NewWatermillAdapter()

	publisher, err := eventbus.NewPublisher(eventbus.DefaultPublisherConfig(url), wmLogger)
	if err != nil {
		p.closePartial()
		return nil, err
	}
	publisher.SetCircuitBreaker(eventbus.NewPublishBreaker(wmLogger))
	p.publisher = publisher

	subCfg := eventbus.DefaultSubscriberConfig(url)
	subCfg.DurableName = cfg.NATS.DurableName
	subCfg.QueueGroup = cfg.NATS.QueueGroup
	subCfg.SubscribersCount = cfg.NATS.SubscribersCount
	subCfg.MaxAckPending = cfg.Pipeline.Prefetch
	subCfg.MaxDeliver = cfg.Pipeline.DLQMaxRetries + 1
	subCfg.AckWaitTimeout = cfg.AckWait()

	subscriber, err := eventbus.NewSubscriber(&subCfg, wmLogger)
	if err != nil {
		p.closePartial()
		return nil, err
	}
	p.subscriber = subscriber

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		p.closePartial()
		return nil, err
	}
	p.db = db

	ledgerStore := ledger.New(db)
	jobs := jobstore.New(db)
	progressStore := progress.New(db)
	features := featurestore.New(db)
	matches := matching.NewStore(db)

	// The watcher fires into the orchestrator; break the construction cycle
	// with a late-bound reference.
	var orch *orchestrator.Orchestrator
	p.watcher = progress.NewWatcher(progressStore, func(ctx context.Context, jobID string, assetType models.AssetType) {
		orch.OnWatermarkFired(ctx, jobID, assetType)
	})

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.WatermarkTTL = cfg.Pipeline.WatermarkTTL()
	orch = orchestrator.New(orchCfg, ledgerStore, jobs, progressStore, publisher, p.watcher)
	p.orchestrator = orch

	p.engine = matching.NewEngine(cfg.Matching, features, matches, publisher, ledgerStore)

	routerCfg := eventbus.DefaultRouterConfig()
	routerCfg.HandlerDeadline = cfg.Pipeline.HandlerDeadline()
	routerCfg.RetryMaxRetries = cfg.Pipeline.DLQMaxRetries
	routerCfg.PoisonQueueTopic = events.TopicDLQ

	router, err := eventbus.NewRouter(&routerCfg, publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		p.closePartial()
		return nil, err
	}
	p.router = router

	p.registerHandlers()
	return p, nil
}

// registerHandlers binds every consumed topic to its handler. Each topic
// gets its own named handler so Watermill tracks them independently.
func (p *Pipeline) registerHandlers() {
	sub := p.subscriber.WatermillSubscriber()

	for _, topic := range events.OrchestratorTopics() {
		topic := topic
		p.router.AddConsumerHandler(
			"orchestrator:"+topic,
			topic,
			sub,
			func(msg *message.Message) error {
				return p.orchestrator.Handle(msg.Context(), topic, msg.Payload)
			},
		)
	}

	p.router.AddConsumerHandler(
		"matching:"+events.TopicMatchRequest,
		events.TopicMatchRequest,
		sub,
		func(msg *message.Message) error {
			return p.engine.HandleMatchRequest(msg.Context(), msg.Payload)
		},
	)
}

// Tree builds the supervision hierarchy for this pipeline. The caller runs
// it with Serve.
func (p *Pipeline) Tree(logger *slog.Logger, healthAddr string) *supervisor.Tree {
	tree := supervisor.NewTree(logger, supervisor.DefaultTreeConfig())

	if p.embedded != nil {
		tree.AddBrokerService(supervisor.ServiceFunc{
			Name: "embedded-nats",
			Run: func(ctx context.Context) error {
				<-ctx.Done()
				return p.embedded.Shutdown(context.Background())
			},
		})
	}

	tree.AddPipelineService(supervisor.ServiceFunc{
		Name: "event-router",
		Run:  p.router.Run,
	})
	tree.AddPipelineService(supervisor.ServiceFunc{
		Name: "watermark-watcher",
		Run:  p.watcher.Serve,
	})

	tree.AddHTTPService(supervisor.ServiceFunc{
		Name: "health-listener",
		Run: func(ctx context.Context) error {
			return serveHealth(ctx, healthAddr, p.cfg.Server.Timeout, p.db)
		},
	})

	return tree
}

// Close releases every resource in reverse construction order.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.router != nil {
		if err := p.router.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.subscriber != nil {
		if err := p.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if p.db != nil {
		p.db.Close()
	}
	if p.natsConn != nil {
		p.natsConn.Close()
	}
	if p.embedded != nil {
		if err := p.embedded.Shutdown(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pipeline) closePartial() {
	_ = p.Close()
}
