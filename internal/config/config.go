// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package config loads and validates the pipeline configuration from
// defaults, an optional YAML file, and environment variables, in that
// order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reelmatch/reelmatch/internal/database"
	"github.com/reelmatch/reelmatch/internal/matching"
)

// Config is the root configuration for the pipeline services.
type Config struct {
	NATS     NATSConfig      `koanf:"nats"`
	Database database.Config `koanf:"database"`
	Matching matching.Config `koanf:"matching"`
	Pipeline PipelineConfig  `koanf:"pipeline"`
	Server   ServerConfig    `koanf:"server"`
	Logging  LoggingConfig   `koanf:"logging"`
}

// NATSConfig holds broker connection and consumer settings.
type NATSConfig struct {
	URL            string `koanf:"url" validate:"required"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`

	DurableName      string `koanf:"durable_name" validate:"required"`
	QueueGroup       string `koanf:"queue_group" validate:"required"`
	SubscribersCount int    `koanf:"subscribers_count" validate:"min=1"`
}

// PipelineConfig holds orchestration timing and delivery settings. The
// second-granularity fields mirror their environment variable names.
type PipelineConfig struct {
	// WatermarkTTLSecs is the deadline armed on each progress counter.
	WatermarkTTLSecs int `koanf:"watermark_ttl_secs" validate:"min=1"`

	// HandlerDeadlineSecs bounds one handler invocation.
	HandlerDeadlineSecs int `koanf:"handler_deadline_secs" validate:"min=1"`

	// Prefetch bounds unacknowledged in-flight deliveries per consumer.
	Prefetch int `koanf:"prefetch" validate:"min=1"`

	// DLQMaxRetries is the redelivery budget before a message is parked on
	// the poison topic.
	DLQMaxRetries int `koanf:"dlq_max_retries" validate:"min=0"`
}

// WatermarkTTL returns the watermark deadline as a duration.
func (p PipelineConfig) WatermarkTTL() time.Duration {
	return time.Duration(p.WatermarkTTLSecs) * time.Second
}

// HandlerDeadline returns the handler deadline as a duration.
func (p PipelineConfig) HandlerDeadline() time.Duration {
	return time.Duration(p.HandlerDeadlineSecs) * time.Second
}

// ServerConfig holds the HTTP listener for metrics and health endpoints.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with production defaults. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        1 << 30,
			MaxStore:         10 << 30,
			DurableName:      "reelmatch-orchestrator",
			QueueGroup:       "orchestrators",
			SubscribersCount: 4,
		},
		Database: database.DefaultConfig(),
		Matching: matching.DefaultConfig(),
		Pipeline: PipelineConfig{
			WatermarkTTLSecs:    300,
			HandlerDeadlineSecs: 120,
			Prefetch:            32,
			DLQMaxRetries:       5,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    9090,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The ack wait must outlive the handler deadline or JetStream redelivers
	// messages that are still being processed.
	if c.Pipeline.HandlerDeadlineSecs >= int(ackWaitMargin(c).Seconds()) {
		return fmt.Errorf("handler deadline %ds leaves no ack margin", c.Pipeline.HandlerDeadlineSecs)
	}
	return nil
}

// AckWait returns the JetStream ack wait derived from the handler deadline.
func (c *Config) AckWait() time.Duration {
	return ackWaitMargin(c)
}

func ackWaitMargin(c *Config) time.Duration {
	return time.Duration(c.Pipeline.HandlerDeadlineSecs)*time.Second + 10*time.Second
}
