// ReelMatch - Product-to-Video Visual Matching Pipeline
// Copyright 2026 ReelMatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order. The
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/reelmatch/config.yaml",
	"/etc/reelmatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment does not pollute
// the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Broker
		"nats_url":         "nats.url",
		"nats_embedded":    "nats.embedded_server",
		"nats_store_dir":   "nats.store_dir",
		"nats_max_memory":  "nats.max_memory",
		"nats_max_store":   "nats.max_store",
		"nats_durable":     "nats.durable_name",
		"nats_queue_group": "nats.queue_group",
		"nats_subscribers": "nats.subscribers_count",

		// Database
		"postgres_host":     "database.host",
		"postgres_port":     "database.port",
		"postgres_user":     "database.user",
		"postgres_password": "database.password",
		"postgres_db":       "database.database",
		"postgres_ssl_mode": "database.ssl_mode",
		"embedding_dim":     "database.embedding_dim",

		// Matching thresholds
		"retrieval_topk": "matching.retrieval_topk",
		"sim_deep_min":   "matching.sim_deep_min",
		"inliers_min":    "matching.inliers_min",
		"match_best_min": "matching.match_best_min",
		"match_cons_min": "matching.match_cons_min",
		"match_accept":   "matching.match_accept",

		// Orchestration
		"watermark_ttl_secs":    "pipeline.watermark_ttl_secs",
		"handler_deadline_secs": "pipeline.handler_deadline_secs",
		"prefetch":              "pipeline.prefetch",
		"dlq_max_retries":       "pipeline.dlq_max_retries",

		// HTTP listener
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
