// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

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

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/indexsync/config.yaml",
	"/etc/indexsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix marks environment variables that address any config key.
const EnvPrefix = "INDEXSYNC_"

// Load reads the configuration from defaults, the config file and the
// environment, in that order, and validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the file layer.
func LoadFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.derive()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"queue.stream.subjects",
	"api.cors_allowed_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings; the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps short environment variable names to config paths.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"primary_path":      "primary.path",
	"primary_in_memory": "primary.in_memory",

	"index_url":        "index.url",
	"index_name":       "index.name",
	"index_username":   "index.username",
	"index_password":   "index.password",
	"index_rate_limit": "index.rate_limit",

	"metadata_driver": "metadata.driver",
	"metadata_dsn":    "metadata.dsn",

	"queue_mode":     "queue.mode",
	"nats_url":       "queue.url",
	"nats_embedded":  "queue.embedded",
	"nats_store_dir": "queue.server.store_dir",

	"retry_max_retries": "retry.max_retries",
	"retry_max_backoff": "retry.max_backoff",
	"retry_unit":        "retry.unit",

	"tailer_enabled": "tailer.enabled",
	"tailer_fenced":  "tailer.fenced",

	"wal_enabled": "wal.enabled",
	"wal_path":    "wal.path",

	"http_host": "server.host",
	"http_port": "server.port",

	"default_approach":    "server.default_approach",
	"cors_origins":        "api.cors_allowed_origins",
	"rate_limit_requests": "api.rate_limit_requests",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - INDEX_URL -> index.url
//   - HTTP_PORT -> server.port
//   - INDEXSYNC_QUEUE__DEDUP_TTL -> queue.dedup_ttl
//   - INDEXSYNC_QUEUE__STREAM__MAX_AGE -> queue.stream.max_age
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		path := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(path, "__", ".")
	}

	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated variables cannot pollute config.
	return ""
}
