// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/indexsync/internal/queue"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Retry.MaxRetries != 5 || cfg.Retry.MaxBackoff != 10 || cfg.Retry.Unit != time.Second {
		t.Errorf("Retry = %+v, want 5 retries, cap 10, unit 1s", cfg.Retry)
	}
	if cfg.Queue.Mode != queue.ModeNATS || !cfg.Queue.Embedded {
		t.Errorf("Queue should default to embedded NATS, got mode %q embedded %v", cfg.Queue.Mode, cfg.Queue.Embedded)
	}
	if cfg.Metadata.Driver != "duckdb" {
		t.Errorf("Metadata.Driver = %q, want duckdb", cfg.Metadata.Driver)
	}
	if !cfg.Tailer.Enabled || !cfg.Tailer.Fenced {
		t.Error("Tailer should be enabled and fenced by default")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Synchronizer.IndexName != cfg.Index.Name || cfg.Tailer.IndexName != cfg.Index.Name {
		t.Error("index name not derived")
	}
	if cfg.Synchronizer.RetryTopic != queue.DefaultRetryTopic {
		t.Errorf("Synchronizer.RetryTopic = %q", cfg.Synchronizer.RetryTopic)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
index:
  url: https://search.internal:9200
  name: products
queue:
  mode: memory
  tasks_topic: products.tasks
  retry_topic: products.tasks.retry
retry:
  max_retries: 3
  unit: 500ms
tailer:
  batch_size: 25
server:
  port: 9090
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Index.Name != "products" || cfg.Synchronizer.IndexName != "products" || cfg.Tailer.IndexName != "products" {
		t.Errorf("index name = %q / %q / %q", cfg.Index.Name, cfg.Synchronizer.IndexName, cfg.Tailer.IndexName)
	}
	if cfg.Synchronizer.TasksTopic != "products.tasks" || cfg.Synchronizer.RetryTopic != "products.tasks.retry" {
		t.Errorf("topics not derived: %q %q", cfg.Synchronizer.TasksTopic, cfg.Synchronizer.RetryTopic)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.Unit != 500*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Retry.MaxBackoff != 10 {
		t.Errorf("unset keys must keep defaults, MaxBackoff = %d", cfg.Retry.MaxBackoff)
	}
	if cfg.Tailer.BatchSize != 25 || cfg.Server.Port != 9090 {
		t.Errorf("BatchSize = %d, Port = %d", cfg.Tailer.BatchSize, cfg.Server.Port)
	}
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	t.Setenv("INDEX_NAME", "orders")
	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("QUEUE_MODE", "memory")
	t.Setenv("INDEXSYNC_QUEUE__DEDUP_TTL", "10m")
	t.Setenv("INDEXSYNC_QUEUE__STREAM__SUBJECTS", "orders.>, audit.>")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DEFAULT_APPROACH", "queue_versioned")

	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Index.Name != "orders" || cfg.Tailer.IndexName != "orders" {
		t.Errorf("index name = %q / %q", cfg.Index.Name, cfg.Tailer.IndexName)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000", cfg.Server.Port)
	}
	if cfg.Queue.DedupTTL != 10*time.Minute {
		t.Errorf("Queue.DedupTTL = %v, want 10m", cfg.Queue.DedupTTL)
	}
	if len(cfg.Queue.Stream.Subjects) != 2 || cfg.Queue.Stream.Subjects[1] != "audit.>" {
		t.Errorf("Queue.Stream.Subjects = %v", cfg.Queue.Stream.Subjects)
	}
	if len(cfg.API.CORSAllowedOrigins) != 2 || cfg.API.CORSAllowedOrigins[0] != "https://a.example" {
		t.Errorf("API.CORSAllowedOrigins = %v", cfg.API.CORSAllowedOrigins)
	}
	if cfg.Server.DefaultApproach != "queue_versioned" {
		t.Errorf("Server.DefaultApproach = %q", cfg.Server.DefaultApproach)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	t.Setenv("METADATA_DRIVER", "sqlite")
	if _, err := LoadFile(""); err == nil {
		t.Error("expected validation failure for an unsupported driver")
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"INDEX_URL", "index.url"},
		{"HTTP_PORT", "server.port"},
		{"NATS_STORE_DIR", "queue.server.store_dir"},
		{"INDEXSYNC_QUEUE__DEDUP_TTL", "queue.dedup_ttl"},
		{"INDEXSYNC_WAL__COMPACT_INTERVAL", "wal.compact_interval"},
		{"CORS_ORIGINS", "api.cors_allowed_origins"},
		{"PATH", ""},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := envTransformFunc(tt.key); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad index url", func(c *Config) { c.Index.URL = "ftp://example.com" }},
		{"empty index name", func(c *Config) { c.Index.Name = "" }},
		{"bad breaker ratio", func(c *Config) { c.Index.BreakerFailureRatio = 1.5 }},
		{"postgres without dsn", func(c *Config) { c.Metadata.Driver = "postgres"; c.Metadata.DSN = "" }},
		{"unknown driver", func(c *Config) { c.Metadata.Driver = "mysql" }},
		{"primary without path", func(c *Config) { c.Primary.Path = "" }},
		{"bad queue mode", func(c *Config) { c.Queue.Mode = "kafka" }},
		{"zero retry unit", func(c *Config) { c.Retry.Unit = 0 }},
		{"tailer batch", func(c *Config) { c.Tailer.BatchSize = 0 }},
		{"server port", func(c *Config) { c.Server.Port = 0 }},
		{"server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"wal without path", func(c *Config) { c.WAL.Path = "" }},
		{"recovery batch", func(c *Config) { c.Synchronizer.RecoveryBatch = 0 }},
		{"unknown default approach", func(c *Config) { c.Server.DefaultApproach = "batch" }},
		{"negative rate limit", func(c *Config) { c.API.RateLimitRequests = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}

	t.Run("disabled tailer is not validated", func(t *testing.T) {
		cfg := Default()
		cfg.Tailer.Enabled = false
		cfg.Tailer.BatchSize = 0
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() = %v", err)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	if got := findConfigFile(); got != path {
		t.Errorf("findConfigFile() = %q, want %q", got, path)
	}
}
