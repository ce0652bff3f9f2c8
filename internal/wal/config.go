// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"fmt"
	"time"
)

// Config holds outbox settings.
type Config struct {
	// Enabled routes producer publishes through the outbox. When false the
	// producer publishes directly.
	Enabled bool `koanf:"enabled"`

	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory keeps the outbox in memory. Tests and local runs only.
	InMemory bool `koanf:"in_memory"`

	// SyncWrites fsyncs every write.
	SyncWrites bool `koanf:"sync_writes"`

	// RetryInterval is the period of the retry loop.
	RetryInterval time.Duration `koanf:"retry_interval"`

	// RetryBackoff is the base of the per-entry exponential backoff.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxRetries is the number of failed publishes after which an entry is
	// dropped.
	MaxRetries int `koanf:"max_retries"`

	// EntryTTL bounds how long an unconfirmed entry is kept.
	EntryTTL time.Duration `koanf:"entry_ttl"`

	// CompactInterval is the period of the compactor.
	CompactInterval time.Duration `koanf:"compact_interval"`

	// LeaseDuration is how long a claimed entry stays claimed if the claimer
	// dies without confirming.
	LeaseDuration time.Duration `koanf:"lease_duration"`

	// GCRatio is passed to BadgerDB value log GC.
	GCRatio float64 `koanf:"gc_ratio"`

	// CloseTimeout bounds Close.
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Path:            "/data/outbox",
		SyncWrites:      true,
		RetryInterval:   10 * time.Second,
		RetryBackoff:    time.Second,
		MaxRetries:      100,
		EntryTTL:        72 * time.Hour,
		CompactInterval: 15 * time.Minute,
		LeaseDuration:   time.Minute,
		GCRatio:         0.5,
		CloseTimeout:    30 * time.Second,
	}
}

// Validate checks the configuration. A disabled outbox is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Path == "" && !c.InMemory {
		return &ConfigError{Field: "path", Message: "required unless in_memory is set"}
	}
	if c.RetryInterval <= 0 {
		return &ConfigError{Field: "retry_interval", Message: "must be positive"}
	}
	if c.RetryBackoff <= 0 {
		return &ConfigError{Field: "retry_backoff", Message: "must be positive"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "max_retries", Message: "must be at least 1"}
	}
	if c.EntryTTL <= 0 {
		return &ConfigError{Field: "entry_ttl", Message: "must be positive"}
	}
	if c.CompactInterval <= 0 {
		return &ConfigError{Field: "compact_interval", Message: "must be positive"}
	}
	if c.LeaseDuration <= 0 {
		return &ConfigError{Field: "lease_duration", Message: "must be positive"}
	}
	if c.GCRatio <= 0 || c.GCRatio >= 1 {
		return &ConfigError{Field: "gc_ratio", Message: "must be between 0 and 1"}
	}
	return nil
}

// ConfigError reports an invalid outbox setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("wal config %s: %s", e.Field, e.Message)
}
