// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package tailer

import (
	"fmt"
	"time"
)

// Config configures the change-capture tailer.
type Config struct {
	// Enabled starts the tailer with the server.
	Enabled bool `koanf:"enabled"`

	// IndexName is the search index events are applied to.
	IndexName string `koanf:"index_name"`

	// PollInterval bounds how long the tailer waits for a commit signal
	// before reading the log again.
	PollInterval time.Duration `koanf:"poll_interval"`

	// BatchSize is the number of events read per poll.
	BatchSize int `koanf:"batch_size"`

	// Fenced sends the entity version with every index write.
	Fenced bool `koanf:"fenced"`
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		IndexName:    "entities",
		PollInterval: time.Second,
		BatchSize:    100,
		Fenced:       true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.IndexName == "" {
		return fmt.Errorf("tailer index_name is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("tailer poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("tailer batch_size must be at least 1, got %d", c.BatchSize)
	}
	return nil
}
