// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package config

import (
	"time"

	"github.com/tomtom215/indexsync/internal/api"
	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/index"
	"github.com/tomtom215/indexsync/internal/logging"
	"github.com/tomtom215/indexsync/internal/primary"
	"github.com/tomtom215/indexsync/internal/queue"
	"github.com/tomtom215/indexsync/internal/retry"
	"github.com/tomtom215/indexsync/internal/supervisor"
	"github.com/tomtom215/indexsync/internal/synchronizer"
	"github.com/tomtom215/indexsync/internal/tailer"
	"github.com/tomtom215/indexsync/internal/wal"
)

// Config is the complete process configuration.
type Config struct {
	Logging      logging.Config        `koanf:"logging"`
	Primary      primary.Config        `koanf:"primary"`
	Index        index.Config          `koanf:"index"`
	Metadata     database.Config       `koanf:"metadata"`
	Queue        queue.Config          `koanf:"queue"`
	Retry        retry.Policy          `koanf:"retry"`
	Tailer       tailer.Config         `koanf:"tailer"`
	WAL          wal.Config            `koanf:"wal"`
	Synchronizer synchronizer.Config   `koanf:"synchronizer"`
	Server       ServerConfig          `koanf:"server"`
	API          api.MiddlewareConfig  `koanf:"api"`
	Supervisor   supervisor.TreeConfig `koanf:"supervisor"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes" validate:"gt=0"`

	// DefaultApproach applies to mutations that do not pass ?approach=.
	DefaultApproach string `koanf:"default_approach" validate:"required,approach"`
}

// defaultConfig returns the defaults every other layer overrides.
func defaultConfig() *Config {
	return &Config{
		Logging: logging.DefaultConfig(),
		Primary: primary.Config{
			Path:       "/data/primary",
			SyncWrites: true,
		},
		Index: index.DefaultConfig(),
		Metadata: database.Config{
			Driver: database.DriverDuckDB,
			DSN:    "/data/indexsync.duckdb",
		},
		Queue:        queue.DefaultConfig(),
		Retry:        retry.DefaultPolicy(),
		Tailer:       tailer.DefaultConfig(),
		WAL:          wal.DefaultConfig(),
		Synchronizer: synchronizer.DefaultConfig(),
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			DefaultApproach: "direct",
		},
		API:        api.DefaultMiddlewareConfig(),
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Default returns the built-in defaults with derived fields applied. Used by
// tests and by tools that run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	cfg.derive()
	return cfg
}

// derive copies settings owned by one section into the sections that
// consume them.
func (c *Config) derive() {
	c.Synchronizer.IndexName = c.Index.Name
	c.Tailer.IndexName = c.Index.Name
	c.Synchronizer.TasksTopic = c.Queue.TasksTopic
	c.Synchronizer.RetryTopic = c.Queue.RetryTopic
}
