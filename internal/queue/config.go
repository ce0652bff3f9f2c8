// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package queue

import (
	"fmt"
	"time"
)

// Transport modes.
const (
	ModeNATS   = "nats"
	ModeMemory = "memory"
)

// Default topics. The retry topic sits under the task subject so one stream
// captures both.
const (
	DefaultTasksTopic  = "indexsync.tasks"
	DefaultRetryTopic  = "indexsync.tasks.retry"
	DefaultPoisonTopic = "indexsync.poison"
)

// Config holds the queue transport configuration.
type Config struct {
	// Mode is "nats" (JetStream) or "memory" (in-process GoChannel).
	Mode string `koanf:"mode"`

	// URL of the NATS server. Ignored when Embedded is set.
	URL string `koanf:"url"`

	// Embedded starts an in-process NATS server with JetStream.
	Embedded bool `koanf:"embedded"`

	Server ServerConfig `koanf:"server"`
	Stream StreamConfig `koanf:"stream"`

	TasksTopic  string `koanf:"tasks_topic"`
	RetryTopic  string `koanf:"retry_topic"`
	PoisonTopic string `koanf:"poison_topic"`

	// Consumer settings
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
	MaxDeliver       int           `koanf:"max_deliver"`
	MaxAckPending    int           `koanf:"max_ack_pending"`

	// Connection settings
	MaxReconnects   int           `koanf:"max_reconnects"`
	ReconnectWait   time.Duration `koanf:"reconnect_wait"`
	ReconnectBuffer int           `koanf:"reconnect_buffer"`

	// TrackMsgID sets Nats-Msg-Id so JetStream drops republished duplicates
	// inside the stream's duplicate window.
	TrackMsgID bool `koanf:"track_msg_id"`

	// Redelivery deduplication on the consumer.
	DedupTTL      time.Duration `koanf:"dedup_ttl"`
	DedupCapacity int           `koanf:"dedup_capacity"`

	// Publisher circuit breaker.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`

	// Router middleware. These retry handler errors (metadata store or
	// broker trouble), not index failures, which the engine classifies.
	RouterRetries          int           `koanf:"router_retries"`
	RouterRetryInterval    time.Duration `koanf:"router_retry_interval"`
	RouterMaxRetryInterval time.Duration `koanf:"router_max_retry_interval"`
	ThrottlePerSecond      int64         `koanf:"throttle_per_second"`

	// OutputBuffer is the GoChannel buffer in memory mode.
	OutputBuffer int64 `koanf:"output_buffer"`
}

// ServerConfig configures the embedded NATS server.
type ServerConfig struct {
	Host              string `koanf:"host"`
	Port              int    `koanf:"port"`
	StoreDir          string `koanf:"store_dir"`
	JetStreamMaxMem   int64  `koanf:"jetstream_max_memory"`
	JetStreamMaxStore int64  `koanf:"jetstream_max_store"`
	MaxPayload        int32  `koanf:"max_payload"`
}

// StreamConfig configures the JetStream stream holding sync tasks.
type StreamConfig struct {
	Name            string        `koanf:"name"`
	Subjects        []string      `koanf:"subjects"`
	MaxAge          time.Duration `koanf:"max_age"`
	MaxBytes        int64         `koanf:"max_bytes"`
	MaxMsgs         int64         `koanf:"max_msgs"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
	Replicas        int           `koanf:"replicas"`
}

// DefaultConfig returns production defaults: embedded JetStream.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeNATS,
		URL:      "nats://127.0.0.1:4222",
		Embedded: true,
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          "/data/nats",
			JetStreamMaxMem:   64 * 1024 * 1024,
			JetStreamMaxStore: 1024 * 1024 * 1024,
			MaxPayload:        8 * 1024 * 1024,
		},
		Stream: StreamConfig{
			Name:            "INDEXSYNC",
			Subjects:        []string{"indexsync.>"},
			MaxAge:          7 * 24 * time.Hour,
			MaxBytes:        -1,
			MaxMsgs:         -1,
			DuplicateWindow: 2 * time.Minute,
			Replicas:        1,
		},
		TasksTopic:             DefaultTasksTopic,
		RetryTopic:             DefaultRetryTopic,
		PoisonTopic:            DefaultPoisonTopic,
		DurableName:            "indexsync-consumer",
		QueueGroup:             "indexsync",
		SubscribersCount:       1,
		AckWaitTimeout:         30 * time.Second,
		CloseTimeout:           30 * time.Second,
		MaxDeliver:             10,
		MaxAckPending:          1000,
		MaxReconnects:          -1,
		ReconnectWait:          2 * time.Second,
		ReconnectBuffer:        8 * 1024 * 1024,
		TrackMsgID:             true,
		DedupTTL:               5 * time.Minute,
		DedupCapacity:          10000,
		BreakerMaxFailures:     5,
		BreakerTimeout:         30 * time.Second,
		RouterRetries:          3,
		RouterRetryInterval:    100 * time.Millisecond,
		RouterMaxRetryInterval: 5 * time.Second,
		OutputBuffer:           1024,
	}
}

// MemoryConfig returns a configuration for the in-process transport.
func MemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Mode = ModeMemory
	cfg.Embedded = false
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeNATS, ModeMemory:
	default:
		return fmt.Errorf("%w: queue mode must be %q or %q, got %q", ErrInvalidConfig, ModeNATS, ModeMemory, c.Mode)
	}
	if c.TasksTopic == "" || c.RetryTopic == "" {
		return fmt.Errorf("%w: tasks and retry topics are required", ErrInvalidConfig)
	}
	if c.TasksTopic == c.RetryTopic {
		return fmt.Errorf("%w: retry topic must differ from tasks topic", ErrInvalidConfig)
	}
	if c.Mode == ModeMemory {
		return nil
	}
	if !c.Embedded && c.URL == "" {
		return fmt.Errorf("%w: url is required without an embedded server", ErrInvalidConfig)
	}
	if c.Stream.Name == "" || len(c.Stream.Subjects) == 0 {
		return fmt.Errorf("%w: stream name and subjects are required", ErrInvalidConfig)
	}
	if c.SubscribersCount < 1 {
		return fmt.Errorf("%w: subscribers_count must be at least 1", ErrInvalidConfig)
	}
	if c.MaxDeliver < 1 {
		return fmt.Errorf("%w: max_deliver must be at least 1", ErrInvalidConfig)
	}
	return nil
}
