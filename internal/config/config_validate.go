// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/indexsync/internal/database"
	"github.com/tomtom215/indexsync/internal/validation"
)

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}

	if err := c.validatePrimary(); err != nil {
		return err
	}
	if err := c.validateIndex(); err != nil {
		return err
	}
	if err := c.validateMetadata(); err != nil {
		return err
	}
	if err := c.Queue.Validate(); err != nil {
		return err
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Tailer.Enabled {
		if err := c.Tailer.Validate(); err != nil {
			return err
		}
	}
	if err := c.WAL.Validate(); err != nil {
		return fmt.Errorf("wal: %w", err)
	}
	if c.API.RateLimitRequests < 0 || c.API.RateLimitWindow < 0 {
		return fmt.Errorf("api rate limit must not be negative")
	}
	return c.validateSynchronizer()
}

func (c *Config) validatePrimary() error {
	if !c.Primary.InMemory && c.Primary.Path == "" {
		return fmt.Errorf("primary.path is required unless primary.in_memory is set")
	}
	return nil
}

func (c *Config) validateIndex() error {
	if c.Index.Name == "" {
		return fmt.Errorf("index.name is required")
	}
	if err := validateHTTPURL(c.Index.URL); err != nil {
		return fmt.Errorf("index.url is invalid: %w", err)
	}
	if c.Index.ConnectTimeout <= 0 || c.Index.ReadTimeout <= 0 {
		return fmt.Errorf("index timeouts must be positive")
	}
	if c.Index.RateLimit < 0 {
		return fmt.Errorf("index.rate_limit must not be negative")
	}
	if c.Index.BreakerFailureRatio <= 0 || c.Index.BreakerFailureRatio > 1 {
		return fmt.Errorf("index.breaker_failure_ratio must be in (0, 1], got %v", c.Index.BreakerFailureRatio)
	}
	return nil
}

func (c *Config) validateMetadata() error {
	switch strings.ToLower(c.Metadata.Driver) {
	case database.DriverDuckDB:
		return nil
	case database.DriverPostgres:
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("metadata.driver must be %q or %q, got %q", database.DriverDuckDB, database.DriverPostgres, c.Metadata.Driver)
	}
}

func (c *Config) validateSynchronizer() error {
	if c.Synchronizer.RecoveryGrace < 0 {
		return fmt.Errorf("synchronizer.recovery_grace must not be negative")
	}
	if c.Synchronizer.RecoveryBatch < 1 {
		return fmt.Errorf("synchronizer.recovery_batch must be at least 1")
	}
	return nil
}

// validateHTTPURL checks that raw is an absolute http or https URL.
func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
