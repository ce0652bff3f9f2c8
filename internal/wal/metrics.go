// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	walWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexsync_wal_writes_total",
		Help: "Sync tasks written to the outbox",
	})

	walConfirmsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexsync_wal_confirms_total",
		Help: "Outbox entries confirmed after a successful publish",
	})

	walPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexsync_wal_publish_failures_total",
		Help: "Failed publishes of outbox entries",
	})

	walDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexsync_wal_dropped_total",
		Help: "Outbox entries dropped without being published",
	}, []string{"reason"})

	walPendingEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "indexsync_wal_pending_entries",
		Help: "Unconfirmed outbox entries",
	})

	walCompacted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexsync_wal_entries_compacted_total",
		Help: "Outbox entries removed by compaction",
	})

	walWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexsync_wal_write_latency_seconds",
		Help:    "Outbox write latency",
		Buckets: prometheus.DefBuckets,
	})
)
