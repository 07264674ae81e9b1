/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package metrics holds the process-wide prometheus collectors. Counters
// and gauges live here so packages do not register duplicate collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "custos"

var (
	JobsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_created_total",
		Help:      "The total number of collection jobs created",
	}, []string{"job_type", "route"})

	JobsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finalized_total",
		Help:      "The total number of collection jobs reaching a terminal status",
	}, []string{"status"})

	ShardsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shards_claimed_total",
		Help:      "The total number of shard leases granted to workers",
	})

	ShardsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shards_completed_total",
		Help:      "The total number of shards finishing, by outcome",
	}, []string{"status"})

	ShardsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shards_reaped_total",
		Help:      "The total number of expired shard leases reclaimed",
	})

	StaleLeaseRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_lease_rejections_total",
		Help:      "The total number of writes rejected for a stale lease token",
	})

	ItemsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_collected_total",
		Help:      "The total number of source items persisted",
	}, []string{"job_type"})

	ItemsSkippedDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "items_skipped_duplicate_total",
		Help:      "The total number of item writes skipped as already collected",
	})

	BytesCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_collected_total",
		Help:      "The total bytes of item content persisted",
	}, []string{"job_type"})

	ThrottleBackoffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "throttle_backoffs_total",
		Help:      "The total number of source throttle responses that triggered backoff",
	}, []string{"job_type"})

	RouteDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "route_decisions_total",
		Help:      "The total number of routing decisions, by chosen route",
	}, []string{"route"})

	ManifestsSealed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "manifests_sealed_total",
		Help:      "The total number of custody manifests sealed to immutable storage",
	})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "The total number of reconciliation runs, by overall result",
	}, []string{"passed"})

	QueueMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_messages_published_total",
		Help:      "The total number of bulk-pipeline messages published",
	}, []string{"topic"})

	QueueMessageTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_message_timeouts_total",
		Help:      "The total number of bulk-pipeline messages returned to pending after a consumer timeout",
	})

	ActiveShards = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_shards",
		Help:      "The number of shards currently leased or running",
	})

	ShardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "shard_duration_seconds",
		Help:      "Records wallclock time from shard claim to terminal status.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	})

	CheckpointWrites = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_writes_total",
		Help:      "The total number of checkpoint snapshots persisted",
	})
)
