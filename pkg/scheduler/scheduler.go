/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package scheduler hands pending shards to competing workers under
// pessimistic leases and recovers expired ones.
package scheduler

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/clock"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// Store is the slice of the metadata client the scheduler drives.
type Store interface {
	ClaimNextShard(ctx context.Context, workerId, leaseToken string, leaseDuration time.Duration) (*client.Shard, error)
	ExtendShardLease(ctx context.Context, shardId int64, workerId, leaseToken string, until time.Time) (bool, error)
	ReleaseShardLease(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error)
	CompleteShard(ctx context.Context, shardId int64, workerId, leaseToken string, summary *client.ShardSummary) (bool, error)
	RetryShard(ctx context.Context, shardId int64, reason string) (bool, error)
	ReapExpiredShards(ctx context.Context, now time.Time) (int, error)
	SetShardRunning(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error)
	UpdateShardProgress(ctx context.Context, shardId int64, workerId, leaseToken string, itemsDelta, bytesDelta int64, progressPct float64) (bool, error)
}

type Scheduler struct {
	store         Store
	clock         clock.Clock
	leaseDuration time.Duration
	reapInterval  time.Duration
}

func New(store Store) *Scheduler {
	return &Scheduler{
		store:         store,
		clock:         clock.Real(),
		leaseDuration: time.Duration(config.GetLeaseDurationSecond()) * time.Second,
		reapInterval:  time.Duration(config.GetReapIntervalSecond()) * time.Second,
	}
}

// NewWithClock is New with an injected time source.
func NewWithClock(store Store, clk clock.Clock, leaseDuration, reapInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:         store,
		clock:         clk,
		leaseDuration: leaseDuration,
		reapInterval:  reapInterval,
	}
}

// LeaseDuration returns how long a granted lease lives before a heartbeat
// must extend it.
func (s *Scheduler) LeaseDuration() time.Duration {
	return s.leaseDuration
}

// ClaimNext grants the caller a lease on one pending shard, or nil when
// none is ready.
func (s *Scheduler) ClaimNext(ctx context.Context, workerId string) (*client.Shard, error) {
	token := clock.NewLeaseToken()
	shard, err := s.store.ClaimNextShard(ctx, workerId, token, s.leaseDuration)
	if err != nil {
		return nil, err
	}
	if shard == nil {
		return nil, nil
	}
	metrics.ShardsClaimed.Inc()
	metrics.ActiveShards.Inc()
	klog.V(4).Infof("worker %s claimed shard %d (%s), lease until %s",
		workerId, shard.Id, shard.ShardIdentifier, shard.LeaseExpiresAt.Time.Format(time.RFC3339))
	return shard, nil
}

// Extend pushes the lease expiry out by extra from now. A stale token is
// rejected with LeaseStale.
func (s *Scheduler) Extend(ctx context.Context, shardId int64, workerId, leaseToken string, extra time.Duration) error {
	until := s.clock.Now().UTC().Add(extra)
	ok, err := s.store.ExtendShardLease(ctx, shardId, workerId, leaseToken, until)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleLeaseRejections.Inc()
		return customerrors.NewLeaseStale(shardId, workerId)
	}
	return nil
}

// Release returns a claimed shard to Pending voluntarily.
func (s *Scheduler) Release(ctx context.Context, shardId int64, workerId, leaseToken string) error {
	ok, err := s.store.ReleaseShardLease(ctx, shardId, workerId, leaseToken)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleLeaseRejections.Inc()
		return customerrors.NewLeaseStale(shardId, workerId)
	}
	metrics.ActiveShards.Dec()
	return nil
}

// MarkRunning transitions a claimed shard to Running.
func (s *Scheduler) MarkRunning(ctx context.Context, shardId int64, workerId, leaseToken string) error {
	ok, err := s.store.SetShardRunning(ctx, shardId, workerId, leaseToken)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleLeaseRejections.Inc()
		return customerrors.NewLeaseStale(shardId, workerId)
	}
	return nil
}

// ReportProgress accumulates processed counters under the lease token.
func (s *Scheduler) ReportProgress(ctx context.Context, shardId int64, workerId, leaseToken string, itemsDelta, bytesDelta int64, progressPct float64) error {
	ok, err := s.store.UpdateShardProgress(ctx, shardId, workerId, leaseToken, itemsDelta, bytesDelta, progressPct)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleLeaseRejections.Inc()
		return customerrors.NewLeaseStale(shardId, workerId)
	}
	return nil
}

// Complete records a terminal outcome. Work presented with a stale token
// is rejected and must be discarded by the caller.
func (s *Scheduler) Complete(ctx context.Context, shardId int64, workerId, leaseToken string, summary *client.ShardSummary) error {
	if !client.IsTerminalShardStatus(summary.Status) {
		return customerrors.NewBadRequest("complete requires a terminal shard status")
	}
	ok, err := s.store.CompleteShard(ctx, shardId, workerId, leaseToken, summary)
	if err != nil {
		return err
	}
	if !ok {
		metrics.StaleLeaseRejections.Inc()
		return customerrors.NewLeaseStale(shardId, workerId)
	}
	metrics.ShardsCompleted.WithLabelValues(summary.Status).Inc()
	metrics.ActiveShards.Dec()
	return nil
}

// Retry moves a Failed shard back to Pending while the retry budget holds.
func (s *Scheduler) Retry(ctx context.Context, shardId int64, reason string) error {
	ok, err := s.store.RetryShard(ctx, shardId, reason)
	if err != nil {
		return err
	}
	if !ok {
		return customerrors.NewRetryExhausted(shardId, int32(config.GetShardMaxRetries()))
	}
	return nil
}

// ReapExpired sweeps expired leases once. Idempotent; safe to run from
// several processes.
func (s *Scheduler) ReapExpired(ctx context.Context) (int, error) {
	count, err := s.store.ReapExpiredShards(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.ShardsReaped.Add(float64(count))
		klog.Infof("reaped %d expired shard leases", count)
	}
	return count, nil
}

// RunReaper sweeps expired leases on the configured interval until ctx is
// cancelled.
func (s *Scheduler) RunReaper(ctx context.Context) {
	klog.Infof("lease reaper started, interval %s", s.reapInterval)
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		if _, err := s.ReapExpired(ctx); err != nil {
			klog.ErrorS(err, "lease reap failed")
		}
	}, s.reapInterval)
	klog.Infof("lease reaper stopped")
}
