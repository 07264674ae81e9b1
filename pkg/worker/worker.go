/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package worker runs the embedded collector pool: it claims leased
// shards from the scheduler, dispatches them to the route's driver, and
// heartbeats the lease while the driver streams items.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/checkpoint"
	"github.com/AMD-AIG-AIMA/Custos/pkg/collector"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
	"github.com/AMD-AIG-AIMA/Custos/pkg/scheduler"
)

// hybridRecentDays splits hybrid shards: windows ending inside the recent
// band go through the per-item driver for fidelity, older history goes to
// the bulk pipeline.
const hybridRecentDays = 30

// FinalizeNotifier is poked with the parent job id after each shard
// completion so the job can be finalized promptly. May be nil.
type FinalizeNotifier interface {
	Enqueue(jobId int64)
}

// Pool is one worker process's view of the shard queue.
type Pool struct {
	sched       *scheduler.Scheduler
	perItem     collector.Collector
	bulk        collector.Collector
	checkpoints *checkpoint.Engine
	notifier    FinalizeNotifier

	workerId     string
	pollInterval time.Duration
	leaseSlack   time.Duration
	slots        int64
	sem          *semaphore.Weighted

	// now is stubbed in tests.
	now func() time.Time
}

func NewPool(sched *scheduler.Scheduler, perItem, bulk collector.Collector, checkpoints *checkpoint.Engine) *Pool {
	slots := int64(config.GetWorkerMaxConcurrentShards())
	if slots < 1 {
		slots = 1
	}
	return &Pool{
		sched:        sched,
		perItem:      perItem,
		bulk:         bulk,
		checkpoints:  checkpoints,
		workerId:     config.GetWorkerId(),
		pollInterval: time.Duration(config.GetWorkerPollIntervalSecond()) * time.Second,
		leaseSlack:   time.Duration(config.GetWorkerLeaseSlackSecond()) * time.Second,
		slots:        slots,
		sem:          semaphore.NewWeighted(slots),
		now:          time.Now,
	}
}

func (p *Pool) WithNotifier(n FinalizeNotifier) *Pool {
	p.notifier = n
	return p
}

// Run polls for claimable shards until ctx is cancelled, then drains
// in-flight shards before returning.
func (p *Pool) Run(ctx context.Context) {
	klog.Infof("worker %s started: %d slots, poll every %s", p.workerId, p.slots, p.pollInterval)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.drain()
			klog.Infof("worker %s stopped", p.workerId)
			return
		case <-ticker.C:
			p.claimLoop(ctx)
		}
	}
}

// claimLoop claims as many shards as free slots allow. Stops at the first
// empty poll so an idle queue costs one query per tick.
func (p *Pool) claimLoop(ctx context.Context) {
	for p.sem.TryAcquire(1) {
		shard, err := p.sched.ClaimNext(ctx, p.workerId)
		if err != nil || shard == nil {
			p.sem.Release(1)
			if err != nil {
				klog.ErrorS(err, "shard claim failed", "workerId", p.workerId)
			}
			return
		}
		go func() {
			defer p.sem.Release(1)
			p.execute(ctx, shard)
		}()
	}
}

func (p *Pool) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.sem.Acquire(ctx, p.slots); err != nil {
		klog.Warning("worker drain timed out with shards still in flight")
		return
	}
	p.sem.Release(p.slots)
}

// execute runs one leased shard end to end. Stale-lease rejections mean
// another worker owns the shard now; all local work is discarded.
func (p *Pool) execute(ctx context.Context, shard *client.Shard) {
	token := shard.LeaseToken.String
	started := p.now()

	if err := p.sched.MarkRunning(ctx, shard.Id, p.workerId, token); err != nil {
		klog.ErrorS(err, "could not mark shard running", "shardId", shard.Id)
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := p.startHeartbeat(runCtx, cancel, shard.Id, token)
	defer stop()

	var resume []*client.Checkpoint
	if p.checkpoints != nil {
		var err error
		if resume, err = p.checkpoints.ResumeSet(ctx, shard.Id); err != nil {
			klog.ErrorS(err, "could not load resume checkpoints", "shardId", shard.Id)
			resume = nil
		}
	}

	driver := p.driverFor(shard)
	result, err := driver.Collect(runCtx, shard, resume, p.sink(shard.Id, token))
	stop()

	if err != nil {
		p.finishWithError(ctx, runCtx, shard, err)
		return
	}

	summary := &client.ShardSummary{
		Status:      client.ShardCompleted,
		ActualBytes: result.Bytes,
		ActualItems: result.Items,
		Error:       result.Error,
	}
	if result.FailedItems > 0 {
		summary.Status = client.ShardPartiallyCompleted
		if summary.Error == "" {
			summary.Error = fmt.Sprintf("%d items failed", result.FailedItems)
		}
	}
	if !result.Ok && result.Items == 0 {
		summary.Status = client.ShardFailed
	}

	if err = p.sched.Complete(ctx, shard.Id, p.workerId, token, summary); err != nil {
		if customerrors.IsLeaseStale(err) {
			klog.Warningf("shard %d lease lost before completion, discarding result", shard.Id)
		} else {
			klog.ErrorS(err, "shard completion failed", "shardId", shard.Id)
		}
		return
	}
	metrics.ShardDuration.Observe(p.now().Sub(started).Seconds())
	klog.Infof("shard %d finished %s: %d items, %d bytes",
		shard.Id, summary.Status, summary.ActualItems, summary.ActualBytes)
	if p.notifier != nil {
		p.notifier.Enqueue(shard.ParentJobId)
	}
}

// finishWithError records a failed run. A cancelled run context means the
// lease was lost or the process is shutting down; the lease is released
// so another worker can resume from checkpoints.
func (p *Pool) finishWithError(ctx, runCtx context.Context, shard *client.Shard, collectErr error) {
	if runCtx.Err() != nil {
		if err := p.sched.Release(context.WithoutCancel(ctx), shard.Id, p.workerId, shard.LeaseToken.String); err != nil && !customerrors.IsLeaseStale(err) {
			klog.ErrorS(err, "shard release failed", "shardId", shard.Id)
		}
		return
	}
	klog.ErrorS(collectErr, "shard collection failed", "shardId", shard.Id)
	summary := &client.ShardSummary{Status: client.ShardFailed, Error: collectErr.Error()}
	if err := p.sched.Complete(ctx, shard.Id, p.workerId, shard.LeaseToken.String, summary); err != nil && !customerrors.IsLeaseStale(err) {
		klog.ErrorS(err, "failed shard could not be recorded", "shardId", shard.Id)
	}
	if p.notifier != nil {
		p.notifier.Enqueue(shard.ParentJobId)
	}
}

// startHeartbeat extends the lease at a third of its duration. A stale
// rejection cancels the run; the shard belongs to someone else now.
func (p *Pool) startHeartbeat(ctx context.Context, cancel context.CancelFunc, shardId int64, token string) func() {
	lease := p.sched.LeaseDuration()
	interval := lease / 3
	if slack := lease - p.leaseSlack; p.leaseSlack > 0 && slack > 0 && interval > slack {
		interval = slack
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := p.sched.Extend(ctx, shardId, p.workerId, token, lease); err != nil {
					if customerrors.IsLeaseStale(err) {
						klog.Warningf("shard %d lease stale during heartbeat, aborting run", shardId)
						cancel()
						return
					}
					klog.ErrorS(err, "lease heartbeat failed", "shardId", shardId)
				}
			}
		}
	}()
	var once func()
	closed := false
	once = func() {
		if !closed {
			closed = true
			close(done)
		}
	}
	return once
}

// sink forwards driver progress to the scheduler under the lease token.
func (p *Pool) sink(shardId int64, token string) collector.ProgressSink {
	return collector.ProgressSinkFunc(func(ctx context.Context, itemsDelta, bytesDelta int64, progressPct float64) error {
		return p.sched.ReportProgress(ctx, shardId, p.workerId, token, itemsDelta, bytesDelta, progressPct)
	})
}

// driverFor picks the execution driver. Hybrid shards with a window
// ending in the recent band run per-item, older history runs bulk.
func (p *Pool) driverFor(shard *client.Shard) collector.Collector {
	switch shard.Route {
	case client.RouteBulkPipeline:
		return p.bulk
	case client.RouteHybrid:
		cutoff := p.now().UTC().AddDate(0, 0, -hybridRecentDays)
		if shard.EndDate.Valid && shard.EndDate.Time.Before(cutoff) {
			return p.bulk
		}
		return p.perItem
	default:
		return p.perItem
	}
}
