/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	backoffv4 "github.com/cenkalti/backoff/v4"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/backoff"
	"github.com/AMD-AIG-AIMA/Custos/pkg/checkpoint"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// PerItemDriver streams items from the source one by one, writing each
// artifact with its hash computed in the same pass. Upstream throttling is
// absorbed with exponential backoff and never fails the shard.
type PerItemDriver struct {
	store       ItemStore
	artifacts   artifact.Store
	source      Source
	checkpoints *checkpoint.Engine

	throttleInitial time.Duration
	throttleMax     time.Duration
}

func NewPerItemDriver(store ItemStore, artifacts artifact.Store, source Source, checkpoints *checkpoint.Engine) *PerItemDriver {
	return &PerItemDriver{
		store:           store,
		artifacts:       artifacts,
		source:          source,
		checkpoints:     checkpoints,
		throttleInitial: time.Second,
		throttleMax:     time.Minute,
	}
}

func (d *PerItemDriver) Estimate(ctx context.Context, req *EstimateRequest) (int64, int64, int, error) {
	bytes, items, err := d.source.Estimate(ctx, req)
	if err != nil {
		return 0, 0, 0, err
	}
	return bytes, items, 80, nil
}

func (d *PerItemDriver) Collect(ctx context.Context, shard *client.Shard, resume []*client.Checkpoint, sink ProgressSink) (*Result, error) {
	iter, err := d.source.Items(ctx, shard, resume)
	if err != nil {
		return nil, err
	}

	var batchCp *client.Checkpoint
	if d.checkpoints != nil {
		batchCp, err = d.checkpoints.Create(ctx, shard.Id, client.CheckpointBatch,
			fmt.Sprintf("batch|%d|retry%d", shard.ShardIndex, shard.RetryCount),
			&checkpoint.BatchPayload{BatchIndex: shard.ShardIndex}, shard.LeaseToken.String)
		if err != nil {
			// an existing checkpoint from a prior attempt is fine
			batchCp = nil
		}
	}

	result := &Result{}
	policy := backoff.NewThrottleBackOff(d.throttleInitial, d.throttleMax)
	var pendingItems, pendingBytes int64
	lastReport := time.Now()
	sequence := int64(0)

	flush := func(force bool) error {
		if !force && pendingItems < reportEveryItems && time.Since(lastReport) < reportMaxGap {
			return nil
		}
		if pendingItems == 0 && pendingBytes == 0 && !force {
			return nil
		}
		pct := progressPct(result.Items+result.FailedItems, shard.EstimatedItems)
		if err := sink.Report(ctx, pendingItems, pendingBytes, pct); err != nil {
			return err
		}
		pendingItems, pendingBytes = 0, 0
		lastReport = time.Now()
		return nil
	}

	for {
		if err = ctx.Err(); err != nil {
			return result, err
		}
		item, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		var throttled *Throttled
		if errors.As(err, &throttled) {
			if err = d.absorbThrottle(ctx, shard, policy, throttled); err != nil {
				return result, err
			}
			continue
		}
		if err != nil {
			return result, err
		}
		policy.Reset()

		sequence++
		row, writeErr := d.collectOne(ctx, shard, sequence, item)
		inserted, err := d.store.InsertCollectedItem(ctx, row)
		if err != nil {
			return result, err
		}
		if !inserted {
			metrics.ItemsSkippedDuplicate.Inc()
			continue
		}
		if writeErr != nil {
			result.FailedItems++
			continue
		}
		result.Items++
		result.Bytes += row.SizeBytes
		pendingItems++
		pendingBytes += row.SizeBytes
		metrics.ItemsCollected.WithLabelValues(shard.JobType).Inc()
		metrics.BytesCollected.WithLabelValues(shard.JobType).Add(float64(row.SizeBytes))

		if err = flush(false); err != nil {
			return result, err
		}
	}
	if err = flush(true); err != nil {
		return result, err
	}

	if batchCp != nil {
		if err = d.checkpoints.Complete(ctx, batchCp.Id, result.Items, result.Bytes); err != nil {
			klog.ErrorS(err, "failed to complete batch checkpoint", "shardId", shard.Id)
		}
	}
	result.Ok = result.FailedItems == 0
	if result.FailedItems > 0 {
		result.Error = fmt.Sprintf("%d of %d items failed", result.FailedItems, result.Items+result.FailedItems)
	}
	return result, nil
}

// collectOne writes the item's artifact and builds its row. A write
// failure yields a row with is_successful=false; the insert still happens
// so the failure is part of the custody record.
func (d *PerItemDriver) collectOne(ctx context.Context, shard *client.Shard, sequence int64, item *SourceItem) (*client.CollectedItem, error) {
	row := &client.CollectedItem{
		ShardId:      shard.Id,
		SourceItemId: item.Id,
		ItemType:     item.ItemType,
		Subject:      dbutils.NullString(item.Subject),
		Sender:       dbutils.NullString(item.From),
		Recipients:   dbutils.NullString(item.To),
		CollectedAt:  dbutils.NullTime(time.Now().UTC()),
		IsSuccessful: true,
	}
	if !item.ItemDate.IsZero() {
		row.ItemDate = dbutils.NullTime(item.ItemDate)
	}
	wr, err := d.artifacts.Write(ctx, artifactName(shard, sequence, item.Name), item.Body)
	if err != nil {
		row.IsSuccessful = false
		row.Error = dbutils.NullString(err.Error())
		return row, err
	}
	row.SizeBytes = wr.SizeBytes
	row.Sha256 = wr.Sha256
	row.ArtifactPath = dbutils.NullString(wr.Path)
	return row, nil
}

// absorbThrottle sleeps out one throttle hint, recording the audit event.
func (d *PerItemDriver) absorbThrottle(ctx context.Context, shard *client.Shard, policy backoffv4.BackOff, throttled *Throttled) error {
	delay := backoff.NextThrottleDelay(policy, throttled.RetryAfter)
	metrics.ThrottleBackoffs.WithLabelValues(shard.JobType).Inc()
	d.audit(ctx, shard, fmt.Sprintf("upstream throttled, backing off %s", delay))
	klog.V(4).Infof("shard %d throttled, sleeping %s", shard.Id, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *PerItemDriver) audit(ctx context.Context, shard *client.Shard, msg string) {
	entry := &client.JobLog{
		JobId:         shard.ParentJobId,
		Ts:            dbutils.NullTime(time.Now().UTC()),
		Level:         client.LogWarn,
		Category:      client.CategoryBackoff,
		Message:       msg,
		CorrelationId: shard.LeaseToken,
	}
	if err := d.store.AppendJobLog(ctx, entry); err != nil {
		klog.ErrorS(err, "failed to append backoff audit log", "shardId", shard.Id)
	}
}
