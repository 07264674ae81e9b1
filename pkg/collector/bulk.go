/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package collector

import (
	"fmt"
	"time"

	"context"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/queue"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

// conservative per-day figures used when the bulk pipeline offers no
// estimate of its own.
const (
	bulkBytesPerDay = 256 << 20
	bulkItemsPerDay = 2000
)

// Trigger publishes shard work to the bulk pipeline.
type Trigger interface {
	PublishTrigger(ctx context.Context, msg *queue.TriggerMessage, priority int) (string, error)
	StatusesForShard(ctx context.Context, shardId int64) ([]*queue.StatusMessage, error)
}

// BulkDriver hands the whole shard to the external bulk pipeline: enqueue
// a trigger, watch status messages, then fetch the produced dataset's
// binaries. One Collect call covers the whole flow.
type BulkDriver struct {
	trigger      Trigger
	fetcher      *Fetcher
	pollInterval time.Duration
}

func NewBulkDriver(trigger Trigger, fetcher *Fetcher) *BulkDriver {
	return &BulkDriver{
		trigger:      trigger,
		fetcher:      fetcher,
		pollInterval: time.Duration(config.GetQueuePollIntervalSecond()) * time.Second,
	}
}

// Estimate sizes the scope from conservative per-day figures; the bulk
// pipeline exposes no estimation API.
func (d *BulkDriver) Estimate(_ context.Context, req *EstimateRequest) (int64, int64, int, error) {
	days := timeutil.DaysBetween(req.StartDate, req.EndDate)
	if days <= 0 {
		return 0, 0, 0, nil
	}
	return int64(days) * bulkBytesPerDay, int64(days) * bulkItemsPerDay, 60, nil
}

func (d *BulkDriver) Collect(ctx context.Context, shard *client.Shard, _ []*client.Checkpoint, sink ProgressSink) (*Result, error) {
	msg := &queue.TriggerMessage{
		JobId:        shard.ParentJobId,
		ShardId:      shard.Id,
		Custodian:    shard.CustodianEmail,
		JobType:      shard.JobType,
		StartDate:    shard.StartDate.Time.Format(timeutil.DateOnly),
		EndDate:      shard.EndDate.Time.Format(timeutil.DateOnly),
		OutputPrefix: shard.OutputPrefix.String,
	}
	messageId, err := d.trigger.PublishTrigger(ctx, msg, shard.Priority)
	if err != nil {
		return nil, err
	}
	klog.Infof("shard %d triggered on bulk pipeline, message %s", shard.Id, messageId)

	datasetUrl, err := d.awaitDataset(ctx, shard, sink)
	if err != nil {
		return nil, err
	}
	return d.fetcher.FetchDataset(ctx, shard, datasetUrl, sink)
}

// awaitDataset polls the status topic until the pipeline reports a
// terminal state for the shard. The ctx deadline, derived from the lease,
// bounds the wait.
func (d *BulkDriver) awaitDataset(ctx context.Context, shard *client.Shard, sink ProgressSink) (string, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		statuses, err := d.trigger.StatusesForShard(ctx, shard.Id)
		if err != nil {
			return "", err
		}
		running := false
		for _, status := range statuses {
			switch status.State {
			case queue.StatusSucceeded:
				return status.DatasetUrl, nil
			case queue.StatusFailed:
				return "", fmt.Errorf("bulk pipeline failed shard %d: %s", shard.Id, status.Error)
			case queue.StatusRunning:
				running = true
			}
		}
		if running {
			// keepalive so the lease is renewed while the pipeline works
			if err = sink.Report(ctx, 0, 0, 0); err != nil {
				return "", err
			}
		}
	}
}
