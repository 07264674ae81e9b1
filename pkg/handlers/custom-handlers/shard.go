/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"net/http"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
	"github.com/AMD-AIG-AIMA/Custos/pkg/lifecycle"
)

func (h *Handler) ListShardCheckpoints(c *gin.Context) {
	handle(c, h.listShardCheckpoints)
}

func (h *Handler) CreateShardedJob(c *gin.Context) {
	handle(c, h.createShardedJob)
}

func (h *Handler) NextShard(c *gin.Context) {
	handle(c, h.nextShard)
}

func (h *Handler) ShardProgress(c *gin.Context) {
	handle(c, h.shardProgress)
}

func (h *Handler) ShardComplete(c *gin.Context) {
	handle(c, h.shardComplete)
}

func (h *Handler) ShardRelease(c *gin.Context) {
	handle(c, h.shardRelease)
}

func (h *Handler) ShardRetry(c *gin.Context) {
	handle(c, h.shardRetry)
}

func (h *Handler) CleanupLocks(c *gin.Context) {
	handle(c, h.cleanupLocks)
}

func (h *Handler) listShardCheckpoints(c *gin.Context) (interface{}, error) {
	shardId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	tags := client.GetCheckpointFieldTags()
	checkpoints, err := h.dbClient.SelectCheckpoints(c.Request.Context(),
		sqrl.Eq{client.GetFieldTag(tags, "ShardId"): shardId},
		[]string{"id " + client.ASC}, -1, 0)
	if err != nil {
		return nil, err
	}
	return &types.CheckpointListResponse{Items: checkpoints}, nil
}

// createShardedJob creates and immediately plans a job, returning its
// shards. External workers then pull them through the next endpoint.
func (h *Handler) createShardedJob(c *gin.Context) (interface{}, error) {
	req := &lifecycle.CreateJobRequest{}
	body, err := getBodyFromRequest(c.Request, req)
	if err != nil {
		klog.ErrorS(err, "failed to parse sharded job request", "body", string(body))
		return nil, err
	}
	job, _, err := h.lifecycle.CreateJob(c.Request.Context(), req)
	if err != nil {
		return nil, err
	}
	shards, err := h.lifecycle.StartJob(c.Request.Context(), job.Id)
	if err != nil {
		return nil, err
	}
	c.Status(http.StatusCreated)
	return &types.StartJobResponse{JobId: job.Id, TotalShards: len(shards)}, nil
}

// nextShard hands one leased shard to a pulling worker. 204 when the
// queue is empty.
func (h *Handler) nextShard(c *gin.Context) (interface{}, error) {
	req := &types.NextShardRequest{}
	if _, err := getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if req.WorkerId == "" {
		return nil, customerrors.NewBadRequest("workerId is required")
	}
	shard, err := h.sched.ClaimNext(c.Request.Context(), req.WorkerId)
	if err != nil {
		return nil, err
	}
	if shard == nil {
		c.Status(http.StatusNoContent)
		return nil, nil
	}
	return shard, nil
}

func (h *Handler) shardProgress(c *gin.Context) (interface{}, error) {
	shardId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.ShardProgressRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if err = h.sched.ReportProgress(c.Request.Context(), shardId,
		req.WorkerId, req.LeaseToken, req.ItemsDelta, req.BytesDelta, req.ProgressPct); err != nil {
		return nil, err
	}
	// progress doubles as the lease heartbeat for external workers
	if err = h.sched.Extend(c.Request.Context(), shardId,
		req.WorkerId, req.LeaseToken, h.sched.LeaseDuration()); err != nil {
		return nil, err
	}
	return gin.H{"ok": true}, nil
}

func (h *Handler) shardComplete(c *gin.Context) (interface{}, error) {
	shardId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.CompleteShardRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	summary := &client.ShardSummary{
		Status:       req.Status,
		ActualBytes:  req.ActualBytes,
		ActualItems:  req.ActualItems,
		ManifestHash: req.ManifestHash,
		Error:        req.Error,
	}
	if err = h.sched.Complete(c.Request.Context(), shardId,
		req.WorkerId, req.LeaseToken, summary); err != nil {
		return nil, err
	}
	if h.finalizer != nil {
		if shard, err := h.dbClient.GetShard(c.Request.Context(), shardId); err == nil {
			h.finalizer.Enqueue(shard.ParentJobId)
		}
	}
	return gin.H{"ok": true}, nil
}

func (h *Handler) shardRelease(c *gin.Context) (interface{}, error) {
	shardId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.ReleaseShardRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if err = h.sched.Release(c.Request.Context(), shardId, req.WorkerId, req.LeaseToken); err != nil {
		return nil, err
	}
	return gin.H{"ok": true}, nil
}

func (h *Handler) shardRetry(c *gin.Context) (interface{}, error) {
	shardId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.RetryShardRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if err = h.sched.Retry(c.Request.Context(), shardId, req.Reason); err != nil {
		return nil, err
	}
	return gin.H{"ok": true}, nil
}

// cleanupLocks reaps expired shard leases and queue claims on demand,
// complementing the background reaper.
func (h *Handler) cleanupLocks(c *gin.Context) (interface{}, error) {
	reaped, err := h.sched.ReapExpired(c.Request.Context())
	if err != nil {
		return nil, err
	}
	timeouts, err := h.dbClient.HandleMessageTimeouts(c.Request.Context(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &types.CleanupLocksResponse{ShardsReaped: reaped, MessagesTimeout: timeouts}, nil
}
