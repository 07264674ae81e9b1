/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
	"github.com/AMD-AIG-AIMA/Custos/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

func (h *Handler) CreateJob(c *gin.Context) {
	handle(c, h.createJob)
}

func (h *Handler) StartJob(c *gin.Context) {
	handle(c, h.startJob)
}

func (h *Handler) CompleteJob(c *gin.Context) {
	handle(c, h.completeJob)
}

func (h *Handler) CancelJob(c *gin.Context) {
	handle(c, h.cancelJob)
}

func (h *Handler) GetJob(c *gin.Context) {
	handle(c, h.getJob)
}

func (h *Handler) ListJob(c *gin.Context) {
	handle(c, h.listJob)
}

func (h *Handler) ListJobShards(c *gin.Context) {
	handle(c, h.listJobShards)
}

func (h *Handler) InsertJobItems(c *gin.Context) {
	handle(c, h.insertJobItems)
}

func (h *Handler) ReconcileJob(c *gin.Context) {
	handle(c, h.reconcileJob)
}

func (h *Handler) createJob(c *gin.Context) (interface{}, error) {
	req := &lifecycle.CreateJobRequest{}
	body, err := getBodyFromRequest(c.Request, req)
	if err != nil {
		klog.ErrorS(err, "failed to parse job request", "body", string(body))
		return nil, err
	}
	job, decision, err := h.lifecycle.CreateJob(c.Request.Context(), req)
	if err != nil {
		return nil, err
	}
	return &types.CreateJobResponse{
		JobId:          job.Id,
		Route:          decision.Route,
		RouteReason:    decision.Reason,
		EstimatedBytes: decision.EstimatedBytes,
		EstimatedItems: decision.EstimatedItems,
	}, nil
}

func (h *Handler) startJob(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	shards, err := h.lifecycle.StartJob(c.Request.Context(), jobId)
	if err != nil {
		return nil, err
	}
	return &types.StartJobResponse{JobId: jobId, TotalShards: len(shards)}, nil
}

func (h *Handler) completeJob(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.CompleteJobRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if err = h.lifecycle.CompleteJob(c.Request.Context(), jobId,
		req.Status, req.ActualBytes, req.ActualItems, req.Error); err != nil {
		return nil, err
	}
	return h.dbClient.GetJob(c.Request.Context(), jobId)
}

func (h *Handler) cancelJob(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	if err = h.lifecycle.CancelJob(c.Request.Context(), jobId); err != nil {
		return nil, err
	}
	return h.dbClient.GetJob(c.Request.Context(), jobId)
}

func (h *Handler) getJob(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	return h.dbClient.GetJob(c.Request.Context(), jobId)
}

func (h *Handler) listJob(c *gin.Context) (interface{}, error) {
	query, sortBy, order, err := parseListJobQuery(c)
	if err != nil {
		klog.ErrorS(err, "failed to parse job list query")
		return nil, err
	}
	limit, offset := pagination(c)

	jobs, err := h.dbClient.SelectJobs(c.Request.Context(), query, sortBy, order, limit, offset)
	if err != nil {
		return nil, err
	}
	count, err := h.dbClient.CountJobs(c.Request.Context(), query)
	if err != nil {
		return nil, err
	}
	return &types.JobListResponse{TotalCount: count, Items: jobs}, nil
}

func (h *Handler) listJobShards(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	tags := client.GetShardFieldTags()
	query := sqrl.Eq{client.GetFieldTag(tags, "ParentJobId"): jobId}
	shards, err := h.dbClient.SelectShards(c.Request.Context(), query,
		[]string{"shard_index " + client.ASC}, -1, 0)
	if err != nil {
		return nil, err
	}
	return &types.ShardListResponse{TotalCount: len(shards), Items: shards}, nil
}

// insertJobItems records externally collected items against a shard of the
// job. Duplicate (shard, source item) pairs are skipped, not errors.
func (h *Handler) insertJobItems(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.ItemsBatchRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, customerrors.NewBadRequest("no items in request")
	}
	if len(req.Items) > types.MaxItemsBatch {
		return nil, customerrors.NewBadRequest(
			fmt.Sprintf("at most %d items per batch, got %d", types.MaxItemsBatch, len(req.Items)))
	}
	shard, err := h.dbClient.GetShard(c.Request.Context(), req.ShardId)
	if err != nil {
		return nil, err
	}
	if shard.ParentJobId != jobId {
		return nil, customerrors.NewBadRequest(
			fmt.Sprintf("shard %d does not belong to job %d", req.ShardId, jobId))
	}

	now := time.Now().UTC()
	items := make([]*client.CollectedItem, 0, len(req.Items))
	for _, it := range req.Items {
		if strings.TrimSpace(it.SourceItemId) == "" {
			return nil, customerrors.NewBadRequest("sourceItemId is required on every item")
		}
		row := &client.CollectedItem{
			ShardId:      req.ShardId,
			SourceItemId: it.SourceItemId,
			ItemType:     it.ItemType,
			Subject:      dbutils.NullString(it.Subject),
			Sender:       dbutils.NullString(it.Sender),
			Recipients:   dbutils.NullString(it.Recipients),
			CollectedAt:  dbutils.NullTime(now),
			SizeBytes:    it.SizeBytes,
			Sha256:       it.Sha256,
			ArtifactPath: dbutils.NullString(it.ArtifactPath),
			IsSuccessful: it.IsSuccessful == nil || *it.IsSuccessful,
			Error:        dbutils.NullString(it.Error),
		}
		if it.ItemDate != nil {
			row.ItemDate = dbutils.NullTime(*it.ItemDate)
		}
		items = append(items, row)
	}
	inserted, err := h.dbClient.InsertCollectedItems(c.Request.Context(), items)
	if err != nil {
		return nil, err
	}
	return &types.ItemsBatchResponse{Inserted: inserted, Skipped: len(items) - inserted}, nil
}

func (h *Handler) reconcileJob(c *gin.Context) (interface{}, error) {
	if h.reconciler == nil {
		return nil, customerrors.NewInternalError("the reconciler is not configured")
	}
	jobId, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	req := &types.ReconcileJobRequest{}
	if _, err = getBodyFromRequest(c.Request, req); err != nil {
		return nil, err
	}
	job, err := h.dbClient.GetJob(c.Request.Context(), jobId)
	if err != nil {
		return nil, err
	}
	sourcePath := req.SourcePath
	if sourcePath == "" {
		sourcePath = job.SourceManifest.String
	}
	if sourcePath == "" {
		return nil, customerrors.NewBadRequest("no source manifest for this job")
	}
	collectedPath := req.CollectedPath
	if collectedPath == "" {
		collectedPath, err = h.latestManifestCsv(c, jobId)
		if err != nil {
			return nil, err
		}
	}
	return h.reconciler.Run(c.Request.Context(), jobId, sourcePath, collectedPath, job.CustodianEmail)
}

func (h *Handler) latestManifestCsv(c *gin.Context, jobId int64) (string, error) {
	tags := client.GetJobManifestFieldTags()
	manifests, err := h.dbClient.SelectJobManifests(c.Request.Context(),
		sqrl.Eq{client.GetFieldTag(tags, "JobId"): jobId}, 1, 0)
	if err != nil {
		return "", err
	}
	if len(manifests) == 0 || manifests[0].CsvPath.String == "" {
		return "", customerrors.NewNotFoundWithMessage(
			fmt.Sprintf("job %d has no generated manifest to reconcile against", jobId))
	}
	path := filepath.FromSlash(manifests[0].CsvPath.String)
	if root := config.GetArtifactRoot(); root != "" {
		path = filepath.Join(root, path)
	}
	return path, nil
}

func parseListJobQuery(c *gin.Context) (sqrl.Sqlizer, string, string, error) {
	tags := client.GetJobFieldTags()
	query := sqrl.And{}
	if status := c.Query("status"); status != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "Status"): status})
	}
	if custodian := c.Query("custodian"); custodian != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "CustodianEmail"): custodian})
	}
	if jobType := c.Query("jobType"); jobType != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "JobType"): jobType})
	}
	if matter := c.Query("matterId"); matter != "" {
		matterId, err := strconv.ParseInt(matter, 10, 64)
		if err != nil {
			return nil, "", "", customerrors.NewBadRequest("matterId must be an integer")
		}
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "MatterId"): matterId})
	}
	createdTag := client.GetFieldTag(tags, "CreatedAt")
	if after := c.Query("createdAfter"); after != "" {
		ts, err := parseQueryTime(after)
		if err != nil {
			return nil, "", "", err
		}
		query = append(query, sqrl.GtOrEq{createdTag: ts})
	}
	if before := c.Query("createdBefore"); before != "" {
		ts, err := parseQueryTime(before)
		if err != nil {
			return nil, "", "", err
		}
		query = append(query, sqrl.LtOrEq{createdTag: ts})
	}

	sortBy := c.DefaultQuery("sortBy", client.CreatedTime)
	order := strings.ToLower(c.DefaultQuery("order", client.DESC))
	if order != client.ASC && order != client.DESC {
		return nil, "", "", customerrors.NewBadRequest("order must be asc or desc")
	}
	return query, sortBy, order, nil
}

func parseQueryTime(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(timeutil.DateOnly, value); err == nil {
		return ts, nil
	}
	return time.Time{}, customerrors.NewBadRequest(
		fmt.Sprintf("cannot parse time %q, want RFC3339 or %s", value, timeutil.DateOnly))
}

func pathId(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, customerrors.NewBadRequest(fmt.Sprintf("invalid %s %q", name, raw))
	}
	return id, nil
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 500 {
		limit = 500
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
