/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
)

const apiRootPath = "/api/v1/"

func InitCustomRouters(e *gin.Engine, h *Handler) {
	group := e.Group(apiRootPath)
	{
		group.POST("matters", h.CreateMatter)
		group.GET("matters", h.ListMatter)
		group.GET(fmt.Sprintf("matters/:%s", types.Id), h.GetMatter)

		group.POST("jobs", h.CreateJob)
		group.GET("jobs", h.ListJob)
		group.GET(fmt.Sprintf("jobs/:%s", types.Id), h.GetJob)
		group.POST(fmt.Sprintf("jobs/:%s/start", types.Id), h.StartJob)
		group.POST(fmt.Sprintf("jobs/:%s/complete", types.Id), h.CompleteJob)
		group.POST(fmt.Sprintf("jobs/:%s/cancel", types.Id), h.CancelJob)
		group.POST(fmt.Sprintf("jobs/:%s/items", types.Id), h.InsertJobItems)
		group.POST(fmt.Sprintf("jobs/:%s/reconcile", types.Id), h.ReconcileJob)
		group.GET(fmt.Sprintf("jobs/:%s/shards", types.Id), h.ListJobShards)

		group.GET(fmt.Sprintf("shards/:%s/checkpoints", types.Id), h.ListShardCheckpoints)

		group.POST("sharded-jobs", h.CreateShardedJob)
		group.POST("sharded-jobs/shards/next", h.NextShard)
		group.PUT(fmt.Sprintf("sharded-jobs/shards/:%s/progress", types.Id), h.ShardProgress)
		group.PUT(fmt.Sprintf("sharded-jobs/shards/:%s/complete", types.Id), h.ShardComplete)
		group.POST(fmt.Sprintf("sharded-jobs/shards/:%s/release", types.Id), h.ShardRelease)
		group.POST(fmt.Sprintf("sharded-jobs/shards/:%s/retry", types.Id), h.ShardRetry)
		group.POST("sharded-jobs/maintenance/cleanup-locks", h.CleanupLocks)

		group.POST(fmt.Sprintf("custody/manifest/generate/:%s", types.JobId), h.GenerateManifest)
		group.POST(fmt.Sprintf("custody/manifest/seal/:%s", types.Id), h.SealManifest)
		group.POST(fmt.Sprintf("custody/manifest/verify/:%s", types.Id), h.VerifyManifest)
		group.GET(fmt.Sprintf("custody/manifest/:%s", types.Id), h.GetManifest)
		group.GET(fmt.Sprintf("custody/manifest/:%s/download", types.Id), h.DownloadManifest)
		group.GET(fmt.Sprintf("custody/job/:%s/manifests", types.JobId), h.ListJobManifests)
	}
}
