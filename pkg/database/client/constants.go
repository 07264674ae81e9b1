/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

// table names
const (
	TMatter        = "matter"
	TJob           = "collection_job"
	TShard         = "collection_shard"
	TCheckpoint    = "shard_checkpoint"
	TCollectedItem = "collected_item"
	TJobLog        = "job_log"
	TDeltaCursor   = "delta_cursor"
	TJobManifest   = "job_manifest"
	TQueueMessage  = "queue_message"
)

// job statuses
const (
	JobPending            = "Pending"
	JobPlanning           = "Planning"
	JobRunning            = "Running"
	JobCompleted          = "Completed"
	JobFailed             = "Failed"
	JobPartiallyCompleted = "PartiallyCompleted"
	JobCancelled          = "Cancelled"
)

// shard statuses
const (
	ShardPending            = "Pending"
	ShardAssigned           = "Assigned"
	ShardRunning            = "Running"
	ShardCompleted          = "Completed"
	ShardFailed             = "Failed"
	ShardPartiallyCompleted = "PartiallyCompleted"
	ShardCancelled          = "Cancelled"
	ShardRetrying           = "Retrying"
)

// routes
const (
	RoutePerItemApi   = "PerItemApi"
	RouteBulkPipeline = "BulkPipeline"
	RouteHybrid       = "Hybrid"
)

// job types
const (
	JobTypeEmail      = "Email"
	JobTypeOneDrive   = "OneDrive"
	JobTypeSharePoint = "SharePoint"
	JobTypeTeams      = "Teams"
	JobTypeMixed      = "Mixed"
)

// checkpoint types
const (
	CheckpointMailFolder = "MailFolder"
	CheckpointOneDrive   = "OneDrive"
	CheckpointSharePoint = "SharePoint"
	CheckpointTeams      = "Teams"
	CheckpointBatch      = "Batch"
)

// delta cursor types
const (
	DeltaMail       = "Mail"
	DeltaOneDrive   = "OneDrive"
	DeltaSharePoint = "SharePoint"
	DeltaTeams      = "Teams"
	DeltaCalendar   = "Calendar"
)

// queue message statuses
const (
	MessagePending    = "pending"
	MessageProcessing = "processing"
	MessageCompleted  = "completed"
	MessageFailed     = "failed"
)

// job log levels
const (
	LogInfo  = "INFO"
	LogWarn  = "WARN"
	LogError = "ERROR"
)

// job log categories
const (
	CategoryAutoRouter  = "AutoRouter"
	CategoryPlanner     = "Planner"
	CategoryScheduler   = "Scheduler"
	CategoryCheckpoint  = "Checkpoint"
	CategoryCollector   = "Collector"
	CategoryBackoff     = "BackoffTriggered"
	CategoryManifest    = "Manifest"
	CategoryReconcile   = "Reconcile"
	CategoryLifecycle   = "Lifecycle"
	CategoryDeltaCursor = "DeltaCursor"
)

// IsTerminalJobStatus reports whether status is a terminal job state.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobCompleted, JobFailed, JobPartiallyCompleted, JobCancelled:
		return true
	}
	return false
}

// IsTerminalShardStatus reports whether status is a terminal shard state.
func IsTerminalShardStatus(status string) bool {
	switch status {
	case ShardCompleted, ShardFailed, ShardPartiallyCompleted, ShardCancelled:
		return true
	}
	return false
}

var jobTransitions = map[string][]string{
	JobPending:  {JobPlanning, JobRunning, JobCancelled, JobFailed},
	JobPlanning: {JobRunning, JobCancelled, JobFailed},
	JobRunning:  {JobRunning, JobCompleted, JobFailed, JobPartiallyCompleted, JobCancelled},
}

// CanJobTransition reports whether a job may move from one status to
// another. Terminal states absorb.
func CanJobTransition(from, to string) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var shardTransitions = map[string][]string{
	ShardPending:  {ShardAssigned, ShardCancelled},
	ShardAssigned: {ShardRunning, ShardPending, ShardCancelled, ShardFailed},
	ShardRunning:  {ShardRunning, ShardCompleted, ShardFailed, ShardPartiallyCompleted, ShardCancelled, ShardPending},
	ShardFailed:   {ShardRetrying},
	ShardRetrying: {ShardPending, ShardAssigned, ShardCancelled},
}

// CanShardTransition reports whether a shard may move from one status to
// another.
func CanShardTransition(from, to string) bool {
	for _, next := range shardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
