/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
)

type Interface interface {
	MatterInterface
	JobInterface
	ShardInterface
	CheckpointInterface
	CollectedItemInterface
	JobLogInterface
	DeltaCursorInterface
	JobManifestInterface
	QueueMessageInterface
}

type MatterInterface interface {
	InsertMatter(ctx context.Context, matter *Matter) (int64, error)
	GetMatter(ctx context.Context, id int64) (*Matter, error)
	GetMatterByCaseNumber(ctx context.Context, caseNumber string) (*Matter, error)
	SelectMatters(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Matter, error)
	CountMatters(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SetMatterActive(ctx context.Context, id int64, active bool) error
}

type JobInterface interface {
	InsertJob(ctx context.Context, job *Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*Job, error)
	SelectJobs(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*Job, error)
	CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SetJobStatus(ctx context.Context, id int64, from, to string) error
	SetJobStarted(ctx context.Context, id int64) error
	SetJobEnded(ctx context.Context, id int64, status, errMsg string) error
	SetJobActuals(ctx context.Context, id int64, actualBytes, actualItems int64) error
	SetJobManifestHash(ctx context.Context, id int64, hash string) error
}

type ShardInterface interface {
	InsertShardsWithJob(ctx context.Context, job *Job, shards []*Shard) error
	GetShard(ctx context.Context, id int64) (*Shard, error)
	SelectShards(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Shard, error)
	CountShards(ctx context.Context, query sqrl.Sqlizer) (int, error)
	ClaimNextShard(ctx context.Context, workerId, leaseToken string, leaseDuration time.Duration) (*Shard, error)
	ExtendShardLease(ctx context.Context, shardId int64, workerId, leaseToken string, until time.Time) (bool, error)
	ReleaseShardLease(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error)
	CompleteShard(ctx context.Context, shardId int64, workerId, leaseToken string, summary *ShardSummary) (bool, error)
	RetryShard(ctx context.Context, shardId int64, reason string) (bool, error)
	ReapExpiredShards(ctx context.Context, now time.Time) (int, error)
	UpdateShardProgress(ctx context.Context, shardId int64, workerId, leaseToken string, itemsDelta, bytesDelta int64, progressPct float64) (bool, error)
	CancelShardsOfJob(ctx context.Context, jobId int64) (int, error)
	SetShardRunning(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error)
}

type CheckpointInterface interface {
	InsertCheckpoint(ctx context.Context, cp *Checkpoint) (int64, error)
	GetCheckpoint(ctx context.Context, id int64) (*Checkpoint, error)
	SelectCheckpoints(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Checkpoint, error)
	UpdateCheckpointPayload(ctx context.Context, id int64, payload []byte) (bool, error)
	CompleteCheckpoint(ctx context.Context, id int64, itemsProcessed, bytesProcessed int64, completedAt time.Time) (bool, error)
}

type CollectedItemInterface interface {
	InsertCollectedItem(ctx context.Context, item *CollectedItem) (bool, error)
	InsertCollectedItems(ctx context.Context, items []*CollectedItem) (int, error)
	SelectCollectedItems(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*CollectedItem, error)
	CountCollectedItems(ctx context.Context, query sqrl.Sqlizer) (int, error)
	SumCollectedBytes(ctx context.Context, query sqrl.Sqlizer) (int64, error)
}

type JobLogInterface interface {
	AppendJobLog(ctx context.Context, log *JobLog) error
	SelectJobLogs(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*JobLog, error)
}

type DeltaCursorInterface interface {
	UpsertDeltaCursor(ctx context.Context, cursor *DeltaCursor) error
	GetDeltaCursor(ctx context.Context, scopeId string) (*DeltaCursor, error)
	SelectDeltaCursors(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*DeltaCursor, error)
	DeactivateStaleCursors(ctx context.Context, olderThan time.Time, maxFailures int) (int, error)
}

type JobManifestInterface interface {
	InsertJobManifest(ctx context.Context, manifest *JobManifest) error
	GetJobManifest(ctx context.Context, manifestId string) (*JobManifest, error)
	SelectJobManifests(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*JobManifest, error)
	SetManifestSealed(ctx context.Context, manifestId, sealedPath string, sealedAt time.Time) (bool, error)
	SetManifestVerifyState(ctx context.Context, manifestId, state string, verifiedAt time.Time) error
}

type QueueMessageInterface interface {
	PublishMessage(ctx context.Context, msg *QueueMessage) error
	GetMessage(ctx context.Context, messageId string) (*QueueMessage, error)
	ClaimMessage(ctx context.Context, topics []string, consumerId string, processTimeout time.Duration) (*QueueMessage, error)
	CompleteMessage(ctx context.Context, messageId string) error
	FailMessage(ctx context.Context, messageId, errMsg string) error
	SelectMessages(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*QueueMessage, error)
	HandleMessageTimeouts(ctx context.Context, now time.Time) (int, error)
	CleanupMessages(ctx context.Context, olderThan time.Duration) (int, error)
}
