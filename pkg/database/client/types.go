/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

const (
	DESC = "desc"
	ASC  = "asc"

	CreatedTime = "created_at"
)

// Matter is an investigation container. Jobs always belong to a matter.
type Matter struct {
	Id         int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Name       string         `db:"name" gorm:"column:name;size:256;not null"`
	CaseNumber string         `db:"case_number" gorm:"column:case_number;size:128;uniqueIndex;not null"`
	CreatedAt  pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	CreatedBy  sql.NullString `db:"created_by" gorm:"column:created_by;size:256"`
	IsActive   bool           `db:"is_active" gorm:"column:is_active;default:true"`
}

func (*Matter) TableName() string {
	return TMatter
}

// GetMatterFieldTags returns the MatterFieldTags value.
func GetMatterFieldTags() map[string]string {
	m := Matter{}
	return getFieldTags(m)
}

// Job is one collection request against a single custodian.
type Job struct {
	Id             int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MatterId       int64          `db:"matter_id" gorm:"column:matter_id;index;not null"`
	CustodianEmail string         `db:"custodian_email" gorm:"column:custodian_email;size:320;not null"`
	JobType        string         `db:"job_type" gorm:"column:job_type;size:32;not null"`
	Status         string         `db:"status" gorm:"column:status;size:32;not null;default:'Pending'"`
	Route          sql.NullString `db:"route" gorm:"column:route;size:32"`
	RouteReason    sql.NullString `db:"route_reason" gorm:"column:route_reason;size:512"`
	Priority       int            `db:"priority" gorm:"column:priority;default:5"`
	StartDate      pq.NullTime    `db:"start_date" gorm:"column:start_date"`
	EndDate        pq.NullTime    `db:"end_date" gorm:"column:end_date"`
	CreatedAt      pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	StartedAt      pq.NullTime    `db:"started_at" gorm:"column:started_at"`
	EndedAt        pq.NullTime    `db:"ended_at" gorm:"column:ended_at"`
	EstimatedBytes int64          `db:"estimated_bytes" gorm:"column:estimated_bytes;default:0"`
	EstimatedItems int64          `db:"estimated_items" gorm:"column:estimated_items;default:0"`
	ActualBytes    int64          `db:"actual_bytes" gorm:"column:actual_bytes;default:0"`
	ActualItems    int64          `db:"actual_items" gorm:"column:actual_items;default:0"`
	OutputPrefix   sql.NullString `db:"output_prefix" gorm:"column:output_prefix;size:1024"`
	ManifestHash   sql.NullString `db:"manifest_hash" gorm:"column:manifest_hash;size:64"`
	SourceManifest sql.NullString `db:"source_manifest" gorm:"column:source_manifest;size:1024"`
	Error          sql.NullString `db:"error" gorm:"column:error;size:2048"`
}

func (*Job) TableName() string {
	return TJob
}

// GetJobFieldTags returns the JobFieldTags value.
func GetJobFieldTags() map[string]string {
	j := Job{}
	return getFieldTags(j)
}

// Shard is an independently restartable slice of a job, bounded by one
// custodian and one date window. The lease triple (worker, token, expiry)
// is either fully null or fully set.
type Shard struct {
	Id              int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ParentJobId     int64          `db:"parent_job_id" gorm:"column:parent_job_id;index;not null"`
	ShardIndex      int            `db:"shard_index" gorm:"column:shard_index;not null"`
	TotalShards     int            `db:"total_shards" gorm:"column:total_shards;not null"`
	ShardIdentifier string         `db:"shard_identifier" gorm:"column:shard_identifier;size:512;uniqueIndex;not null"`
	CustodianEmail  string         `db:"custodian_email" gorm:"column:custodian_email;size:320;not null"`
	StartDate       pq.NullTime    `db:"start_date" gorm:"column:start_date;not null"`
	EndDate         pq.NullTime    `db:"end_date" gorm:"column:end_date;not null"`
	JobType         string         `db:"job_type" gorm:"column:job_type;size:32;not null"`
	Route           string         `db:"route" gorm:"column:route;size:32;not null"`
	Status          string         `db:"status" gorm:"column:status;size:32;not null;default:'Pending'"`
	Priority        int            `db:"priority" gorm:"column:priority;default:5"`
	AssignedWorker  sql.NullString `db:"assigned_worker_id" gorm:"column:assigned_worker_id;size:256"`
	LeaseToken      sql.NullString `db:"lease_token" gorm:"column:lease_token;size:64"`
	LeaseExpiresAt  pq.NullTime    `db:"lease_expires_at" gorm:"column:lease_expires_at;index"`
	CreatedAt       pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	StartedAt       pq.NullTime    `db:"started_at" gorm:"column:started_at"`
	EndedAt         pq.NullTime    `db:"ended_at" gorm:"column:ended_at"`
	EstimatedBytes  int64          `db:"estimated_bytes" gorm:"column:estimated_bytes;default:0"`
	EstimatedItems  int64          `db:"estimated_items" gorm:"column:estimated_items;default:0"`
	ActualBytes     int64          `db:"actual_bytes" gorm:"column:actual_bytes;default:0"`
	ActualItems     int64          `db:"actual_items" gorm:"column:actual_items;default:0"`
	ProcessedBytes  int64          `db:"processed_bytes" gorm:"column:processed_bytes;default:0"`
	ProcessedItems  int64          `db:"processed_items" gorm:"column:processed_items;default:0"`
	ProgressPct     float64        `db:"progress_pct" gorm:"column:progress_pct;default:0"`
	RetryCount      int            `db:"retry_count" gorm:"column:retry_count;default:0"`
	MaxRetries      int            `db:"max_retries" gorm:"column:max_retries;default:3"`
	OutputPrefix    sql.NullString `db:"output_prefix" gorm:"column:output_prefix;size:1024"`
	ManifestHash    sql.NullString `db:"manifest_hash" gorm:"column:manifest_hash;size:64"`
	Error           sql.NullString `db:"error" gorm:"column:error;size:2048"`
	Version         int64          `db:"version" gorm:"column:version;default:0"`
}

func (*Shard) TableName() string {
	return TShard
}

// GetShardFieldTags returns the ShardFieldTags value.
func GetShardFieldTags() map[string]string {
	s := Shard{}
	return getFieldTags(s)
}

// Checkpoint is a progress marker inside a shard. Completed rows are
// immutable.
type Checkpoint struct {
	Id             int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ShardId        int64          `db:"shard_id" gorm:"column:shard_id;uniqueIndex:idx_shard_key;not null"`
	CheckpointType string         `db:"checkpoint_type" gorm:"column:checkpoint_type;size:32;not null"`
	CheckpointKey  string         `db:"checkpoint_key" gorm:"column:checkpoint_key;size:512;uniqueIndex:idx_shard_key;not null"`
	Payload        []byte         `db:"payload" gorm:"column:payload;type:jsonb"`
	CreatedAt      pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	CompletedAt    pq.NullTime    `db:"completed_at" gorm:"column:completed_at"`
	IsCompleted    bool           `db:"is_completed" gorm:"column:is_completed;default:false"`
	ItemsProcessed int64          `db:"items_processed" gorm:"column:items_processed;default:0"`
	BytesProcessed int64          `db:"bytes_processed" gorm:"column:bytes_processed;default:0"`
	CorrelationId  sql.NullString `db:"correlation_id" gorm:"column:correlation_id;size:64"`
}

func (*Checkpoint) TableName() string {
	return TCheckpoint
}

// GetCheckpointFieldTags returns the CheckpointFieldTags value.
func GetCheckpointFieldTags() map[string]string {
	c := Checkpoint{}
	return getFieldTags(c)
}

// CollectedItem is one collected artifact. (shard_id, source_item_id) is
// unique so recollection over the same window is idempotent.
type CollectedItem struct {
	Id           int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ShardId      int64          `db:"shard_id" gorm:"column:shard_id;uniqueIndex:idx_shard_source;not null"`
	SourceItemId string         `db:"source_item_id" gorm:"column:source_item_id;size:512;uniqueIndex:idx_shard_source;not null"`
	ItemType     string         `db:"item_type" gorm:"column:item_type;size:64"`
	Subject      sql.NullString `db:"subject" gorm:"column:subject;size:1024"`
	Sender       sql.NullString `db:"sender" gorm:"column:sender;size:320"`
	Recipients   sql.NullString `db:"recipients" gorm:"column:recipients;size:4096"`
	ItemDate     pq.NullTime    `db:"item_date" gorm:"column:item_date"`
	CollectedAt  pq.NullTime    `db:"collected_at" gorm:"column:collected_at"`
	SizeBytes    int64          `db:"size_bytes" gorm:"column:size_bytes;default:0"`
	Sha256       string         `db:"sha256" gorm:"column:sha256;size:64"`
	ArtifactPath sql.NullString `db:"artifact_path" gorm:"column:artifact_path;size:1024"`
	IsSuccessful bool           `db:"is_successful" gorm:"column:is_successful;default:true"`
	Error        sql.NullString `db:"error" gorm:"column:error;size:2048"`
}

func (*CollectedItem) TableName() string {
	return TCollectedItem
}

// GetCollectedItemFieldTags returns the CollectedItemFieldTags value.
func GetCollectedItemFieldTags() map[string]string {
	i := CollectedItem{}
	return getFieldTags(i)
}

// JobLog is an append-only audit entry keyed by job.
type JobLog struct {
	Id            int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	JobId         int64          `db:"job_id" gorm:"column:job_id;index;not null"`
	Ts            pq.NullTime    `db:"ts" gorm:"column:ts"`
	Level         string         `db:"level" gorm:"column:level;size:16"`
	Category      string         `db:"category" gorm:"column:category;size:64"`
	Message       string         `db:"message" gorm:"column:message;size:4096"`
	Details       sql.NullString `db:"details" gorm:"column:details;type:jsonb"`
	CorrelationId sql.NullString `db:"correlation_id" gorm:"column:correlation_id;size:64"`
}

func (*JobLog) TableName() string {
	return TJobLog
}

// GetJobLogFieldTags returns the JobLogFieldTags value.
func GetJobLogFieldTags() map[string]string {
	l := JobLog{}
	return getFieldTags(l)
}

// DeltaCursor is an incremental-collection bookmark keyed by
// (custodian, delta_type). Cursors outlive jobs.
type DeltaCursor struct {
	Id                  int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ScopeId             string         `db:"scope_id" gorm:"column:scope_id;size:512;uniqueIndex;not null"`
	DeltaType           string         `db:"delta_type" gorm:"column:delta_type;size:32;not null"`
	CustodianEmail      string         `db:"custodian_email" gorm:"column:custodian_email;size:320;not null"`
	DeltaToken          string         `db:"delta_token" gorm:"column:delta_token;size:2048"`
	LastDeltaAt         pq.NullTime    `db:"last_delta_at" gorm:"column:last_delta_at"`
	BaselineCompletedAt pq.NullTime    `db:"baseline_completed_at" gorm:"column:baseline_completed_at"`
	LastDeltaItems      int64          `db:"last_delta_items" gorm:"column:last_delta_items;default:0"`
	LastDeltaBytes      int64          `db:"last_delta_bytes" gorm:"column:last_delta_bytes;default:0"`
	DeltaQueryCount     int64          `db:"delta_query_count" gorm:"column:delta_query_count;default:0"`
	FailureCount        int            `db:"failure_count" gorm:"column:failure_count;default:0"`
	IsActive            bool           `db:"is_active" gorm:"column:is_active;default:true"`
	Error               sql.NullString `db:"error" gorm:"column:error;size:2048"`
}

func (*DeltaCursor) TableName() string {
	return TDeltaCursor
}

// GetDeltaCursorFieldTags returns the DeltaCursorFieldTags value.
func GetDeltaCursorFieldTags() map[string]string {
	d := DeltaCursor{}
	return getFieldTags(d)
}

// JobManifest records a generated chain-of-custody manifest and its seal
// and verification state.
type JobManifest struct {
	Id             int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ManifestId     string         `db:"manifest_id" gorm:"column:manifest_id;size:64;uniqueIndex;not null"`
	JobId          int64          `db:"job_id" gorm:"column:job_id;index;not null"`
	MatterId       int64          `db:"matter_id" gorm:"column:matter_id;not null"`
	Custodian      string         `db:"custodian" gorm:"column:custodian;size:320"`
	ItemsHash      string         `db:"items_hash" gorm:"column:items_hash;size:64"`
	ManifestHash   string         `db:"manifest_hash" gorm:"column:manifest_hash;size:64"`
	Signature      sql.NullString `db:"signature" gorm:"column:signature;size:1024"`
	JsonPath       string         `db:"json_path" gorm:"column:json_path;size:1024"`
	CsvPath        sql.NullString `db:"csv_path" gorm:"column:csv_path;size:1024"`
	SealedPath     sql.NullString `db:"sealed_path" gorm:"column:sealed_path;size:1024"`
	IsSealed       bool           `db:"is_sealed" gorm:"column:is_sealed;default:false"`
	WormCompliant  bool           `db:"worm_compliant" gorm:"column:worm_compliant;default:false"`
	TotalItems     int64          `db:"total_items" gorm:"column:total_items;default:0"`
	TotalBytes     int64          `db:"total_bytes" gorm:"column:total_bytes;default:0"`
	CreatedAt      pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	SealedAt       pq.NullTime    `db:"sealed_at" gorm:"column:sealed_at"`
	VerifyState    sql.NullString `db:"verify_state" gorm:"column:verify_state;size:32"`
	LastVerifiedAt pq.NullTime    `db:"last_verified_at" gorm:"column:last_verified_at"`
}

func (*JobManifest) TableName() string {
	return TJobManifest
}

// GetJobManifestFieldTags returns the JobManifestFieldTags value.
func GetJobManifestFieldTags() map[string]string {
	m := JobManifest{}
	return getFieldTags(m)
}

// QueueMessage is one row of the postgres message queue the bulk pipeline
// rides on. Claims go through SELECT FOR UPDATE SKIP LOCKED.
type QueueMessage struct {
	Id          int64          `db:"id" gorm:"column:id;primaryKey;autoIncrement"`
	MessageId   string         `db:"message_id" gorm:"column:message_id;size:64;uniqueIndex;not null"`
	Topic       string         `db:"topic" gorm:"column:topic;size:128;index;not null"`
	Status      string         `db:"status" gorm:"column:status;size:32;not null;default:'pending'"`
	Priority    int            `db:"priority" gorm:"column:priority;default:0"`
	Payload     []byte         `db:"payload" gorm:"column:payload;type:jsonb;not null"`
	ConsumerId  sql.NullString `db:"consumer_id" gorm:"column:consumer_id;size:256"`
	Error       sql.NullString `db:"error" gorm:"column:error;size:2048"`
	RetryCount  int            `db:"retry_count" gorm:"column:retry_count;default:0"`
	MaxRetries  int            `db:"max_retries" gorm:"column:max_retries;default:5"`
	CreatedAt   pq.NullTime    `db:"created_at" gorm:"column:created_at"`
	ClaimedAt   pq.NullTime    `db:"claimed_at" gorm:"column:claimed_at"`
	CompletedAt pq.NullTime    `db:"completed_at" gorm:"column:completed_at"`
	TimeoutAt   pq.NullTime    `db:"timeout_at" gorm:"column:timeout_at"`
}

func (*QueueMessage) TableName() string {
	return TQueueMessage
}

// GetQueueMessageFieldTags returns the QueueMessageFieldTags value.
func GetQueueMessageFieldTags() map[string]string {
	q := QueueMessage{}
	return getFieldTags(q)
}

// getFieldTags retrieves FieldTags for internal use.
func getFieldTags(obj interface{}) map[string]string {
	result := make(map[string]string)
	t := reflect.TypeOf(obj)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		result[strings.ToLower(field.Name)] = field.Tag.Get("db")
	}
	return result
}

// genInsertCommand generates an INSERT command using reflection over db
// struct tags, skipping the field carrying ignoreTag.
func genInsertCommand(obj interface{}, format, ignoreTag string) string {
	t := reflect.TypeOf(obj)
	columns := make([]string, 0, t.NumField())
	values := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == ignoreTag {
			continue
		}
		columns = append(columns, tag)
		values = append(values, fmt.Sprintf(":%s", tag))
	}
	cmd := fmt.Sprintf(format, strings.Join(columns, ", "), strings.Join(values, ", "))
	return cmd
}

// GetFieldTag returns the FieldTag value.
func GetFieldTag(tags map[string]string, name string) string {
	name = strings.ToLower(name)
	return tags[name]
}
