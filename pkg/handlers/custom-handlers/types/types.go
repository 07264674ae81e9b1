/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

import (
	"time"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
)

// route parameter names
const (
	Id    = "id"
	JobId = "job_id"
)

// MaxItemsBatch bounds one custody-record batch insert.
const MaxItemsBatch = 100

type CreateMatterRequest struct {
	Name       string `json:"name"`
	CaseNumber string `json:"caseNumber"`
	CreatedBy  string `json:"createdBy"`
}

type CreateMatterResponse struct {
	MatterId int64 `json:"matterId"`
}

type MatterListResponse struct {
	TotalCount int              `json:"totalCount"`
	Items      []*client.Matter `json:"items"`
}

type CreateJobResponse struct {
	JobId          int64  `json:"jobId"`
	Route          string `json:"route"`
	RouteReason    string `json:"routeReason"`
	EstimatedBytes int64  `json:"estimatedBytes"`
	EstimatedItems int64  `json:"estimatedItems"`
}

type StartJobResponse struct {
	JobId       int64 `json:"jobId"`
	TotalShards int   `json:"totalShards"`
}

type JobListResponse struct {
	TotalCount int           `json:"totalCount"`
	Items      []*client.Job `json:"items"`
}

type ShardListResponse struct {
	TotalCount int             `json:"totalCount"`
	Items      []*client.Shard `json:"items"`
}

type CheckpointListResponse struct {
	Items []*client.Checkpoint `json:"items"`
}

type CompleteJobRequest struct {
	Status      string `json:"status"`
	ActualBytes int64  `json:"actualBytes"`
	ActualItems int64  `json:"actualItems"`
	Error       string `json:"error"`
}

type CollectedItemRequest struct {
	SourceItemId string     `json:"sourceItemId"`
	ItemType     string     `json:"itemType"`
	Subject      string     `json:"subject"`
	Sender       string     `json:"sender"`
	Recipients   string     `json:"recipients"`
	ItemDate     *time.Time `json:"itemDate,omitempty"`
	SizeBytes    int64      `json:"sizeBytes"`
	Sha256       string     `json:"sha256"`
	ArtifactPath string     `json:"artifactPath"`
	IsSuccessful *bool      `json:"isSuccessful,omitempty"`
	Error        string     `json:"error"`
}

type ItemsBatchRequest struct {
	ShardId int64                   `json:"shardId"`
	Items   []*CollectedItemRequest `json:"items"`
}

type ItemsBatchResponse struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

type ReconcileJobRequest struct {
	SourcePath    string `json:"sourcePath"`
	CollectedPath string `json:"collectedPath,omitempty"`
}

type NextShardRequest struct {
	WorkerId string `json:"workerId"`
}

type ShardProgressRequest struct {
	WorkerId    string  `json:"workerId"`
	LeaseToken  string  `json:"leaseToken"`
	ItemsDelta  int64   `json:"itemsDelta"`
	BytesDelta  int64   `json:"bytesDelta"`
	ProgressPct float64 `json:"progressPct"`
}

type CompleteShardRequest struct {
	WorkerId     string `json:"workerId"`
	LeaseToken   string `json:"leaseToken"`
	Status       string `json:"status"`
	ActualBytes  int64  `json:"actualBytes"`
	ActualItems  int64  `json:"actualItems"`
	ManifestHash string `json:"manifestHash"`
	Error        string `json:"error"`
}

type ReleaseShardRequest struct {
	WorkerId   string `json:"workerId"`
	LeaseToken string `json:"leaseToken"`
}

type RetryShardRequest struct {
	Reason string `json:"reason"`
}

type CleanupLocksResponse struct {
	ShardsReaped    int `json:"shardsReaped"`
	MessagesTimeout int `json:"messagesTimeout"`
}

type ManifestListResponse struct {
	Items []*client.JobManifest `json:"items"`
}
