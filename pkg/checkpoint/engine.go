/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package checkpoint persists fine-grained per-shard progress so an
// interrupted shard resumes without recollecting items.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// Store is the slice of the metadata client the engine needs.
type Store interface {
	InsertCheckpoint(ctx context.Context, cp *client.Checkpoint) (int64, error)
	GetCheckpoint(ctx context.Context, id int64) (*client.Checkpoint, error)
	SelectCheckpoints(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*client.Checkpoint, error)
	UpdateCheckpointPayload(ctx context.Context, id int64, payload []byte) (bool, error)
	CompleteCheckpoint(ctx context.Context, id int64, itemsProcessed, bytesProcessed int64, completedAt time.Time) (bool, error)
}

// ValidationResult reports whether a shard's checkpoints form a usable
// resume position.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Create records a new checkpoint. The payload must decode under the
// schema of checkpointType; (shard, key) conflicts are rejected.
func (e *Engine) Create(ctx context.Context, shardId int64, checkpointType, key string, payload interface{}, correlationId string) (*client.Checkpoint, error) {
	raw := json.MarshalSilently(payload)
	if _, err := ParsePayload(checkpointType, raw); err != nil {
		return nil, customerrors.NewBadRequest(
			fmt.Sprintf("payload does not match checkpoint type %s: %v", checkpointType, err))
	}
	cp := &client.Checkpoint{
		ShardId:        shardId,
		CheckpointType: checkpointType,
		CheckpointKey:  key,
		Payload:        raw,
		CreatedAt:      dbutils.NullTime(time.Now().UTC()),
		CorrelationId:  dbutils.NullString(correlationId),
	}
	id, err := e.store.InsertCheckpoint(ctx, cp)
	if err != nil {
		return nil, err
	}
	cp.Id = id
	metrics.CheckpointWrites.Inc()
	return cp, nil
}

// Update shallow-merges delta onto the stored payload. Completed rows are
// immutable.
func (e *Engine) Update(ctx context.Context, id int64, delta []byte) (*client.Checkpoint, error) {
	cp, err := e.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.IsCompleted {
		return nil, customerrors.NewCheckpointCompleted(id)
	}
	merged, err := json.ShallowMerge(cp.Payload, delta)
	if err != nil {
		return nil, customerrors.NewBadRequest(fmt.Sprintf("bad checkpoint delta: %v", err))
	}
	if _, err = ParsePayload(cp.CheckpointType, merged); err != nil {
		return nil, customerrors.NewBadRequest(
			fmt.Sprintf("merged payload does not match checkpoint type %s: %v", cp.CheckpointType, err))
	}
	ok, err := e.store.UpdateCheckpointPayload(ctx, id, merged)
	if err != nil {
		return nil, err
	}
	if !ok {
		// completed between the read and the write
		return nil, customerrors.NewCheckpointCompleted(id)
	}
	cp.Payload = merged
	metrics.CheckpointWrites.Inc()
	return cp, nil
}

// Complete finalizes a checkpoint. Idempotent: completing an already
// completed row is a no-op.
func (e *Engine) Complete(ctx context.Context, id int64, itemsProcessed, bytesProcessed int64) error {
	ok, err := e.store.CompleteCheckpoint(ctx, id, itemsProcessed, bytesProcessed, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		// either missing or already completed; only the former is an error
		if _, err = e.store.GetCheckpoint(ctx, id); err != nil {
			return err
		}
		return nil
	}
	metrics.CheckpointWrites.Inc()
	return nil
}

// ResumeSet returns the non-completed checkpoints of a shard in creation
// order. Drivers treat each payload as the authoritative start position.
func (e *Engine) ResumeSet(ctx context.Context, shardId int64) ([]*client.Checkpoint, error) {
	dbTags := client.GetCheckpointFieldTags()
	query := sqrl.And{
		sqrl.Eq{client.GetFieldTag(dbTags, "ShardId"): shardId},
		sqrl.Eq{client.GetFieldTag(dbTags, "IsCompleted"): false},
	}
	return e.store.SelectCheckpoints(ctx, query, []string{"created_at asc"}, -1, 0)
}

// CompletedItems sums items already counted by completed checkpoints; the
// resume contract says those are never re-emitted.
func (e *Engine) CompletedItems(ctx context.Context, shardId int64) (int64, int64, error) {
	dbTags := client.GetCheckpointFieldTags()
	query := sqrl.And{
		sqrl.Eq{client.GetFieldTag(dbTags, "ShardId"): shardId},
		sqrl.Eq{client.GetFieldTag(dbTags, "IsCompleted"): true},
	}
	cps, err := e.store.SelectCheckpoints(ctx, query, []string{"created_at asc"}, -1, 0)
	if err != nil {
		return 0, 0, err
	}
	var items, bytes int64
	for _, cp := range cps {
		items += cp.ItemsProcessed
		bytes += cp.BytesProcessed
	}
	return items, bytes, nil
}

// Validate checks every checkpoint of the shard: payloads must decode for
// their tag and processed counts must stay within what the payload
// declares. A failed validation means the shard restarts from scratch.
func (e *Engine) Validate(ctx context.Context, shardId int64) (*ValidationResult, error) {
	dbTags := client.GetCheckpointFieldTags()
	query := sqrl.Eq{client.GetFieldTag(dbTags, "ShardId"): shardId}
	cps, err := e.store.SelectCheckpoints(ctx, query, []string{"created_at asc"}, -1, 0)
	if err != nil {
		return nil, err
	}
	result := &ValidationResult{Valid: true}
	for _, cp := range cps {
		payload, err := ParsePayload(cp.CheckpointType, cp.Payload)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("checkpoint %s: payload does not parse as %s: %v", cp.CheckpointKey, cp.CheckpointType, err))
			continue
		}
		if cp.ItemsProcessed < 0 || cp.BytesProcessed < 0 {
			result.Errors = append(result.Errors,
				fmt.Sprintf("checkpoint %s: negative processed counters", cp.CheckpointKey))
		}
		if declared := declaredItems(payload); declared > 0 && cp.ItemsProcessed > declared {
			result.Errors = append(result.Errors,
				fmt.Sprintf("checkpoint %s: processed %d items, payload declares %d",
					cp.CheckpointKey, cp.ItemsProcessed, declared))
		}
		if cp.IsCompleted && cp.CompletedAt.Time.IsZero() {
			result.Errors = append(result.Errors,
				fmt.Sprintf("checkpoint %s: completed without a completion time", cp.CheckpointKey))
		}
	}
	if len(result.Errors) > 0 {
		result.Valid = false
		klog.Warningf("shard %d failed checkpoint validation with %d errors", shardId, len(result.Errors))
	}
	return result, nil
}
