/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

var (
	insertCheckpointFormat = `INSERT INTO ` + TCheckpoint + ` (%s) VALUES (%s) RETURNING id`
)

func (c *Client) InsertCheckpoint(ctx context.Context, cp *Checkpoint) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	if cp.CreatedAt.Time.IsZero() {
		cp.CreatedAt = dbutils.NullTime(time.Now().UTC())
	}
	rows, err := db.NamedQueryContext(ctx, genInsertCommand(*cp, insertCheckpointFormat, "id"), cp)
	if err != nil {
		if dbutils.IsUniqueViolation(err) {
			return 0, customerrors.NewAlreadyExist(
				fmt.Sprintf("checkpoint %s already exists in shard %d", cp.CheckpointKey, cp.ShardId))
		}
		klog.ErrorS(err, "failed to insert checkpoint", "shardId", cp.ShardId, "key", cp.CheckpointKey)
		return 0, err
	}
	defer rows.Close()
	var id int64
	if rows.Next() {
		if err = rows.Scan(&id); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (c *Client) GetCheckpoint(ctx context.Context, id int64) (*Checkpoint, error) {
	dbTags := GetCheckpointFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "Id"): id}
	cps, err := c.SelectCheckpoints(ctx, query, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, customerrors.NewNotFound(customerrors.CheckpointKind, fmt.Sprintf("%d", id))
	}
	return cps[0], nil
}

func (c *Client) SelectCheckpoints(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Checkpoint, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 100000
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TCheckpoint).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var cps []*Checkpoint
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &cps, sql, args...)
	return cps, err
}

// UpdateCheckpointPayload replaces the payload of a non-completed
// checkpoint. Completed rows are immutable; the predicate enforces it.
func (c *Client) UpdateCheckpointPayload(ctx context.Context, id int64, payload []byte) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET payload=$1 WHERE id=$2 AND is_completed=false`, TCheckpoint)
	result, err := db.ExecContext(ctx, cmd, payload, id)
	if err != nil {
		klog.ErrorS(err, "failed to update checkpoint", "id", id)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// CompleteCheckpoint finalizes a checkpoint. Idempotent: a second call on
// a completed row affects nothing and reports success.
func (c *Client) CompleteCheckpoint(ctx context.Context, id int64, itemsProcessed, bytesProcessed int64, completedAt time.Time) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET is_completed=true, completed_at=$1,
		items_processed=$2, bytes_processed=$3 WHERE id=$4 AND is_completed=false`, TCheckpoint)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(completedAt), itemsProcessed, bytesProcessed, id)
	if err != nil {
		klog.ErrorS(err, "failed to complete checkpoint", "id", id)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
