/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
)

var (
	// ON CONFLICT DO NOTHING makes recollection over the same window
	// idempotent per (shard_id, source_item_id).
	insertItemFormat = `INSERT INTO ` + TCollectedItem +
		` (%s) VALUES (%s) ON CONFLICT (shard_id, source_item_id) DO NOTHING`
)

// InsertCollectedItem persists one artifact record. Returns false when the
// row already existed.
func (c *Client) InsertCollectedItem(ctx context.Context, item *CollectedItem) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	if item.CollectedAt.Time.IsZero() {
		item.CollectedAt = dbutils.NullTime(time.Now().UTC())
	}
	result, err := db.NamedExecContext(ctx, genInsertCommand(*item, insertItemFormat, "id"), item)
	if err != nil {
		klog.ErrorS(err, "failed to insert collected item", "shardId", item.ShardId, "sourceItemId", item.SourceItemId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// InsertCollectedItems ingests a batch; duplicates are skipped silently.
// Returns the number of rows actually inserted.
func (c *Client) InsertCollectedItems(ctx context.Context, items []*CollectedItem) (int, error) {
	inserted := 0
	for _, item := range items {
		ok, err := c.InsertCollectedItem(ctx, item)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func (c *Client) SelectCollectedItems(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*CollectedItem, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		if limit, err = c.CountCollectedItems(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TCollectedItem).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var items []*CollectedItem
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &items, sql, args...)
	return items, err
}

func (c *Client) CountCollectedItems(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TCollectedItem).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) SumCollectedBytes(ctx context.Context, query sqrl.Sqlizer) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COALESCE(SUM(size_bytes),0)").PlaceholderFormat(sqrl.Dollar).
		From(TCollectedItem).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	err = db.GetContext(ctx, &total, sql, args...)
	return total, err
}
