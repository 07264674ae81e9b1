/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"k8s.io/klog/v2"

	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

// ShardSummary carries the terminal outcome a worker reports on complete.
type ShardSummary struct {
	Status       string
	ActualBytes  int64
	ActualItems  int64
	ManifestHash string
	Error        string
}

// InsertShardsWithJob persists the planned shards and flips the parent job
// to Running in one transaction, so a crash between the two never leaves a
// running job without its plan.
func (c *Client) InsertShardsWithJob(ctx context.Context, job *Job, shards []*Shard) error {
	if c.gorm == nil {
		return customerrors.NewInternalError("The client of db has not been initialized")
	}
	now := time.Now().UTC()
	return c.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, shard := range shards {
			if shard.CreatedAt.Time.IsZero() {
				shard.CreatedAt = dbutils.NullTime(now)
			}
			if err := tx.Create(shard).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Job{}).
			Where("id = ?", job.Id).
			Updates(map[string]interface{}{
				"status":          JobRunning,
				"started_at":      now,
				"estimated_bytes": job.EstimatedBytes,
				"estimated_items": job.EstimatedItems,
			}).Error
	})
}

func (c *Client) GetShard(ctx context.Context, id int64) (*Shard, error) {
	dbTags := GetShardFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "Id"): id}
	shards, err := c.SelectShards(ctx, query, nil, 1, 0)
	if err != nil {
		klog.ErrorS(err, "failed to select shard", "sql", dbutils.CvtToSqlStr(query))
		return nil, err
	}
	if len(shards) == 0 {
		return nil, customerrors.NewNotFound(customerrors.ShardKind, fmt.Sprintf("%d", id))
	}
	return shards[0], nil
}

func (c *Client) SelectShards(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Shard, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		if limit, err = c.CountShards(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TShard).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var shards []*Shard
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &shards, sql, args...)
	return shards, err
}

func (c *Client) CountShards(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TShard).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

// ClaimNextShard hands exactly one claimable shard to the calling worker
// using SELECT FOR UPDATE SKIP LOCKED, so concurrent workers never block
// on or receive the same row. Claimable means Pending, or holding an
// expired lease with retry budget left; reclaiming an expired lease
// applies the reap transition (retry bump, lease swap) in the same
// transaction, so recovery never waits for the background reaper.
// Order: priority, created_at, shard_index.
func (c *Client) ClaimNextShard(ctx context.Context, workerId, leaseToken string, leaseDuration time.Duration) (*Shard, error) {
	if c.gorm == nil {
		return nil, customerrors.NewInternalError("The client of db has not been initialized")
	}
	var shard Shard
	err := c.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		result := tx.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		}).Where("status = ? OR (status IN ? AND lease_expires_at < ? AND retry_count < max_retries)",
			ShardPending, []string{ShardAssigned, ShardRunning}, now).
			Order("priority ASC, created_at ASC, shard_index ASC").
			First(&shard)
		if result.Error != nil {
			return result.Error
		}

		if shard.Status != ShardPending {
			shard.RetryCount++
		}
		shard.Status = ShardAssigned
		shard.AssignedWorker = dbutils.NullString(workerId)
		shard.LeaseToken = dbutils.NullString(leaseToken)
		shard.LeaseExpiresAt = dbutils.NullTime(now.Add(leaseDuration))
		shard.Version++
		return tx.Save(&shard).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // nothing claimable
		}
		return nil, err
	}
	return &shard, nil
}

// ExtendShardLease pushes the lease expiry forward. Returns false when the
// presented token no longer owns the shard.
func (c *Client) ExtendShardLease(ctx context.Context, shardId int64, workerId, leaseToken string, until time.Time) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET lease_expires_at=$1, version=version+1
		WHERE id=$2 AND assigned_worker_id=$3 AND lease_token=$4 AND status IN ('%s','%s')`,
		TShard, ShardAssigned, ShardRunning)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(until), shardId, workerId, leaseToken)
	if err != nil {
		klog.ErrorS(err, "failed to extend shard lease", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ReleaseShardLease voluntarily returns the shard to Pending.
func (c *Client) ReleaseShardLease(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', assigned_worker_id=NULL, lease_token=NULL,
		lease_expires_at=NULL, version=version+1
		WHERE id=$1 AND assigned_worker_id=$2 AND lease_token=$3 AND status IN ('%s','%s')`,
		TShard, ShardPending, ShardAssigned, ShardRunning)
	result, err := db.ExecContext(ctx, cmd, shardId, workerId, leaseToken)
	if err != nil {
		klog.ErrorS(err, "failed to release shard lease", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// SetShardRunning marks a claimed shard as executing. Token-gated like all
// worker writes.
func (c *Client) SetShardRunning(ctx context.Context, shardId int64, workerId, leaseToken string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	now := dbutils.NullTime(time.Now().UTC())
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', started_at=COALESCE(started_at, $1), version=version+1
		WHERE id=$2 AND assigned_worker_id=$3 AND lease_token=$4 AND status='%s'`,
		TShard, ShardRunning, ShardAssigned)
	result, err := db.ExecContext(ctx, cmd, now, shardId, workerId, leaseToken)
	if err != nil {
		klog.ErrorS(err, "failed to update shard db", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// CompleteShard records the terminal outcome and clears the lease. Returns
// false when the token is stale; the caller must discard its work.
func (c *Client) CompleteShard(ctx context.Context, shardId int64, workerId, leaseToken string, summary *ShardSummary) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	now := dbutils.NullTime(time.Now().UTC())
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1, actual_bytes=$2, actual_items=$3,
		manifest_hash=$4, error=$5, ended_at=$6, progress_pct=CASE WHEN $1='%s' THEN 100 ELSE progress_pct END,
		assigned_worker_id=NULL, lease_token=NULL, lease_expires_at=NULL, version=version+1
		WHERE id=$7 AND assigned_worker_id=$8 AND lease_token=$9 AND status IN ('%s','%s')`,
		TShard, ShardCompleted, ShardAssigned, ShardRunning)
	result, err := db.ExecContext(ctx, cmd,
		summary.Status, summary.ActualBytes, summary.ActualItems,
		dbutils.NullString(summary.ManifestHash), dbutils.NullString(summary.Error), now,
		shardId, workerId, leaseToken)
	if err != nil {
		klog.ErrorS(err, "failed to complete shard", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// RetryShard moves a Failed shard through Retrying back to Pending while
// the retry budget allows. Returns false once the budget is exhausted.
func (c *Client) RetryShard(ctx context.Context, shardId int64, reason string) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', retry_count=retry_count+1,
		error=$1, assigned_worker_id=NULL, lease_token=NULL, lease_expires_at=NULL, version=version+1
		WHERE id=$2 AND status='%s' AND retry_count < max_retries`,
		TShard, ShardPending, ShardFailed)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullString(reason), shardId)
	if err != nil {
		klog.ErrorS(err, "failed to retry shard", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// ReapExpiredShards sweeps leases whose expiry has passed. Rows under the
// retry cap return to Pending, the rest go terminal Failed. The version
// column keeps racing reapers from applying the sweep twice.
func (c *Client) ReapExpiredShards(ctx context.Context, now time.Time) (int, error) {
	if c.gorm == nil {
		return 0, customerrors.NewInternalError("The client of db has not been initialized")
	}
	reaped := 0
	err := c.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var expired []Shard
		result := tx.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		}).Where("lease_expires_at < ? AND status IN ?", now,
			[]string{ShardAssigned, ShardRunning}).
			Find(&expired)
		if result.Error != nil {
			return result.Error
		}
		for i := range expired {
			shard := &expired[i]
			status := ShardPending
			if shard.RetryCount+1 > shard.MaxRetries {
				status = ShardFailed
			}
			update := tx.Model(&Shard{}).
				Where("id = ? AND version = ?", shard.Id, shard.Version).
				Updates(map[string]interface{}{
					"status":             status,
					"retry_count":        shard.RetryCount + 1,
					"assigned_worker_id": nil,
					"lease_token":        nil,
					"lease_expires_at":   nil,
					"version":            shard.Version + 1,
				})
			if update.Error != nil {
				return update.Error
			}
			if update.RowsAffected > 0 {
				reaped++
			}
		}
		return nil
	})
	return reaped, err
}

// UpdateShardProgress accumulates processed counters. progress_pct never
// decreases; GREATEST guards against late reports.
func (c *Client) UpdateShardProgress(ctx context.Context, shardId int64, workerId, leaseToken string, itemsDelta, bytesDelta int64, progressPct float64) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET processed_items=processed_items+$1,
		processed_bytes=processed_bytes+$2,
		progress_pct=GREATEST(progress_pct, LEAST($3, 100)), version=version+1
		WHERE id=$4 AND assigned_worker_id=$5 AND lease_token=$6 AND status IN ('%s','%s')`,
		TShard, ShardAssigned, ShardRunning)
	result, err := db.ExecContext(ctx, cmd, itemsDelta, bytesDelta, progressPct, shardId, workerId, leaseToken)
	if err != nil {
		klog.ErrorS(err, "failed to update shard progress", "id", shardId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// CancelShardsOfJob cancels every non-terminal shard of a job, clearing
// leases so running workers fail their next token-gated write.
func (c *Client) CancelShardsOfJob(ctx context.Context, jobId int64) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', assigned_worker_id=NULL, lease_token=NULL,
		lease_expires_at=NULL, ended_at=$1, version=version+1
		WHERE parent_job_id=$2 AND status IN ('%s','%s','%s','%s')`,
		TShard, ShardCancelled, ShardPending, ShardAssigned, ShardRunning, ShardRetrying)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(time.Now().UTC()), jobId)
	if err != nil {
		klog.ErrorS(err, "failed to cancel shards", "jobId", jobId)
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
