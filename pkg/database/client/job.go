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
	insertJobFormat = `INSERT INTO ` + TJob + ` (%s) VALUES (%s) RETURNING id`
)

func (c *Client) InsertJob(ctx context.Context, job *Job) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	if job.CreatedAt.Time.IsZero() {
		job.CreatedAt = dbutils.NullTime(time.Now().UTC())
	}
	rows, err := db.NamedQueryContext(ctx, genInsertCommand(*job, insertJobFormat, "id"), job)
	if err != nil {
		klog.ErrorS(err, "failed to insert job db", "custodian", job.CustodianEmail)
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

func (c *Client) GetJob(ctx context.Context, id int64) (*Job, error) {
	dbTags := GetJobFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "Id"): id}
	jobs, err := c.SelectJobs(ctx, query, "", "", 1, 0)
	if err != nil {
		klog.ErrorS(err, "failed to select job", "sql", dbutils.CvtToSqlStr(query))
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, customerrors.NewNotFound(customerrors.JobKind, fmt.Sprintf("%d", id))
	}
	return jobs[0], nil
}

func (c *Client) SelectJobs(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*Job, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	orderBy := func() []string {
		var results []string
		if sortBy == "" || order == "" {
			return results
		}
		if order == DESC {
			results = append(results, fmt.Sprintf("%s desc", sortBy))
		} else {
			results = append(results, fmt.Sprintf("%s asc", sortBy))
		}
		return results
	}()
	if limit < 0 {
		if limit, err = c.CountJobs(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TJob).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}

	var jobs []*Job
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &jobs, sql, args...)
	return jobs, err
}

func (c *Client) CountJobs(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TJob).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

// SetJobStatus moves a job from one status to another. The old status is
// part of the predicate so racing writers cannot skip states.
func (c *Client) SetJobStatus(ctx context.Context, id int64, from, to string) error {
	if !CanJobTransition(from, to) {
		return customerrors.NewInvalidJobTransition(from, to)
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1 WHERE id=$2 AND status=$3`, TJob)
	result, err := db.ExecContext(ctx, cmd, to, id, from)
	if err != nil {
		klog.ErrorS(err, "failed to update job status", "id", id)
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return customerrors.NewInvalidJobTransition(from, to)
	}
	return nil
}

func (c *Client) SetJobStarted(ctx context.Context, id int64) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	now := dbutils.NullTime(time.Now().UTC())
	cmd := fmt.Sprintf(`UPDATE %s SET status='%s', started_at=$1 WHERE id=$2 AND started_at IS NULL`,
		TJob, JobRunning)
	_, err = db.ExecContext(ctx, cmd, now, id)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", id)
	}
	return err
}

func (c *Client) SetJobEnded(ctx context.Context, id int64, status, errMsg string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	now := dbutils.NullTime(time.Now().UTC())
	cmd := fmt.Sprintf(`UPDATE %s SET status=$1, ended_at=$2, error=$3 WHERE id=$4`, TJob)
	_, err = db.ExecContext(ctx, cmd, status, now, dbutils.NullString(errMsg), id)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", id)
	}
	return err
}

// SetJobActuals writes the byte/item totals summed over terminal shards.
func (c *Client) SetJobActuals(ctx context.Context, id int64, actualBytes, actualItems int64) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET actual_bytes=$1, actual_items=$2 WHERE id=$3`, TJob)
	_, err = db.ExecContext(ctx, cmd, actualBytes, actualItems, id)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", id)
	}
	return err
}

func (c *Client) SetJobManifestHash(ctx context.Context, id int64, hash string) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET manifest_hash=$1 WHERE id=$2`, TJob)
	_, err = db.ExecContext(ctx, cmd, hash, id)
	if err != nil {
		klog.ErrorS(err, "failed to update job db", "id", id)
	}
	return err
}
