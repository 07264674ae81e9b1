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
	insertJobLogFormat = `INSERT INTO ` + TJobLog + ` (%s) VALUES (%s)`
)

// AppendJobLog writes one audit row. The table is append-only; there are
// no update paths.
func (c *Client) AppendJobLog(ctx context.Context, log *JobLog) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if log.Ts.Time.IsZero() {
		log.Ts = dbutils.NullTime(time.Now().UTC())
	}
	if _, err = db.NamedExecContext(ctx, genInsertCommand(*log, insertJobLogFormat, "id"), log); err != nil {
		klog.ErrorS(err, "failed to append job log", "jobId", log.JobId, "category", log.Category)
		return err
	}
	return nil
}

func (c *Client) SelectJobLogs(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*JobLog, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TJobLog).
		Where(query).
		OrderBy("ts asc").
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var logs []*JobLog
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &logs, sql, args...)
	return logs, err
}
