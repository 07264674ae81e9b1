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
	getDeltaCursorCmd       = fmt.Sprintf(`SELECT * FROM %s WHERE scope_id = $1 LIMIT 1`, TDeltaCursor)
	insertDeltaCursorFormat = `INSERT INTO ` + TDeltaCursor + ` (%s) VALUES (%s)`
	updateDeltaCursorCmd    = fmt.Sprintf(`UPDATE %s
		SET delta_token = :delta_token,
		    last_delta_at = :last_delta_at,
		    baseline_completed_at = :baseline_completed_at,
		    last_delta_items = :last_delta_items,
		    last_delta_bytes = :last_delta_bytes,
		    delta_query_count = :delta_query_count,
		    failure_count = :failure_count,
		    is_active = :is_active,
		    error = :error
		WHERE scope_id = :scope_id`, TDeltaCursor)
)

func (c *Client) UpsertDeltaCursor(ctx context.Context, cursor *DeltaCursor) error {
	if cursor == nil {
		return nil
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	var cursors []*DeltaCursor
	if err = db.SelectContext(ctx, &cursors, getDeltaCursorCmd, cursor.ScopeId); err != nil {
		return err
	}
	if len(cursors) > 0 && cursors[0] != nil {
		if _, err = db.NamedExecContext(ctx, updateDeltaCursorCmd, cursor); err != nil {
			klog.ErrorS(err, "failed to upsert delta cursor", "scopeId", cursor.ScopeId)
			return err
		}
	} else {
		_, err = db.NamedExecContext(ctx, genInsertCommand(*cursor, insertDeltaCursorFormat, "id"), cursor)
		if err != nil {
			klog.ErrorS(err, "failed to insert delta cursor", "scopeId", cursor.ScopeId)
			return err
		}
	}
	return nil
}

func (c *Client) GetDeltaCursor(ctx context.Context, scopeId string) (*DeltaCursor, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var cursors []*DeltaCursor
	if err = db.SelectContext(ctx, &cursors, getDeltaCursorCmd, scopeId); err != nil {
		return nil, err
	}
	if len(cursors) == 0 {
		return nil, customerrors.NewNotFoundWithMessage(fmt.Sprintf("delta cursor %s not found", scopeId))
	}
	return cursors[0], nil
}

func (c *Client) SelectDeltaCursors(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*DeltaCursor, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 10000
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TDeltaCursor).
		Where(query).
		OrderBy("scope_id asc").
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var cursors []*DeltaCursor
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &cursors, sql, args...)
	return cursors, err
}

// DeactivateStaleCursors forces a baseline resync for cursors that have
// aged out or failed too often. The next job for the custodian starts
// from scratch instead of trusting a stale token.
func (c *Client) DeactivateStaleCursors(ctx context.Context, olderThan time.Time, maxFailures int) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET is_active=false
		WHERE is_active=true AND (last_delta_at < $1 OR failure_count >= $2)`, TDeltaCursor)
	result, err := db.ExecContext(ctx, cmd, dbutils.NullTime(olderThan), maxFailures)
	if err != nil {
		klog.ErrorS(err, "failed to deactivate stale cursors")
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}
