/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

var (
	insertMatterFormat = `INSERT INTO ` + TMatter + ` (%s) VALUES (%s) RETURNING id`
)

func (c *Client) InsertMatter(ctx context.Context, matter *Matter) (int64, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	rows, err := db.NamedQueryContext(ctx, genInsertCommand(*matter, insertMatterFormat, "id"), matter)
	if err != nil {
		if dbutils.IsUniqueViolation(err) {
			return 0, customerrors.NewAlreadyExist(
				fmt.Sprintf("matter with case number %s already exists", matter.CaseNumber))
		}
		klog.ErrorS(err, "failed to insert matter", "caseNumber", matter.CaseNumber)
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

func (c *Client) GetMatter(ctx context.Context, id int64) (*Matter, error) {
	dbTags := GetMatterFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "Id"): id}
	matters, err := c.SelectMatters(ctx, query, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(matters) == 0 {
		return nil, customerrors.NewNotFound(customerrors.MatterKind, fmt.Sprintf("%d", id))
	}
	return matters[0], nil
}

func (c *Client) GetMatterByCaseNumber(ctx context.Context, caseNumber string) (*Matter, error) {
	dbTags := GetMatterFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "CaseNumber"): caseNumber}
	matters, err := c.SelectMatters(ctx, query, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(matters) == 0 {
		return nil, customerrors.NewNotFound(customerrors.MatterKind, caseNumber)
	}
	return matters[0], nil
}

func (c *Client) SelectMatters(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*Matter, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		if limit, err = c.CountMatters(ctx, query); err != nil {
			return nil, err
		}
	}
	if offset < 0 {
		offset = 0
	}
	sql, args, err := sqrl.Select("*").PlaceholderFormat(sqrl.Dollar).
		From(TMatter).
		Where(query).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var matters []*Matter
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &matters, sql, args...)
	return matters, err
}

func (c *Client) CountMatters(ctx context.Context, query sqrl.Sqlizer) (int, error) {
	db, err := c.getDB()
	if err != nil {
		return 0, err
	}
	sql, args, err := sqrl.Select("COUNT(*)").PlaceholderFormat(sqrl.Dollar).From(TMatter).Where(query).ToSql()
	if err != nil {
		return 0, err
	}
	var cnt int
	err = db.GetContext(ctx, &cnt, sql, args...)
	return cnt, err
}

func (c *Client) SetMatterActive(ctx context.Context, id int64, active bool) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET is_active=$1 WHERE id=$2`, TMatter)
	_, err = db.ExecContext(ctx, cmd, active, id)
	if err != nil {
		klog.ErrorS(err, "failed to update matter db", "id", id)
		return err
	}
	return nil
}
