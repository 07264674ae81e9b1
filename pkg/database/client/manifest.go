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
	insertManifestFormat = `INSERT INTO ` + TJobManifest + ` (%s) VALUES (%s)`
)

func (c *Client) InsertJobManifest(ctx context.Context, manifest *JobManifest) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	if manifest.CreatedAt.Time.IsZero() {
		manifest.CreatedAt = dbutils.NullTime(time.Now().UTC())
	}
	if _, err = db.NamedExecContext(ctx, genInsertCommand(*manifest, insertManifestFormat, "id"), manifest); err != nil {
		if dbutils.IsUniqueViolation(err) {
			return customerrors.NewAlreadyExist(
				fmt.Sprintf("manifest %s already exists", manifest.ManifestId))
		}
		klog.ErrorS(err, "failed to insert manifest", "manifestId", manifest.ManifestId)
		return err
	}
	return nil
}

func (c *Client) GetJobManifest(ctx context.Context, manifestId string) (*JobManifest, error) {
	dbTags := GetJobManifestFieldTags()
	query := sqrl.Eq{GetFieldTag(dbTags, "ManifestId"): manifestId}
	manifests, err := c.SelectJobManifests(ctx, query, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, customerrors.NewNotFound(customerrors.ManifestKind, manifestId)
	}
	return manifests[0], nil
}

func (c *Client) SelectJobManifests(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*JobManifest, error) {
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
		From(TJobManifest).
		Where(query).
		OrderBy("created_at desc").
		Limit(uint64(limit)).
		Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	var manifests []*JobManifest
	ctx2, cancel := context.WithTimeout(ctx, c.RequestTimeout)
	defer cancel()
	err = db.SelectContext(ctx2, &manifests, sql, args...)
	return manifests, err
}

// SetManifestSealed flips the sealed flag once. Returns false when the
// manifest was already sealed, which callers surface as AlreadySealed.
func (c *Client) SetManifestSealed(ctx context.Context, manifestId, sealedPath string, sealedAt time.Time) (bool, error) {
	db, err := c.getDB()
	if err != nil {
		return false, err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET is_sealed=true, worm_compliant=true, sealed_path=$1, sealed_at=$2
		WHERE manifest_id=$3 AND is_sealed=false`, TJobManifest)
	result, err := db.ExecContext(ctx, cmd, sealedPath, dbutils.NullTime(sealedAt), manifestId)
	if err != nil {
		klog.ErrorS(err, "failed to seal manifest", "manifestId", manifestId)
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (c *Client) SetManifestVerifyState(ctx context.Context, manifestId, state string, verifiedAt time.Time) error {
	db, err := c.getDB()
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf(`UPDATE %s SET verify_state=$1, last_verified_at=$2 WHERE manifest_id=$3`, TJobManifest)
	_, err = db.ExecContext(ctx, cmd, state, dbutils.NullTime(verifiedAt), manifestId)
	if err != nil {
		klog.ErrorS(err, "failed to update manifest verify state", "manifestId", manifestId)
	}
	return err
}
