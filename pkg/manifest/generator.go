/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package manifest builds, hashes, optionally signs, seals and verifies
// the per-job chain-of-custody manifests.
package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/clock"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

// Store is the slice of the metadata client the generator reads and the
// manifest rows it maintains.
type Store interface {
	GetJob(ctx context.Context, id int64) (*client.Job, error)
	GetMatter(ctx context.Context, id int64) (*client.Matter, error)
	SelectShards(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*client.Shard, error)
	SelectCollectedItems(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*client.CollectedItem, error)
	InsertJobManifest(ctx context.Context, m *client.JobManifest) error
	GetJobManifest(ctx context.Context, manifestId string) (*client.JobManifest, error)
	SelectJobManifests(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*client.JobManifest, error)
	SetManifestSealed(ctx context.Context, manifestId, sealedPath string, sealedAt time.Time) (bool, error)
	SetManifestVerifyState(ctx context.Context, manifestId, state string, verifiedAt time.Time) error
	SetJobManifestHash(ctx context.Context, id int64, hash string) error
}

type Generator struct {
	store     Store
	artifacts artifact.Store
	signer    *Signer
}

// NewGenerator builds a generator. signer may be nil when signing is not
// configured.
func NewGenerator(store Store, artifacts artifact.Store, signer *Signer) *Generator {
	return &Generator{store: store, artifacts: artifacts, signer: signer}
}

// Generate builds the manifest for a job, persists its JSON, CSV and hash
// files, and records the JobManifest row.
func (g *Generator) Generate(ctx context.Context, jobId int64) (*client.JobManifest, *Manifest, error) {
	job, err := g.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, nil, err
	}
	matter, err := g.store.GetMatter(ctx, job.MatterId)
	if err != nil {
		return nil, nil, err
	}

	manifestId := clock.NewManifestId()
	m := &Manifest{
		ManifestId:  manifestId,
		JobId:       job.Id,
		MatterId:    job.MatterId,
		Custodian:   job.CustodianEmail,
		JobType:     job.JobType,
		Route:       job.Route.String,
		StartedAt:   timeutil.FormatRFC3339Milli(job.StartedAt.Time),
		EndedAt:     timeutil.FormatRFC3339Milli(job.EndedAt.Time),
		CreatedAt:   timeutil.FormatRFC3339Milli(job.CreatedAt.Time),
		FinalizedAt: timeutil.FormatRFC3339Milli(time.Now().UTC()),
	}
	if err = g.appendEntries(ctx, m); err != nil {
		return nil, nil, err
	}
	m.Totals.EstimatedBytes = job.EstimatedBytes

	m.Integrity.HashAlgo = HashAlgo
	if m.Integrity.ItemsHash, err = ItemsHash(m.Items); err != nil {
		return nil, nil, err
	}
	if g.signer != nil {
		m.Integrity.SignatureAlgo = SignatureAlgo
		m.Integrity.SigningCertThumbprint = g.signer.Thumbprint()
	}
	if m.Integrity.ManifestHash, err = ManifestHash(m); err != nil {
		return nil, nil, err
	}
	if g.signer != nil {
		m.Integrity.Signature = g.signer.Sign(m.Integrity.ManifestHash)
	}

	row, err := g.persist(ctx, matter, m)
	if err != nil {
		return nil, nil, err
	}
	if err = g.store.SetJobManifestHash(ctx, job.Id, m.Integrity.ManifestHash); err != nil {
		return nil, nil, err
	}
	klog.Infof("generated manifest %s for job %d: %d items, %d bytes",
		manifestId, job.Id, m.Totals.Items, m.Totals.Bytes)
	return row, m, nil
}

// appendEntries streams collected items ordered by (shard_index, id) and
// assigns monotonically increasing sequence numbers.
func (g *Generator) appendEntries(ctx context.Context, m *Manifest) error {
	shardTags := client.GetShardFieldTags()
	shards, err := g.store.SelectShards(ctx,
		sqrl.Eq{client.GetFieldTag(shardTags, "ParentJobId"): m.JobId},
		[]string{"shard_index asc"}, -1, 0)
	if err != nil {
		return err
	}
	itemTags := client.GetCollectedItemFieldTags()
	sequence := int64(0)
	for _, shard := range shards {
		items, err := g.store.SelectCollectedItems(ctx,
			sqrl.Eq{client.GetFieldTag(itemTags, "ShardId"): shard.Id},
			[]string{"id asc"}, -1, 0)
		if err != nil {
			return err
		}
		for _, item := range items {
			entry := Entry{
				SourceItemId:  item.SourceItemId,
				ItemType:      item.ItemType,
				Subject:       item.Subject.String,
				From:          item.Sender.String,
				To:            item.Recipients.String,
				CollectedAt:   timeutil.FormatRFC3339Milli(item.CollectedAt.Time),
				SizeBytes:     item.SizeBytes,
				Sha256:        item.Sha256,
				ArtifactPath:  item.ArtifactPath.String,
				IsSuccessful:  item.IsSuccessful,
				Error:         item.Error.String,
				Sequence:      sequence,
				Custodian:     shard.CustodianEmail,
				CorrelationId: m.ManifestId,
			}
			if !item.ItemDate.Time.IsZero() {
				entry.ItemDate = timeutil.FormatRFC3339Milli(item.ItemDate.Time)
			}
			m.Items = append(m.Items, entry)
			sequence++

			m.Totals.Items++
			m.Totals.Bytes += item.SizeBytes
			if item.IsSuccessful {
				m.Totals.Successful++
			} else {
				m.Totals.Failed++
			}
		}
	}
	return nil
}

// persist writes manifest.{json,csv,sha256} and records the manifest row.
func (g *Generator) persist(ctx context.Context, matter *client.Matter, m *Manifest) (*client.JobManifest, error) {
	base := fmt.Sprintf("logs/%s/%d", matter.Name, m.JobId)

	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	jsonPath := path.Join(base, "manifest.json")
	if _, err = g.artifacts.Write(ctx, jsonPath, bytes.NewReader(jsonBytes)); err != nil {
		return nil, err
	}

	csvBytes, err := EncodeCSV(m)
	if err != nil {
		return nil, err
	}
	csvPath := path.Join(base, "manifest.csv")
	if _, err = g.artifacts.Write(ctx, csvPath, bytes.NewReader(csvBytes)); err != nil {
		return nil, err
	}

	// lowercase hex over the CSV bytes, no trailing newline
	sum := sha256.Sum256(csvBytes)
	hashPath := path.Join(base, "manifest.sha256")
	if _, err = g.artifacts.Write(ctx, hashPath, bytes.NewReader([]byte(hex.EncodeToString(sum[:])))); err != nil {
		return nil, err
	}

	row := &client.JobManifest{
		ManifestId:   m.ManifestId,
		JobId:        m.JobId,
		MatterId:     m.MatterId,
		Custodian:    m.Custodian,
		ItemsHash:    m.Integrity.ItemsHash,
		ManifestHash: m.Integrity.ManifestHash,
		Signature:    dbutils.NullString(m.Integrity.Signature),
		JsonPath:     jsonPath,
		CsvPath:      dbutils.NullString(csvPath),
		TotalItems:   m.Totals.Items,
		TotalBytes:   m.Totals.Bytes,
		CreatedAt:    dbutils.NullTime(time.Now().UTC()),
	}
	if err = g.store.InsertJobManifest(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// Seal copies the manifest JSON into the WORM namespace. Idempotent in the
// failure direction only: a second seal after success is AlreadySealed.
func (g *Generator) Seal(ctx context.Context, manifestId string) (string, error) {
	row, err := g.store.GetJobManifest(ctx, manifestId)
	if err != nil {
		return "", err
	}
	if row.IsSealed {
		return "", customerrors.NewAlreadySealed(manifestId)
	}
	rc, err := g.artifacts.Read(ctx, row.JsonPath)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	now := time.Now().UTC()
	sealedName := path.Join(now.Format(timeutil.DateOnly),
		fmt.Sprintf("sealed_manifest_%s_%d_%d.json", manifestId, row.Id, now.Unix()))
	result, err := g.artifacts.WriteImmutable(ctx, sealedName, rc)
	if err != nil {
		if customerrors.IsAlreadyExist(err) {
			return "", customerrors.NewAlreadySealed(manifestId)
		}
		return "", err
	}
	ok, err := g.store.SetManifestSealed(ctx, manifestId, result.Path, now)
	if err != nil {
		return "", err
	}
	if !ok {
		// lost a race with another sealer
		return "", customerrors.NewAlreadySealed(manifestId)
	}
	metrics.ManifestsSealed.Inc()
	klog.Infof("sealed manifest %s at %s", manifestId, result.Path)
	return result.Path, nil
}

// Verify recomputes the integrity hashes and checks the signature and the
// sealed WORM copy when present.
func (g *Generator) Verify(ctx context.Context, manifestId string) (string, error) {
	row, err := g.store.GetJobManifest(ctx, manifestId)
	if err != nil {
		return VerifyError, err
	}
	state := g.verifyState(ctx, row)
	if err = g.store.SetManifestVerifyState(ctx, manifestId, state, time.Now().UTC()); err != nil {
		return state, err
	}
	return state, nil
}

func (g *Generator) verifyState(ctx context.Context, row *client.JobManifest) string {
	rc, err := g.artifacts.Read(ctx, row.JsonPath)
	if err != nil {
		klog.ErrorS(err, "failed to read manifest for verification", "manifestId", row.ManifestId)
		return VerifyError
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return VerifyError
	}
	var m Manifest
	if err = json.Unmarshal(data, &m); err != nil {
		return VerifyInvalid
	}

	itemsHash, err := ItemsHash(m.Items)
	if err != nil {
		return VerifyError
	}
	manifestHash, err := ManifestHash(&m)
	if err != nil {
		return VerifyError
	}
	if itemsHash != m.Integrity.ItemsHash || manifestHash != m.Integrity.ManifestHash ||
		manifestHash != row.ManifestHash {
		return VerifyInvalid
	}

	if m.Integrity.Signature != "" {
		if g.signer == nil {
			// a signature we cannot check is neither valid nor invalid
			return VerifyInconclusive
		}
		if !g.signer.Verify(m.Integrity.ManifestHash, m.Integrity.Signature) {
			return VerifyInvalid
		}
	}

	if row.IsSealed && row.SealedPath.String != "" {
		exists, err := g.artifacts.Exists(ctx, row.SealedPath.String)
		if err != nil {
			return VerifyError
		}
		if !exists {
			return VerifyInvalid
		}
	}
	return VerifyValid
}

// ManifestsOfJob lists the manifest rows recorded for one job.
func (g *Generator) ManifestsOfJob(ctx context.Context, jobId int64) ([]*client.JobManifest, error) {
	tags := client.GetJobManifestFieldTags()
	return g.store.SelectJobManifests(ctx,
		sqrl.Eq{client.GetFieldTag(tags, "JobId"): jobId}, -1, 0)
}
