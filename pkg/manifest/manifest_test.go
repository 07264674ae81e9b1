/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package manifest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

// fakeMetaStore backs the generator with in-memory rows.
type fakeMetaStore struct {
	job       *client.Job
	matter    *client.Matter
	shards    []*client.Shard
	items     map[int64][]*client.CollectedItem
	manifests map[string]*client.JobManifest
	nextRowId int64
}

func (f *fakeMetaStore) GetJob(_ context.Context, id int64) (*client.Job, error) {
	if f.job == nil || f.job.Id != id {
		return nil, customerrors.NewNotFound(customerrors.JobKind, "job")
	}
	return f.job, nil
}

func (f *fakeMetaStore) GetMatter(_ context.Context, id int64) (*client.Matter, error) {
	if f.matter == nil || f.matter.Id != id {
		return nil, customerrors.NewNotFound(customerrors.MatterKind, "matter")
	}
	return f.matter, nil
}

func (f *fakeMetaStore) SelectShards(_ context.Context, query sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Shard, error) {
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	jobId := args[0].(int64)
	var out []*client.Shard
	for _, s := range f.shards {
		if s.ParentJobId == jobId {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShardIndex < out[j].ShardIndex })
	return out, nil
}

func (f *fakeMetaStore) SelectCollectedItems(_ context.Context, query sqrl.Sqlizer, _ []string, _, _ int) ([]*client.CollectedItem, error) {
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	shardId := args[0].(int64)
	out := append([]*client.CollectedItem{}, f.items[shardId]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (f *fakeMetaStore) InsertJobManifest(_ context.Context, m *client.JobManifest) error {
	if f.manifests == nil {
		f.manifests = map[string]*client.JobManifest{}
	}
	if _, ok := f.manifests[m.ManifestId]; ok {
		return customerrors.NewAlreadyExist("manifest " + m.ManifestId)
	}
	f.nextRowId++
	copied := *m
	copied.Id = f.nextRowId
	f.manifests[m.ManifestId] = &copied
	return nil
}

func (f *fakeMetaStore) GetJobManifest(_ context.Context, manifestId string) (*client.JobManifest, error) {
	m, ok := f.manifests[manifestId]
	if !ok {
		return nil, customerrors.NewNotFound(customerrors.ManifestKind, manifestId)
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMetaStore) SelectJobManifests(_ context.Context, query sqrl.Sqlizer, _, _ int) ([]*client.JobManifest, error) {
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	jobId := args[0].(int64)
	var out []*client.JobManifest
	for _, m := range f.manifests {
		if m.JobId == jobId {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMetaStore) SetManifestSealed(_ context.Context, manifestId, sealedPath string, sealedAt time.Time) (bool, error) {
	m, ok := f.manifests[manifestId]
	if !ok || m.IsSealed {
		return false, nil
	}
	m.IsSealed = true
	m.WormCompliant = true
	m.SealedPath = dbutils.NullString(sealedPath)
	m.SealedAt = dbutils.NullTime(sealedAt)
	return true, nil
}

func (f *fakeMetaStore) SetManifestVerifyState(_ context.Context, manifestId, state string, verifiedAt time.Time) error {
	m, ok := f.manifests[manifestId]
	if !ok {
		return customerrors.NewNotFound(customerrors.ManifestKind, manifestId)
	}
	m.VerifyState = dbutils.NullString(state)
	m.LastVerifiedAt = dbutils.NullTime(verifiedAt)
	return nil
}

func (f *fakeMetaStore) SetJobManifestHash(_ context.Context, id int64, hash string) error {
	if f.job == nil || f.job.Id != id {
		return customerrors.NewNotFound(customerrors.JobKind, "job")
	}
	f.job.ManifestHash = dbutils.NullString(hash)
	return nil
}

func newCollectedFixture(t *testing.T) (*fakeMetaStore, artifact.Store) {
	t.Helper()
	now := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeMetaStore{
		matter: &client.Matter{Id: 7, Name: "smith-v-jones", CaseNumber: "2024-CV-0042"},
		job: &client.Job{
			Id:             42,
			MatterId:       7,
			CustodianEmail: "alice@example.com",
			JobType:        client.JobTypeEmail,
			Status:         client.JobRunning,
			Route:          dbutils.NullString(client.RoutePerItemApi),
			CreatedAt:      dbutils.NullTime(now.Add(-time.Hour)),
			StartedAt:      dbutils.NullTime(now.Add(-50 * time.Minute)),
			EndedAt:        dbutils.NullTime(now),
			EstimatedBytes: 1000,
		},
		shards: []*client.Shard{{
			Id:             100,
			ParentJobId:    42,
			ShardIndex:     0,
			TotalShards:    1,
			CustodianEmail: "alice@example.com",
			JobType:        client.JobTypeEmail,
			Route:          client.RoutePerItemApi,
			Status:         client.ShardCompleted,
		}},
		items: map[int64][]*client.CollectedItem{},
	}
	for i, size := range []int64{100, 200, 300} {
		item := &client.CollectedItem{
			Id:           int64(i + 1),
			ShardId:      100,
			SourceItemId: []string{"msg-aaa", "msg-bbb", "msg-ccc"}[i],
			ItemType:     "Email",
			Subject:      dbutils.NullString("status update"),
			Sender:       dbutils.NullString("bob@example.com"),
			CollectedAt:  dbutils.NullTime(now.Add(time.Duration(i) * time.Minute)),
			SizeBytes:    size,
			Sha256:       strings.Repeat("a", 63) + string(rune('0'+i)),
			ArtifactPath: dbutils.NullString("blobs/msg-" + string(rune('a'+i))),
			IsSuccessful: true,
		}
		store.items[100] = append(store.items[100], item)
	}

	fs, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)
	return store, fs
}

func readManifestJSON(t *testing.T, fs artifact.Store, jsonPath string) (*Manifest, []byte) {
	t.Helper()
	rc, err := fs.Read(context.Background(), jsonPath)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	return &m, data
}

func TestGenerateSealVerify(t *testing.T) {
	store, fs := newCollectedFixture(t)
	gen := NewGenerator(store, fs, nil)
	ctx := context.Background()

	row, built, err := gen.Generate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.TotalItems)
	assert.Equal(t, int64(600), row.TotalBytes)
	assert.Equal(t, "logs/smith-v-jones/42/manifest.json", row.JsonPath)
	assert.Equal(t, built.Integrity.ManifestHash, store.job.ManifestHash.String)

	// sequence is dense and ordered
	for i, entry := range built.Items {
		assert.Equal(t, int64(i), entry.Sequence)
	}
	assert.Equal(t, int64(3), built.Totals.Successful)
	assert.Equal(t, int64(0), built.Totals.Failed)

	// the persisted JSON recomputes to the recorded hashes
	parsed, _ := readManifestJSON(t, fs, row.JsonPath)
	itemsHash, err := ItemsHash(parsed.Items)
	require.NoError(t, err)
	assert.Equal(t, row.ItemsHash, itemsHash)
	manifestHash, err := ManifestHash(parsed)
	require.NoError(t, err)
	assert.Equal(t, row.ManifestHash, manifestHash)

	sealedPath, err := gen.Seal(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealedPath, artifact.ImmutablePrefix))
	assert.Contains(t, sealedPath, "sealed_manifest_"+row.ManifestId)

	state, err := gen.Verify(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, state)

	stored, err := store.GetJobManifest(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.True(t, stored.IsSealed)
	assert.True(t, stored.WormCompliant)
	assert.Equal(t, VerifyValid, stored.VerifyState.String)

	// a second seal is rejected
	_, err = gen.Seal(ctx, row.ManifestId)
	require.Error(t, err)
	assert.True(t, customerrors.IsAlreadySealed(err))
}

func TestManifestRoundTrip(t *testing.T) {
	store, fs := newCollectedFixture(t)
	gen := NewGenerator(store, fs, nil)

	row, built, err := gen.Generate(context.Background(), 42)
	require.NoError(t, err)

	_, raw := readManifestJSON(t, fs, row.JsonPath)
	var parsed Manifest
	require.NoError(t, json.Unmarshal(raw, &parsed))

	reserialized, err := json.Marshal(&parsed)
	require.NoError(t, err)
	assert.Equal(t, raw, reserialized)
	assert.Equal(t, built.Integrity, parsed.Integrity)
}

func TestCsvAndHashSidecar(t *testing.T) {
	store, fs := newCollectedFixture(t)
	gen := NewGenerator(store, fs, nil)
	ctx := context.Background()

	row, _, err := gen.Generate(ctx, 42)
	require.NoError(t, err)

	rc, err := fs.Read(ctx, row.CsvPath.String)
	require.NoError(t, err)
	csvBytes, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(csvBytes), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Custodian,Kind,DriveId,ItemId,Path,Size,SHA256,StorageUri,CollectedUtc", lines[0])
	assert.Contains(t, lines[1], "alice@example.com")
	assert.Contains(t, lines[1], "msg-aaa")
	assert.Contains(t, lines[1], ",100,")

	rc, err = fs.Read(ctx, "logs/smith-v-jones/42/manifest.sha256")
	require.NoError(t, err)
	sidecar, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	sum := sha256.Sum256(csvBytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), string(sidecar))
}

func TestVerifyDetectsTamper(t *testing.T) {
	store, fs := newCollectedFixture(t)
	gen := NewGenerator(store, fs, nil)
	ctx := context.Background()

	row, _, err := gen.Generate(ctx, 42)
	require.NoError(t, err)

	parsed, _ := readManifestJSON(t, fs, row.JsonPath)
	parsed.Items[1].SizeBytes = 9999 // silent size edit
	tampered, err := json.Marshal(parsed)
	require.NoError(t, err)
	_, err = fs.Write(ctx, row.JsonPath, bytes.NewReader(tampered))
	require.NoError(t, err)

	state, err := gen.Verify(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, state)
}

func TestSignedManifest(t *testing.T) {
	store, fs := newCollectedFixture(t)
	seed := bytes.Repeat([]byte{0x42}, 32)
	gen := NewGenerator(store, fs, NewSignerFromSeed(seed))
	ctx := context.Background()

	row, built, err := gen.Generate(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, SignatureAlgo, built.Integrity.SignatureAlgo)
	require.NotEmpty(t, built.Integrity.Signature)
	assert.NotEmpty(t, built.Integrity.SigningCertThumbprint)
	assert.Equal(t, built.Integrity.Signature, row.Signature.String)

	state, err := gen.Verify(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, state)

	// a verifier without the key cannot conclude either way
	unsigned := NewGenerator(store, fs, nil)
	state, err = unsigned.Verify(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.Equal(t, VerifyInconclusive, state)
}

func TestVerifyFailsWhenSealedCopyMissing(t *testing.T) {
	store, fs := newCollectedFixture(t)
	gen := NewGenerator(store, fs, nil)
	ctx := context.Background()

	row, _, err := gen.Generate(ctx, 42)
	require.NoError(t, err)
	_, err = gen.Seal(ctx, row.ManifestId)
	require.NoError(t, err)

	// point the row at a sealed blob that was never written
	m := store.manifests[row.ManifestId]
	m.SealedPath = dbutils.NullString(artifact.ImmutablePrefix + "/2024-07-01/sealed_manifest_gone.json")

	state, err := gen.Verify(ctx, row.ManifestId)
	require.NoError(t, err)
	assert.Equal(t, VerifyInvalid, state)
}
