/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
	"github.com/AMD-AIG-AIMA/Custos/pkg/manifest"
)

// fakeManifestStore backs the generator with just enough of the metadata
// client for the seal path.
type fakeManifestStore struct {
	rows map[string]*client.JobManifest
}

func (f *fakeManifestStore) GetJob(_ context.Context, id int64) (*client.Job, error) {
	return nil, customerrors.NewNotFound(customerrors.JobKind, "job")
}

func (f *fakeManifestStore) GetMatter(_ context.Context, id int64) (*client.Matter, error) {
	return nil, customerrors.NewNotFound(customerrors.MatterKind, "matter")
}

func (f *fakeManifestStore) SelectShards(_ context.Context, _ sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Shard, error) {
	return nil, nil
}

func (f *fakeManifestStore) SelectCollectedItems(_ context.Context, _ sqrl.Sqlizer, _ []string, _, _ int) ([]*client.CollectedItem, error) {
	return nil, nil
}

func (f *fakeManifestStore) InsertJobManifest(_ context.Context, m *client.JobManifest) error {
	f.rows[m.ManifestId] = m
	return nil
}

func (f *fakeManifestStore) GetJobManifest(_ context.Context, manifestId string) (*client.JobManifest, error) {
	row, ok := f.rows[manifestId]
	if !ok {
		return nil, customerrors.NewNotFound(customerrors.ManifestKind, manifestId)
	}
	copied := *row
	return &copied, nil
}

func (f *fakeManifestStore) SelectJobManifests(_ context.Context, _ sqrl.Sqlizer, _, _ int) ([]*client.JobManifest, error) {
	return nil, nil
}

func (f *fakeManifestStore) SetManifestSealed(_ context.Context, manifestId, sealedPath string, sealedAt time.Time) (bool, error) {
	row, ok := f.rows[manifestId]
	if !ok || row.IsSealed {
		return false, nil
	}
	row.IsSealed = true
	row.WormCompliant = true
	row.SealedPath = dbutils.NullString(sealedPath)
	row.SealedAt = dbutils.NullTime(sealedAt)
	return true, nil
}

func (f *fakeManifestStore) SetManifestVerifyState(_ context.Context, manifestId, state string, _ time.Time) error {
	if row, ok := f.rows[manifestId]; ok {
		row.VerifyState = dbutils.NullString(state)
	}
	return nil
}

func (f *fakeManifestStore) SetJobManifestHash(_ context.Context, _ int64, _ string) error {
	return nil
}

// fakeCustodyDb satisfies client.Interface for the handler; only the
// manifest reads are implemented, everything else panics if reached.
type fakeCustodyDb struct {
	client.Interface
	store *fakeManifestStore
}

func (f *fakeCustodyDb) GetJobManifest(ctx context.Context, manifestId string) (*client.JobManifest, error) {
	return f.store.GetJobManifest(ctx, manifestId)
}

func sealRequest(manifestId string) (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost,
		"/api/v1/custody/manifest/seal/"+manifestId, nil)
	c.Params = gin.Params{{Key: types.Id, Value: manifestId}}
	return w, c
}

func TestSealManifestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	artifacts, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)

	wr, err := artifacts.Write(ctx, "logs/smith-v-jones/3/manifest.json",
		strings.NewReader(`{"manifestId":"mf-1","jobId":3}`))
	require.NoError(t, err)

	store := &fakeManifestStore{rows: map[string]*client.JobManifest{
		"mf-1": {Id: 1, ManifestId: "mf-1", JobId: 3, JsonPath: wr.Path},
	}}
	h, err := NewHandler(&Deps{
		DbClient:  &fakeCustodyDb{store: store},
		Manifests: manifest.NewGenerator(store, artifacts, nil),
		Artifacts: artifacts,
	})
	require.NoError(t, err)

	w, c := sealRequest("mf-1")
	h.SealManifest(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mf-1")

	row := store.rows["mf-1"]
	assert.True(t, row.IsSealed)
	require.NotEmpty(t, row.SealedPath.String)
	exists, err := artifacts.Exists(ctx, row.SealedPath.String)
	require.NoError(t, err)
	assert.True(t, exists)

	// sealing twice conflicts
	w2, c2 := sealRequest("mf-1")
	h.SealManifest(c2)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestSealManifestHandlerUnknownId(t *testing.T) {
	gin.SetMode(gin.TestMode)
	artifacts, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)
	store := &fakeManifestStore{rows: map[string]*client.JobManifest{}}
	h, err := NewHandler(&Deps{
		DbClient:  &fakeCustodyDb{store: store},
		Manifests: manifest.NewGenerator(store, artifacts, nil),
		Artifacts: artifacts,
	})
	require.NoError(t, err)

	w, c := sealRequest("mf-missing")
	h.SealManifest(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
