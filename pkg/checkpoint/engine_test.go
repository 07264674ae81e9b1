/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/json"
)

// fakeCheckpointStore keeps checkpoint rows in memory with the same
// uniqueness and immutability rules the real client enforces in SQL.
type fakeCheckpointStore struct {
	mu     sync.Mutex
	nextId int64
	rows   map[int64]*client.Checkpoint
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{nextId: 1, rows: map[int64]*client.Checkpoint{}}
}

func (f *fakeCheckpointStore) InsertCheckpoint(_ context.Context, cp *client.Checkpoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ShardId == cp.ShardId && row.CheckpointKey == cp.CheckpointKey {
			return 0, customerrors.NewAlreadyExist(
				fmt.Sprintf("checkpoint %s already exists in shard %d", cp.CheckpointKey, cp.ShardId))
		}
	}
	id := f.nextId
	f.nextId++
	copied := *cp
	copied.Id = id
	f.rows[id] = &copied
	return id, nil
}

func (f *fakeCheckpointStore) GetCheckpoint(_ context.Context, id int64) (*client.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, customerrors.NewNotFound(customerrors.CheckpointKind, fmt.Sprintf("%d", id))
	}
	copied := *row
	return &copied, nil
}

func (f *fakeCheckpointStore) SelectCheckpoints(_ context.Context, query sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	// crude predicate interpreter for the two filters the engine uses
	var shardId int64 = -1
	completedFilter := -1
	argIdx := 0
	for _, fragment := range []string{"shard_id", "is_completed"} {
		if !strings.Contains(sql, fragment) {
			continue
		}
		switch fragment {
		case "shard_id":
			shardId = args[argIdx].(int64)
			argIdx++
		case "is_completed":
			if args[argIdx].(bool) {
				completedFilter = 1
			} else {
				completedFilter = 0
			}
			argIdx++
		}
	}
	var out []*client.Checkpoint
	for id := int64(1); id < f.nextId; id++ {
		row, ok := f.rows[id]
		if !ok || (shardId >= 0 && row.ShardId != shardId) {
			continue
		}
		if completedFilter == 1 && !row.IsCompleted {
			continue
		}
		if completedFilter == 0 && row.IsCompleted {
			continue
		}
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (f *fakeCheckpointStore) UpdateCheckpointPayload(_ context.Context, id int64, payload []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.IsCompleted {
		return false, nil
	}
	row.Payload = payload
	return true, nil
}

func (f *fakeCheckpointStore) CompleteCheckpoint(_ context.Context, id int64, items, bytes int64, completedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok || row.IsCompleted {
		return false, nil
	}
	row.IsCompleted = true
	row.CompletedAt = dbutils.NullTime(completedAt)
	row.ItemsProcessed = items
	row.BytesProcessed = bytes
	return true, nil
}

func TestCreateRejectsDuplicateKey(t *testing.T) {
	e := NewEngine(newFakeCheckpointStore())
	ctx := context.Background()

	payload := MailFolderPayload{FolderId: "f1", FolderName: "Inbox", ItemsInFolder: 100}
	_, err := e.Create(ctx, 1, client.CheckpointMailFolder, "folder/f1", payload, "corr-1")
	require.NoError(t, err)

	_, err = e.Create(ctx, 1, client.CheckpointMailFolder, "folder/f1", payload, "corr-2")
	require.Error(t, err)
	assert.True(t, customerrors.IsAlreadyExist(err))

	// same key in another shard is fine
	_, err = e.Create(ctx, 2, client.CheckpointMailFolder, "folder/f1", payload, "corr-3")
	require.NoError(t, err)
}

func TestCreateRejectsMismatchedPayload(t *testing.T) {
	e := NewEngine(newFakeCheckpointStore())

	_, err := e.Create(context.Background(), 1, client.CheckpointOneDrive,
		"drive/d1", MailFolderPayload{FolderId: "f1"}, "")
	require.Error(t, err)
	assert.True(t, customerrors.IsBadRequest(err))
}

func TestUpdateShallowMerge(t *testing.T) {
	e := NewEngine(newFakeCheckpointStore())
	ctx := context.Background()

	cp, err := e.Create(ctx, 1, client.CheckpointOneDrive, "drive/d1",
		OneDrivePayload{DriveId: "d1", ItemsInDrive: 500}, "")
	require.NoError(t, err)

	updated, err := e.Update(ctx, cp.Id, []byte(`{"deltaToken":"tok-123"}`))
	require.NoError(t, err)

	var payload OneDrivePayload
	require.NoError(t, json.Unmarshal(updated.Payload, &payload))
	assert.Equal(t, "d1", payload.DriveId)
	assert.Equal(t, "tok-123", payload.DeltaToken)
	assert.Equal(t, int64(500), payload.ItemsInDrive)
}

func TestCompletedCheckpointIsImmutable(t *testing.T) {
	store := newFakeCheckpointStore()
	e := NewEngine(store)
	ctx := context.Background()

	cp, err := e.Create(ctx, 1, client.CheckpointBatch, "batch/0",
		BatchPayload{BatchIndex: 0}, "")
	require.NoError(t, err)

	require.NoError(t, e.Complete(ctx, cp.Id, 42, 4096))

	_, err = e.Update(ctx, cp.Id, []byte(`{"batchIndex":1}`))
	require.Error(t, err)
	assert.True(t, customerrors.IsCheckpointCompleted(err))

	// completing again is a no-op, not an error
	require.NoError(t, e.Complete(ctx, cp.Id, 42, 4096))

	row, err := store.GetCheckpoint(ctx, cp.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(42), row.ItemsProcessed)
}

func TestResumeSetSkipsCompleted(t *testing.T) {
	e := NewEngine(newFakeCheckpointStore())
	ctx := context.Background()

	first, err := e.Create(ctx, 3, client.CheckpointMailFolder, "folder/a",
		MailFolderPayload{FolderId: "a", ItemsInFolder: 10}, "")
	require.NoError(t, err)
	_, err = e.Create(ctx, 3, client.CheckpointMailFolder, "folder/b",
		MailFolderPayload{FolderId: "b", ItemsInFolder: 20}, "")
	require.NoError(t, err)

	require.NoError(t, e.Complete(ctx, first.Id, 10, 1000))

	resume, err := e.ResumeSet(ctx, 3)
	require.NoError(t, err)
	require.Len(t, resume, 1)
	assert.Equal(t, "folder/b", resume[0].CheckpointKey)

	items, bytes, err := e.CompletedItems(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(10), items)
	assert.Equal(t, int64(1000), bytes)
}

func TestValidate(t *testing.T) {
	store := newFakeCheckpointStore()
	e := NewEngine(store)
	ctx := context.Background()

	cp, err := e.Create(ctx, 5, client.CheckpointTeams, "team/t1/c1",
		TeamsPayload{TeamId: "t1", ChannelId: "c1", ItemsInChannel: 30}, "")
	require.NoError(t, err)

	result, err := e.Validate(ctx, 5)
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// corrupt the stored payload behind the engine's back
	store.rows[cp.Id].Payload = []byte(`{"teamId":`)
	result, err = e.Validate(ctx, 5)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
}

func TestValidateOverclaimedItems(t *testing.T) {
	store := newFakeCheckpointStore()
	e := NewEngine(store)
	ctx := context.Background()

	cp, err := e.Create(ctx, 6, client.CheckpointMailFolder, "folder/x",
		MailFolderPayload{FolderId: "x", ItemsInFolder: 10}, "")
	require.NoError(t, err)
	require.NoError(t, e.Complete(ctx, cp.Id, 25, 100)) // more than declared

	result, err := e.Validate(ctx, 6)
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
