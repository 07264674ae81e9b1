/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/planner"
	"github.com/AMD-AIG-AIMA/Custos/pkg/router"
)

type fakeLifecycleStore struct {
	mu      sync.Mutex
	matters map[int64]*client.Matter
	jobs    map[int64]*client.Job
	shards  map[int64]*client.Shard
	logs    []*client.JobLog
	nextId  int64

	staleCursors int
}

func newFakeLifecycleStore() *fakeLifecycleStore {
	return &fakeLifecycleStore{
		matters: map[int64]*client.Matter{},
		jobs:    map[int64]*client.Job{},
		shards:  map[int64]*client.Shard{},
	}
}

func (f *fakeLifecycleStore) GetMatter(_ context.Context, id int64) (*client.Matter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matters[id]
	if !ok {
		return nil, customerrors.NewNotFound(customerrors.MatterKind, "matter")
	}
	copied := *m
	return &copied, nil
}

func (f *fakeLifecycleStore) InsertJob(_ context.Context, job *client.Job) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextId++
	copied := *job
	copied.Id = f.nextId
	f.jobs[copied.Id] = &copied
	return copied.Id, nil
}

func (f *fakeLifecycleStore) GetJob(_ context.Context, id int64) (*client.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, customerrors.NewNotFound(customerrors.JobKind, "job")
	}
	copied := *j
	return &copied, nil
}

func (f *fakeLifecycleStore) SelectJobs(_ context.Context, query sqrl.Sqlizer, _, _ string, _, _ int) ([]*client.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	status, _ := args[0].(string)
	var out []*client.Job
	for _, j := range f.jobs {
		if j.Status == status {
			copied := *j
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLifecycleStore) SetJobStatus(_ context.Context, id int64, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return customerrors.NewNotFound(customerrors.JobKind, "job")
	}
	if j.Status != from {
		return customerrors.NewInvalidJobTransition(j.Status, to)
	}
	j.Status = to
	return nil
}

func (f *fakeLifecycleStore) SetJobStarted(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].StartedAt = dbutils.NullTime(time.Now().UTC())
	return nil
}

func (f *fakeLifecycleStore) SetJobEnded(_ context.Context, id int64, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.Status = status
	j.EndedAt = dbutils.NullTime(time.Now().UTC())
	j.Error = dbutils.NullString(errMsg)
	return nil
}

func (f *fakeLifecycleStore) SetJobActuals(_ context.Context, id int64, actualBytes, actualItems int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.ActualBytes = actualBytes
	j.ActualItems = actualItems
	return nil
}

func (f *fakeLifecycleStore) InsertShardsWithJob(_ context.Context, job *client.Job, shards []*client.Shard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, shard := range shards {
		f.nextId++
		copied := *shard
		copied.Id = f.nextId
		copied.ParentJobId = job.Id
		f.shards[copied.Id] = &copied
	}
	f.jobs[job.Id].Status = client.JobRunning
	return nil
}

func (f *fakeLifecycleStore) SelectShards(_ context.Context, query sqrl.Sqlizer, _ []string, _, _ int) ([]*client.Shard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	jobId, _ := args[0].(int64)
	var out []*client.Shard
	for _, s := range f.shards {
		if s.ParentJobId == jobId {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLifecycleStore) CancelShardsOfJob(_ context.Context, jobId int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.shards {
		if s.ParentJobId == jobId && !client.IsTerminalShardStatus(s.Status) {
			s.Status = client.ShardCancelled
			s.AssignedWorker = dbutils.NullString("")
			s.LeaseToken = dbutils.NullString("")
			count++
		}
	}
	return count, nil
}

func (f *fakeLifecycleStore) AppendJobLog(_ context.Context, log *client.JobLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeLifecycleStore) DeactivateStaleCursors(_ context.Context, _ time.Time, _ int) (int, error) {
	return f.staleCursors, nil
}

func (f *fakeLifecycleStore) logsOf(category string) []*client.JobLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*client.JobLog
	for _, log := range f.logs {
		if log.Category == category {
			out = append(out, log)
		}
	}
	return out
}

func testPlannerConfig() *planner.Config {
	return &planner.Config{
		MaxWindowDays:   30,
		MaxShardBytes:   50 << 30,
		MaxShardItems:   250000,
		MaxPerCustodian: 12,
		AlignCalendar:   true,
		MinWindowDays:   1,
		MaxTotalShards:  500,
		MaxRetries:      3,
	}
}

func newManagerUnderTest(store *fakeLifecycleStore) *Manager {
	rt := router.New(router.NewProfileStore())
	pl := planner.New(testPlannerConfig(), nil)
	quotas := NewQuotaTracker(100<<30, 500000)
	return NewManager(store, rt, pl, quotas)
}

func activeMatter(store *fakeLifecycleStore) {
	store.matters[1] = &client.Matter{Id: 1, Name: "smith-v-jones", CaseNumber: "CV-1", IsActive: true}
}

func createRequest() *CreateJobRequest {
	return &CreateJobRequest{
		MatterId:  1,
		Custodian: "alice@example.com",
		JobType:   client.JobTypeEmail,
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Priority:  3,
	}
}

func TestCreateJobRoutesAndAudits(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	m := newManagerUnderTest(store)

	job, decision, err := m.CreateJob(context.Background(), createRequest())
	require.NoError(t, err)
	assert.Equal(t, client.JobPending, job.Status)
	assert.Equal(t, decision.Route, job.Route.String)
	assert.NotEmpty(t, job.RouteReason.String)
	assert.Equal(t, 3, job.Priority)
	assert.Equal(t, decision.EstimatedBytes, job.EstimatedBytes)

	audits := store.logsOf(client.CategoryAutoRouter)
	require.Len(t, audits, 1)
	assert.Equal(t, job.Id, audits[0].JobId)
	assert.NotEmpty(t, audits[0].Details.String)
}

func TestCreateJobValidation(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	store.matters[2] = &client.Matter{Id: 2, Name: "closed", CaseNumber: "CV-2", IsActive: false}
	m := newManagerUnderTest(store)
	ctx := context.Background()

	req := createRequest()
	req.JobType = "Carrier-Pigeon"
	_, _, err := m.CreateJob(ctx, req)
	require.Error(t, err)
	assert.True(t, customerrors.IsBadRequest(err))

	req = createRequest()
	req.MatterId = 99
	_, _, err = m.CreateJob(ctx, req)
	require.Error(t, err)
	assert.True(t, customerrors.IsNotFound(err))

	req = createRequest()
	req.MatterId = 2
	_, _, err = m.CreateJob(ctx, req)
	require.Error(t, err)
	assert.Equal(t, customerrors.Forbidden, customerrors.GetErrorCode(err))
}

func TestStartJobPlansShards(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	m := newManagerUnderTest(store)
	ctx := context.Background()

	job, _, err := m.CreateJob(ctx, createRequest())
	require.NoError(t, err)

	shards, err := m.StartJob(ctx, job.Id)
	require.NoError(t, err)
	require.NotEmpty(t, shards)

	started, err := store.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, client.JobRunning, started.Status)
	assert.Len(t, store.shards, len(shards))
	for i, shard := range shards {
		assert.Equal(t, i, shard.ShardIndex)
		assert.Equal(t, client.ShardPending, shard.Status)
	}
	require.Len(t, store.logsOf(client.CategoryPlanner), 1)

	// second start is an invalid transition
	_, err = m.StartJob(ctx, job.Id)
	require.Error(t, err)
}

func TestStartJobFailsOnEmptyRange(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	m := newManagerUnderTest(store)
	ctx := context.Background()

	req := createRequest()
	req.EndDate = req.StartDate
	job, _, err := m.CreateJob(ctx, req)
	require.NoError(t, err)

	_, err = m.StartJob(ctx, job.Id)
	require.Error(t, err)
	assert.Equal(t, customerrors.EmptyPlan, customerrors.GetErrorCode(err))

	failed, err := store.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, client.JobFailed, failed.Status)
}

func seedRunningJob(store *fakeLifecycleStore, shardStatuses []string) int64 {
	store.nextId++
	jobId := store.nextId
	store.jobs[jobId] = &client.Job{
		Id: jobId, MatterId: 1, CustodianEmail: "alice@example.com",
		JobType: client.JobTypeEmail, Status: client.JobRunning,
	}
	for i, status := range shardStatuses {
		store.nextId++
		store.shards[store.nextId] = &client.Shard{
			Id: store.nextId, ParentJobId: jobId, ShardIndex: i,
			Status: status, ActualBytes: 100, ActualItems: 10,
		}
	}
	return jobId
}

func TestFinalizeJobOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		done     bool
		outcome  string
		items    int64
	}{
		{"all completed", []string{client.ShardCompleted, client.ShardCompleted}, true, client.JobCompleted, 20},
		{"mixed", []string{client.ShardCompleted, client.ShardFailed}, true, client.JobPartiallyCompleted, 10},
		{"partial shard degrades", []string{client.ShardCompleted, client.ShardPartiallyCompleted}, true, client.JobPartiallyCompleted, 20},
		{"only partial shards", []string{client.ShardPartiallyCompleted, client.ShardPartiallyCompleted}, true, client.JobPartiallyCompleted, 20},
		{"none completed", []string{client.ShardFailed, client.ShardCancelled}, true, client.JobFailed, 0},
		{"outstanding", []string{client.ShardCompleted, client.ShardRunning}, false, client.JobRunning, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeLifecycleStore()
			activeMatter(store)
			m := newManagerUnderTest(store)
			jobId := seedRunningJob(store, tt.statuses)

			done, err := m.FinalizeJob(context.Background(), jobId)
			require.NoError(t, err)
			assert.Equal(t, tt.done, done)

			job := store.jobs[jobId]
			assert.Equal(t, tt.outcome, job.Status)
			if tt.done {
				assert.Equal(t, tt.items, job.ActualItems)
				quota := m.quotas.QuotaFor("alice@example.com")
				assert.Equal(t, tt.items, quota.UsedItems)
			}
		})
	}
}

func TestFinalizeJobIdempotent(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	m := newManagerUnderTest(store)
	jobId := seedRunningJob(store, []string{client.ShardCompleted})

	done, err := m.FinalizeJob(context.Background(), jobId)
	require.NoError(t, err)
	require.True(t, done)

	// a second pass must not double-count quota
	done, err = m.FinalizeJob(context.Background(), jobId)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(10), m.quotas.QuotaFor("alice@example.com").UsedItems)
}

func TestCancelJobCascades(t *testing.T) {
	store := newFakeLifecycleStore()
	activeMatter(store)
	m := newManagerUnderTest(store)
	jobId := seedRunningJob(store, []string{client.ShardPending, client.ShardRunning, client.ShardCompleted})

	require.NoError(t, m.CancelJob(context.Background(), jobId))
	assert.Equal(t, client.JobCancelled, store.jobs[jobId].Status)

	cancelled := 0
	for _, s := range store.shards {
		if s.ParentJobId == jobId && s.Status == client.ShardCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 2, cancelled) // the completed shard stays completed

	// cancelling a terminal job is rejected
	err := m.CancelJob(context.Background(), jobId)
	require.Error(t, err)
}

func TestDeltaSweeperAudits(t *testing.T) {
	store := newFakeLifecycleStore()
	store.staleCursors = 3
	s := &DeltaSweeper{store: store, maxAge: 30 * 24 * time.Hour, maxFailures: 3}

	s.Sweep(context.Background())
	audits := store.logsOf(client.CategoryDeltaCursor)
	require.Len(t, audits, 1)
	assert.Contains(t, audits[0].Message, "3 stale delta cursors")
}
