/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/collector"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/scheduler"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"
)

// fakeSchedStore keeps the token-gated lease semantics of the metadata
// client in memory.
type fakeSchedStore struct {
	mu          sync.Mutex
	shards      map[int64]*client.Shard
	extendCalls int
}

func newFakeSchedStore() *fakeSchedStore {
	return &fakeSchedStore{shards: map[int64]*client.Shard{}}
}

func (f *fakeSchedStore) add(s *client.Shard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shards[s.Id] = s
}

func (f *fakeSchedStore) get(id int64) client.Shard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.shards[id]
}

func (f *fakeSchedStore) holds(s *client.Shard, workerId, token string) bool {
	return s != nil && s.AssignedWorker.String == workerId && s.LeaseToken.String == token &&
		(s.Status == client.ShardAssigned || s.Status == client.ShardRunning)
}

func (f *fakeSchedStore) ClaimNextShard(_ context.Context, workerId, leaseToken string, leaseDuration time.Duration) (*client.Shard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.shards {
		if s.Status != client.ShardPending {
			continue
		}
		s.Status = client.ShardAssigned
		s.AssignedWorker = dbutils.NullString(workerId)
		s.LeaseToken = dbutils.NullString(leaseToken)
		s.LeaseExpiresAt = dbutils.NullTime(time.Now().UTC().Add(leaseDuration))
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeSchedStore) ExtendShardLease(_ context.Context, shardId int64, workerId, leaseToken string, until time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shards[shardId]
	if !f.holds(s, workerId, leaseToken) {
		return false, nil
	}
	s.LeaseExpiresAt = dbutils.NullTime(until)
	f.extendCalls++
	return true, nil
}

func (f *fakeSchedStore) ReleaseShardLease(_ context.Context, shardId int64, workerId, leaseToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shards[shardId]
	if !f.holds(s, workerId, leaseToken) {
		return false, nil
	}
	s.Status = client.ShardPending
	s.AssignedWorker = dbutils.NullString("")
	s.LeaseToken = dbutils.NullString("")
	return true, nil
}

func (f *fakeSchedStore) CompleteShard(_ context.Context, shardId int64, workerId, leaseToken string, summary *client.ShardSummary) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shards[shardId]
	if !f.holds(s, workerId, leaseToken) {
		return false, nil
	}
	s.Status = summary.Status
	s.ActualBytes = summary.ActualBytes
	s.ActualItems = summary.ActualItems
	s.Error = dbutils.NullString(summary.Error)
	return true, nil
}

func (f *fakeSchedStore) RetryShard(_ context.Context, shardId int64, _ string) (bool, error) {
	return false, nil
}

func (f *fakeSchedStore) ReapExpiredShards(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (f *fakeSchedStore) SetShardRunning(_ context.Context, shardId int64, workerId, leaseToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shards[shardId]
	if !f.holds(s, workerId, leaseToken) {
		return false, nil
	}
	s.Status = client.ShardRunning
	return true, nil
}

func (f *fakeSchedStore) UpdateShardProgress(_ context.Context, shardId int64, workerId, leaseToken string, itemsDelta, bytesDelta int64, progressPct float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.shards[shardId]
	if !f.holds(s, workerId, leaseToken) {
		return false, nil
	}
	s.ActualItems += itemsDelta
	s.ActualBytes += bytesDelta
	s.ProgressPct = progressPct
	return true, nil
}

// fakeCollector returns a scripted result and records what it ran.
type fakeCollector struct {
	mu     sync.Mutex
	result *collector.Result
	err    error
	block  chan struct{} // when set, Collect waits for ctx or close
	ran    []int64
}

func (f *fakeCollector) Estimate(context.Context, *collector.EstimateRequest) (int64, int64, int, error) {
	return 0, 0, 0, nil
}

func (f *fakeCollector) Collect(ctx context.Context, shard *client.Shard, _ []*client.Checkpoint, sink collector.ProgressSink) (*collector.Result, error) {
	f.mu.Lock()
	f.ran = append(f.ran, shard.Id)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.block:
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil && sink != nil {
		_ = sink.Report(ctx, f.result.Items, f.result.Bytes, 100)
	}
	return f.result, f.err
}

func (f *fakeCollector) shardsRun() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ran...)
}

type fakeNotifier struct {
	mu   sync.Mutex
	jobs []int64
}

func (f *fakeNotifier) Enqueue(jobId int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobId)
}

func (f *fakeNotifier) enqueued() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.jobs...)
}

func pendingShard(id, jobId int64, route string) *client.Shard {
	return &client.Shard{
		Id:             id,
		ParentJobId:    jobId,
		ShardIndex:     0,
		TotalShards:    1,
		CustodianEmail: "alice@example.com",
		JobType:        client.JobTypeEmail,
		Route:          route,
		Status:         client.ShardPending,
		StartDate:      dbutils.NullTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		EndDate:        dbutils.NullTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)),
		EstimatedItems: 10,
	}
}

func newPoolUnderTest(store *fakeSchedStore, perItem, bulk collector.Collector, lease time.Duration) (*Pool, *fakeNotifier) {
	notifier := &fakeNotifier{}
	p := &Pool{
		sched:        scheduler.NewWithClock(store, clock.RealClock{}, lease, time.Minute),
		perItem:      perItem,
		bulk:         bulk,
		notifier:     notifier,
		workerId:     "worker-test-1",
		pollInterval: 10 * time.Millisecond,
		leaseSlack:   0,
		slots:        2,
		sem:          semaphore.NewWeighted(2),
		now:          time.Now,
	}
	return p, notifier
}

func TestExecuteCompletesShard(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(1, 7, client.RoutePerItemApi))
	coll := &fakeCollector{result: &collector.Result{Ok: true, Items: 5, Bytes: 500}}
	p, notifier := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)
	require.NotNil(t, shard)

	p.execute(context.Background(), shard)

	done := store.get(1)
	assert.Equal(t, client.ShardCompleted, done.Status)
	assert.Equal(t, int64(500), done.ActualBytes)
	assert.Equal(t, []int64{1}, coll.shardsRun())
	assert.Equal(t, []int64{7}, notifier.enqueued())
}

func TestExecutePartialCompletion(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(2, 7, client.RoutePerItemApi))
	coll := &fakeCollector{result: &collector.Result{Ok: false, Items: 8, Bytes: 800, FailedItems: 2}}
	p, _ := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)
	p.execute(context.Background(), shard)

	done := store.get(2)
	assert.Equal(t, client.ShardPartiallyCompleted, done.Status)
	assert.Contains(t, done.Error.String, "2 items failed")
}

func TestExecuteCollectorErrorFailsShard(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(3, 9, client.RoutePerItemApi))
	coll := &fakeCollector{err: customerrors.NewInternalError("mailbox unreachable")}
	p, notifier := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)
	p.execute(context.Background(), shard)

	done := store.get(3)
	assert.Equal(t, client.ShardFailed, done.Status)
	assert.NotEmpty(t, done.Error.String)
	assert.Equal(t, []int64{9}, notifier.enqueued())
}

func TestExecuteReleasesOnCancellation(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(4, 9, client.RoutePerItemApi))
	coll := &fakeCollector{block: make(chan struct{})}
	p, notifier := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	p.execute(ctx, shard)

	released := store.get(4)
	assert.Equal(t, client.ShardPending, released.Status)
	assert.Empty(t, released.LeaseToken.String)
	assert.Empty(t, notifier.enqueued())
}

func TestExecuteDiscardsOnStaleLease(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(5, 9, client.RoutePerItemApi))
	coll := &fakeCollector{result: &collector.Result{Ok: true, Items: 1}}
	p, notifier := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)

	// another worker reclaimed the shard after a reap
	store.mu.Lock()
	store.shards[5].LeaseToken = dbutils.NullString("someone-elses-token")
	store.mu.Unlock()

	p.execute(context.Background(), shard)

	assert.Empty(t, coll.shardsRun(), "stale lease must abort before collection")
	assert.Empty(t, notifier.enqueued())
}

func TestHeartbeatExtendsLease(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(6, 9, client.RoutePerItemApi))
	coll := &fakeCollector{block: make(chan struct{}), result: &collector.Result{Ok: true}}
	p, _ := newPoolUnderTest(store, coll, &fakeCollector{}, 90*time.Millisecond)

	shard, err := p.sched.ClaimNext(context.Background(), p.workerId)
	require.NoError(t, err)

	go func() {
		time.Sleep(120 * time.Millisecond)
		close(coll.block)
	}()
	p.execute(context.Background(), shard)

	store.mu.Lock()
	extends := store.extendCalls
	store.mu.Unlock()
	assert.GreaterOrEqual(t, extends, 2)
	assert.Equal(t, client.ShardCompleted, store.get(6).Status)
}

func TestDriverDispatchByRoute(t *testing.T) {
	perItem, bulk := &fakeCollector{}, &fakeCollector{}
	p, _ := newPoolUnderTest(newFakeSchedStore(), perItem, bulk, time.Minute)

	assert.Same(t, perItem, p.driverFor(pendingShard(1, 1, client.RoutePerItemApi)))
	assert.Same(t, bulk, p.driverFor(pendingShard(2, 1, client.RouteBulkPipeline)))

	recent := pendingShard(3, 1, client.RouteHybrid)
	recent.EndDate = dbutils.NullTime(time.Now().UTC().AddDate(0, 0, -3))
	assert.Same(t, perItem, p.driverFor(recent))

	historical := pendingShard(4, 1, client.RouteHybrid)
	historical.EndDate = dbutils.NullTime(time.Now().UTC().AddDate(0, 0, -90))
	assert.Same(t, bulk, p.driverFor(historical))
}

func TestRunClaimsAndDrains(t *testing.T) {
	store := newFakeSchedStore()
	store.add(pendingShard(10, 1, client.RoutePerItemApi))
	store.add(pendingShard(11, 1, client.RoutePerItemApi))
	coll := &fakeCollector{result: &collector.Result{Ok: true, Items: 1, Bytes: 10}}
	p, _ := newPoolUnderTest(store, coll, &fakeCollector{}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return store.get(10).Status == client.ShardCompleted &&
			store.get(11).Status == client.ShardCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not drain and return after cancellation")
	}
}
