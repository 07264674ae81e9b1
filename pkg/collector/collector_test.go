/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package collector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/Custos/pkg/queue"
)

type fakeItemStore struct {
	mu    sync.Mutex
	items map[string]*client.CollectedItem
	logs  []*client.JobLog
}

func newFakeItemStore() *fakeItemStore {
	return &fakeItemStore{items: map[string]*client.CollectedItem{}}
}

func (f *fakeItemStore) InsertCollectedItem(_ context.Context, item *client.CollectedItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d|%s", item.ShardId, item.SourceItemId)
	if _, ok := f.items[key]; ok {
		return false, nil
	}
	copied := *item
	f.items[key] = &copied
	return true, nil
}

func (f *fakeItemStore) AppendJobLog(_ context.Context, log *client.JobLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeItemStore) backoffAudits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, log := range f.logs {
		if log.Category == client.CategoryBackoff {
			count++
		}
	}
	return count
}

// scriptedIterator replays a fixed sequence of items and errors.
type scriptedIterator struct {
	events []interface{}
	pos    int
}

func (it *scriptedIterator) Next(_ context.Context) (*SourceItem, error) {
	if it.pos >= len(it.events) {
		return nil, io.EOF
	}
	event := it.events[it.pos]
	it.pos++
	switch v := event.(type) {
	case *SourceItem:
		return v, nil
	case error:
		return nil, v
	}
	return nil, io.EOF
}

type fakeSource struct {
	events []interface{}
	bytes  int64
	items  int64
}

func (s *fakeSource) Estimate(_ context.Context, _ *EstimateRequest) (int64, int64, error) {
	return s.bytes, s.items, nil
}

func (s *fakeSource) Items(_ context.Context, _ *client.Shard, _ []*client.Checkpoint) (ItemIterator, error) {
	return &scriptedIterator{events: s.events}, nil
}

type sinkRecorder struct {
	mu      sync.Mutex
	reports int
	items   int64
	bytes   int64
}

func (s *sinkRecorder) Report(_ context.Context, itemsDelta, bytesDelta int64, _ float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports++
	s.items += itemsDelta
	s.bytes += bytesDelta
	return nil
}

func testShard() *client.Shard {
	return &client.Shard{
		Id:             11,
		ParentJobId:    1,
		ShardIndex:     0,
		CustodianEmail: "alice@example.com",
		JobType:        client.JobTypeEmail,
		Route:          client.RoutePerItemApi,
		Status:         client.ShardRunning,
		EstimatedItems: 10,
		LeaseToken:     dbutils.NullString("token-1"),
	}
}

func sourceItems(ids ...string) []interface{} {
	var events []interface{}
	for _, id := range ids {
		events = append(events, &SourceItem{
			Id:       id,
			Name:     id + ".eml",
			ItemType: "Email",
			Body:     strings.NewReader("payload of " + id),
		})
	}
	return events
}

func newPerItemUnderTest(t *testing.T, store ItemStore, source Source) *PerItemDriver {
	t.Helper()
	fs, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)
	d := NewPerItemDriver(store, fs, source, nil)
	d.throttleInitial = time.Millisecond
	d.throttleMax = 5 * time.Millisecond
	return d
}

func TestPerItemCollect(t *testing.T) {
	store := newFakeItemStore()
	source := &fakeSource{events: sourceItems("m1", "m2", "m3")}
	d := newPerItemUnderTest(t, store, source)
	sink := &sinkRecorder{}

	result, err := d.Collect(context.Background(), testShard(), nil, sink)
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, int64(3), result.Items)
	assert.Len(t, store.items, 3)
	assert.Equal(t, int64(3), sink.items)
	assert.Equal(t, result.Bytes, sink.bytes)

	row := store.items["11|m2"]
	require.NotNil(t, row)
	sum := sha256.Sum256([]byte("payload of m2"))
	assert.Equal(t, hex.EncodeToString(sum[:]), row.Sha256)
	assert.Contains(t, row.ArtifactPath.String, "matter/1/GDC/alice@example.com/")
	assert.True(t, row.IsSuccessful)
}

func TestPerItemIdempotentRecollection(t *testing.T) {
	store := newFakeItemStore()
	d := newPerItemUnderTest(t, store, &fakeSource{events: sourceItems("m1", "m2")})
	ctx := context.Background()

	first, err := d.Collect(ctx, testShard(), nil, &sinkRecorder{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Items)

	// same ids again: every insert is a duplicate
	d.source = &fakeSource{events: sourceItems("m1", "m2")}
	second, err := d.Collect(ctx, testShard(), nil, &sinkRecorder{})
	require.NoError(t, err)
	assert.True(t, second.Ok)
	assert.Equal(t, int64(0), second.Items)
	assert.Len(t, store.items, 2)
}

func TestPerItemAbsorbsThrottling(t *testing.T) {
	store := newFakeItemStore()
	events := []interface{}{
		&Throttled{},
		&Throttled{RetryAfter: 2 * time.Millisecond},
	}
	events = append(events, sourceItems("m1", "m2")...)
	d := newPerItemUnderTest(t, store, &fakeSource{events: events})

	result, err := d.Collect(context.Background(), testShard(), nil, &sinkRecorder{})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, int64(2), result.Items)
	assert.GreaterOrEqual(t, store.backoffAudits(), 2)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("stream reset") }

func TestPerItemRecordsFailedWrites(t *testing.T) {
	store := newFakeItemStore()
	events := sourceItems("m1")
	events = append(events, &SourceItem{Id: "m2", Name: "m2.eml", ItemType: "Email", Body: errReader{}})
	d := newPerItemUnderTest(t, store, &fakeSource{events: events})

	result, err := d.Collect(context.Background(), testShard(), nil, &sinkRecorder{})
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, int64(1), result.Items)
	assert.Equal(t, int64(1), result.FailedItems)
	assert.NotEmpty(t, result.Error)

	failed := store.items["11|m2"]
	require.NotNil(t, failed)
	assert.False(t, failed.IsSuccessful)
	assert.NotEmpty(t, failed.Error.String)
}

// fakeTrigger replays status snapshots per poll.
type fakeTrigger struct {
	mu        sync.Mutex
	published []*queue.TriggerMessage
	snapshots [][]*queue.StatusMessage
	polls     int
}

func (f *fakeTrigger) PublishTrigger(_ context.Context, msg *queue.TriggerMessage, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return "msg-1", nil
}

func (f *fakeTrigger) StatusesForShard(_ context.Context, _ int64) ([]*queue.StatusMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.polls
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	f.polls++
	return f.snapshots[idx], nil
}

func datasetServer(t *testing.T, blobs map[string]string, corruptSha bool) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	var entries []DatasetEntry
	i := 0
	for id, content := range blobs {
		sum := sha256.Sum256([]byte(content))
		declared := hex.EncodeToString(sum[:])
		if corruptSha && i == 0 {
			declared = strings.Repeat("0", 64)
		}
		entries = append(entries, DatasetEntry{
			ItemId:      id,
			Name:        id + ".bin",
			ItemType:    "File",
			SizeBytes:   int64(len(content)),
			Sha256:      declared,
			DownloadUrl: server.URL + "/blob/" + id,
		})
		body := content
		mux.HandleFunc("/blob/"+id, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		})
		i++
	}
	mux.HandleFunc("/dataset", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(entries)
	})
	return server, server.URL + "/dataset"
}

func newBulkUnderTest(t *testing.T, store ItemStore, trigger Trigger) *BulkDriver {
	t.Helper()
	fs, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)
	fetcher := NewFetcher(fs, store)
	return &BulkDriver{trigger: trigger, fetcher: fetcher, pollInterval: 5 * time.Millisecond}
}

func TestBulkCollect(t *testing.T) {
	store := newFakeItemStore()
	_, datasetUrl := datasetServer(t, map[string]string{"b1": "first blob", "b2": "second blob"}, false)

	trigger := &fakeTrigger{snapshots: [][]*queue.StatusMessage{
		{},
		{{ShardId: 11, State: queue.StatusRunning}},
		{{ShardId: 11, State: queue.StatusRunning}, {ShardId: 11, State: queue.StatusSucceeded, DatasetUrl: datasetUrl}},
	}}
	d := newBulkUnderTest(t, store, trigger)

	shard := testShard()
	shard.Route = client.RouteBulkPipeline
	shard.StartDate = dbutils.NullTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	shard.EndDate = dbutils.NullTime(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))

	result, err := d.Collect(context.Background(), shard, nil, &sinkRecorder{})
	require.NoError(t, err)
	assert.True(t, result.Ok)
	assert.Equal(t, int64(2), result.Items)
	assert.Len(t, store.items, 2)

	require.Len(t, trigger.published, 1)
	assert.Equal(t, int64(11), trigger.published[0].ShardId)
	assert.Equal(t, "2024-01-01", trigger.published[0].StartDate)
}

func TestBulkPipelineFailure(t *testing.T) {
	store := newFakeItemStore()
	trigger := &fakeTrigger{snapshots: [][]*queue.StatusMessage{
		{{ShardId: 11, State: queue.StatusFailed, Error: "export job died"}},
	}}
	d := newBulkUnderTest(t, store, trigger)

	_, err := d.Collect(context.Background(), testShard(), nil, &sinkRecorder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export job died")
	assert.Empty(t, store.items)
}

func TestFetcherHashMismatch(t *testing.T) {
	store := newFakeItemStore()
	_, datasetUrl := datasetServer(t, map[string]string{"b1": "tampered"}, true)

	fs, err := artifact.NewFsStore(t.TempDir())
	require.NoError(t, err)
	fetcher := NewFetcher(fs, store)

	result, err := fetcher.FetchDataset(context.Background(), testShard(), datasetUrl, &sinkRecorder{})
	require.NoError(t, err)
	assert.False(t, result.Ok)
	assert.Equal(t, int64(1), result.FailedItems)

	row := store.items["11|b1"]
	require.NotNil(t, row)
	assert.False(t, row.IsSuccessful)
	assert.Contains(t, row.Error.String, "hash mismatch")
}

func TestBulkEstimateScalesWithWindow(t *testing.T) {
	d := &BulkDriver{}
	bytes, items, confidence, err := d.Estimate(context.Background(), &EstimateRequest{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10)*bulkBytesPerDay, bytes)
	assert.Equal(t, int64(10*bulkItemsPerDay), items)
	assert.Equal(t, 60, confidence)
}
