/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
)

// fakeMessageStore mirrors the postgres queue semantics in memory.
type fakeMessageStore struct {
	mu   sync.Mutex
	rows []*client.QueueMessage
}

func (f *fakeMessageStore) PublishMessage(_ context.Context, msg *client.QueueMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *msg
	copied.CreatedAt = dbutils.NullTime(time.Now().UTC().Add(time.Duration(len(f.rows)) * time.Millisecond))
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *fakeMessageStore) GetMessage(_ context.Context, messageId string) (*client.QueueMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.MessageId == messageId {
			copied := *row
			return &copied, nil
		}
	}
	return nil, customerrors.NewNotFoundWithMessage("message " + messageId + " not found")
}

func (f *fakeMessageStore) ClaimMessage(_ context.Context, topics []string, consumerId string, processTimeout time.Duration) (*client.QueueMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	topicSet := map[string]bool{}
	for _, t := range topics {
		topicSet[t] = true
	}
	var candidates []*client.QueueMessage
	for _, row := range f.rows {
		if row.Status == client.MessagePending && (len(topicSet) == 0 || topicSet[row.Topic]) {
			candidates = append(candidates, row)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Time.Before(candidates[j].CreatedAt.Time)
	})
	row := candidates[0]
	now := time.Now().UTC()
	row.Status = client.MessageProcessing
	row.ConsumerId = dbutils.NullString(consumerId)
	row.ClaimedAt = dbutils.NullTime(now)
	row.TimeoutAt = dbutils.NullTime(now.Add(processTimeout))
	copied := *row
	return &copied, nil
}

func (f *fakeMessageStore) CompleteMessage(_ context.Context, messageId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.MessageId == messageId && row.Status == client.MessageProcessing {
			row.Status = client.MessageCompleted
			row.CompletedAt = dbutils.NullTime(time.Now().UTC())
			return nil
		}
	}
	return customerrors.NewNotFoundWithMessage("message " + messageId + " is not processing")
}

func (f *fakeMessageStore) FailMessage(_ context.Context, messageId, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.MessageId == messageId {
			row.RetryCount++
			row.Error = dbutils.NullString(errMsg)
			row.ConsumerId = dbutils.NullString("")
			if row.RetryCount < row.MaxRetries {
				row.Status = client.MessagePending
			} else {
				row.Status = client.MessageFailed
			}
			return nil
		}
	}
	return nil
}

func (f *fakeMessageStore) SelectMessages(_ context.Context, query sqrl.Sqlizer, _, _ int) ([]*client.QueueMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	topic := ""
	if len(args) > 0 {
		topic, _ = args[0].(string)
	}
	var out []*client.QueueMessage
	for _, row := range f.rows {
		if topic == "" || row.Topic == topic {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) HandleMessageTimeouts(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if row.Status == client.MessageProcessing && row.TimeoutAt.Time.Before(now) {
			row.RetryCount++
			if row.RetryCount < row.MaxRetries {
				row.Status = client.MessagePending
			} else {
				row.Status = client.MessageFailed
			}
			row.ConsumerId = dbutils.NullString("")
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageStore) CleanupMessages(_ context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var kept []*client.QueueMessage
	removed := 0
	for _, row := range f.rows {
		terminal := row.Status == client.MessageCompleted || row.Status == client.MessageFailed
		if terminal && row.CreatedAt.Time.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	f.rows = kept
	return removed, nil
}

func newTestQueue(store Store) *Queue {
	return &Queue{
		store:          store,
		triggerTopic:   "bulk-trigger",
		statusTopic:    "bulk-status",
		processTimeout: 10 * time.Minute,
		pollInterval:   time.Second,
		maxRetries:     3,
		retention:      time.Hour,
	}
}

func TestTriggerRoundTrip(t *testing.T) {
	store := &fakeMessageStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	msgId, err := q.PublishTrigger(ctx, &TriggerMessage{
		JobId:     1,
		ShardId:   11,
		Custodian: "a@x",
		JobType:   client.JobTypeEmail,
		StartDate: "2024-01-01",
		EndDate:   "2024-01-31",
	}, 5)
	require.NoError(t, err)
	require.NotEmpty(t, msgId)

	raw, trigger, err := q.ClaimTrigger(ctx, "pipeline-1")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, msgId, raw.MessageId)
	assert.Equal(t, int64(11), trigger.ShardId)
	assert.Equal(t, "2024-01-01", trigger.StartDate)
	assert.Equal(t, "2024-01-31", trigger.EndDate)
	assert.NotEmpty(t, trigger.CorrelationId)

	require.NoError(t, q.Complete(ctx, raw.MessageId))

	// queue drained
	raw, _, err = q.ClaimTrigger(ctx, "pipeline-1")
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestStatusClaimPriority(t *testing.T) {
	store := &fakeMessageStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	_, err := q.PublishStatus(ctx, &StatusMessage{ShardId: 1, State: StatusRunning, CorrelationId: "c1"})
	require.NoError(t, err)
	_, err = q.PublishStatus(ctx, &StatusMessage{ShardId: 1, State: StatusSucceeded, DatasetUrl: "s3://ds/1", CorrelationId: "c1"})
	require.NoError(t, err)

	raw, status, err := q.ClaimStatus(ctx, "orchestrator")
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.Equal(t, StatusRunning, status.State) // oldest first

	require.NoError(t, q.Complete(ctx, raw.MessageId))

	raw, status, err = q.ClaimStatus(ctx, "orchestrator")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status.State)
	assert.Equal(t, "s3://ds/1", status.DatasetUrl)
	require.NoError(t, q.Complete(ctx, raw.MessageId))
}

func TestPublishStatusRejectsUnknownState(t *testing.T) {
	q := newTestQueue(&fakeMessageStore{})
	_, err := q.PublishStatus(context.Background(), &StatusMessage{ShardId: 1, State: "exploded"})
	require.Error(t, err)
	assert.True(t, customerrors.IsBadRequest(err))
}

func TestFailReturnsToPendingUntilBudgetSpent(t *testing.T) {
	store := &fakeMessageStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	msgId, err := q.PublishTrigger(ctx, &TriggerMessage{JobId: 1, ShardId: 2}, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		raw, _, err := q.ClaimTrigger(ctx, "pipeline-1")
		require.NoError(t, err)
		require.NotNil(t, raw)
		require.NoError(t, q.Fail(ctx, raw.MessageId, "upstream 500"))
	}

	raw, _, err := q.ClaimTrigger(ctx, "pipeline-1")
	require.NoError(t, err)
	require.NotNil(t, raw)
	require.NoError(t, q.Fail(ctx, raw.MessageId, "upstream 500 again"))

	// third failure exhausted the budget of 3
	raw, _, err = q.ClaimTrigger(ctx, "pipeline-1")
	require.NoError(t, err)
	assert.Nil(t, raw)

	msg, err := store.GetMessage(ctx, msgId)
	require.NoError(t, err)
	assert.Equal(t, client.MessageFailed, msg.Status)
}

func TestTimeoutsReturnMessages(t *testing.T) {
	store := &fakeMessageStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	_, err := q.PublishTrigger(ctx, &TriggerMessage{JobId: 1, ShardId: 3}, 0)
	require.NoError(t, err)
	raw, _, err := q.ClaimTrigger(ctx, "pipeline-1")
	require.NoError(t, err)
	require.NotNil(t, raw)

	count, err := store.HandleMessageTimeouts(ctx, time.Now().UTC().Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reclaimed, _, err := q.ClaimTrigger(ctx, "pipeline-2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	assert.Equal(t, raw.MessageId, reclaimed.MessageId)
	assert.Equal(t, 1, reclaimed.RetryCount)
}

func TestStatusesForShard(t *testing.T) {
	store := &fakeMessageStore{}
	q := newTestQueue(store)
	ctx := context.Background()

	for _, m := range []*StatusMessage{
		{ShardId: 5, State: StatusRunning},
		{ShardId: 6, State: StatusRunning},
		{ShardId: 5, State: StatusSucceeded, DatasetUrl: "s3://ds/5"},
	} {
		_, err := q.PublishStatus(ctx, m)
		require.NoError(t, err)
	}

	statuses, err := q.StatusesForShard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, StatusSucceeded, statuses[1].State)
}
