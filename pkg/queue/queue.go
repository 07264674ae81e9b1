/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package queue carries the bulk-pipeline trigger and status traffic over
// the postgres-backed message table.
package queue

import (
	"context"
	"fmt"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/clock"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// bulk run states carried by StatusMessage
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// TriggerMessage asks the external bulk pipeline to collect one shard.
// Dates travel date-only (2006-01-02); the pipeline owns its own clock.
type TriggerMessage struct {
	JobId         int64  `json:"jobId"`
	ShardId       int64  `json:"shardId"`
	Custodian     string `json:"custodian"`
	JobType       string `json:"jobType"`
	StartDate     string `json:"startDate"`
	EndDate       string `json:"endDate"`
	OutputPrefix  string `json:"outputPrefix,omitempty"`
	CorrelationId string `json:"correlationId"`
}

// StatusMessage reports bulk run progress back to the orchestrator. A
// succeeded run names the dataset the binary fetcher walks.
type StatusMessage struct {
	ShardId       int64  `json:"shardId"`
	State         string `json:"state"`
	DatasetUrl    string `json:"datasetUrl,omitempty"`
	ItemsReady    int64  `json:"itemsReady"`
	BytesReady    int64  `json:"bytesReady"`
	Error         string `json:"error,omitempty"`
	CorrelationId string `json:"correlationId"`
}

// Store is the message slice of the metadata client.
type Store interface {
	PublishMessage(ctx context.Context, msg *client.QueueMessage) error
	GetMessage(ctx context.Context, messageId string) (*client.QueueMessage, error)
	ClaimMessage(ctx context.Context, topics []string, consumerId string, processTimeout time.Duration) (*client.QueueMessage, error)
	CompleteMessage(ctx context.Context, messageId string) error
	FailMessage(ctx context.Context, messageId, errMsg string) error
	SelectMessages(ctx context.Context, query sqrl.Sqlizer, limit, offset int) ([]*client.QueueMessage, error)
	HandleMessageTimeouts(ctx context.Context, now time.Time) (int, error)
	CleanupMessages(ctx context.Context, olderThan time.Duration) (int, error)
}

type Queue struct {
	store          Store
	triggerTopic   string
	statusTopic    string
	processTimeout time.Duration
	pollInterval   time.Duration
	maxRetries     int
	retention      time.Duration
}

func New(store Store) *Queue {
	return &Queue{
		store:          store,
		triggerTopic:   config.GetQueueTriggerTopic(),
		statusTopic:    config.GetQueueStatusTopic(),
		processTimeout: time.Duration(config.GetQueueProcessTimeoutSecond()) * time.Second,
		pollInterval:   time.Duration(config.GetQueuePollIntervalSecond()) * time.Second,
		maxRetries:     config.GetQueueMaxRetries(),
		retention:      time.Duration(config.GetQueueRetentionHour()) * time.Hour,
	}
}

// PublishTrigger enqueues a bulk run request. Priority mirrors the parent
// job's so urgent collections trigger first.
func (q *Queue) PublishTrigger(ctx context.Context, msg *TriggerMessage, priority int) (string, error) {
	if msg.CorrelationId == "" {
		msg.CorrelationId = clock.NewCorrelationId()
	}
	return q.publish(ctx, q.triggerTopic, json.MarshalSilently(msg), priority)
}

// PublishStatus enqueues a bulk run status report.
func (q *Queue) PublishStatus(ctx context.Context, msg *StatusMessage) (string, error) {
	if msg.State != StatusRunning && msg.State != StatusSucceeded && msg.State != StatusFailed {
		return "", customerrors.NewBadRequest(fmt.Sprintf("unknown bulk status state %q", msg.State))
	}
	return q.publish(ctx, q.statusTopic, json.MarshalSilently(msg), 0)
}

func (q *Queue) publish(ctx context.Context, topic string, payload []byte, priority int) (string, error) {
	if len(payload) == 0 {
		return "", customerrors.NewBadRequest("empty message payload")
	}
	messageId := clock.NewCorrelationId()
	err := q.store.PublishMessage(ctx, &client.QueueMessage{
		MessageId:  messageId,
		Topic:      topic,
		Status:     client.MessagePending,
		Priority:   priority,
		Payload:    payload,
		MaxRetries: q.maxRetries,
	})
	if err != nil {
		return "", err
	}
	metrics.QueueMessagesPublished.WithLabelValues(topic).Inc()
	return messageId, nil
}

// ClaimStatus claims the next pending status message, if any, and decodes
// its payload. The caller must Complete or Fail the message id.
func (q *Queue) ClaimStatus(ctx context.Context, consumerId string) (*client.QueueMessage, *StatusMessage, error) {
	raw, err := q.store.ClaimMessage(ctx, []string{q.statusTopic}, consumerId, q.processTimeout)
	if err != nil || raw == nil {
		return nil, nil, err
	}
	status := &StatusMessage{}
	if err = json.Unmarshal(raw.Payload, status); err != nil {
		// poison message; fail it so the retry budget eventually buries it
		_ = q.store.FailMessage(ctx, raw.MessageId, fmt.Sprintf("undecodable status payload: %v", err))
		return nil, nil, customerrors.NewBadRequest(fmt.Sprintf("undecodable status payload: %v", err))
	}
	return raw, status, nil
}

// ClaimTrigger claims the next pending trigger message. Exercised by the
// embedded pipeline stub and by external pipeline pollers.
func (q *Queue) ClaimTrigger(ctx context.Context, consumerId string) (*client.QueueMessage, *TriggerMessage, error) {
	raw, err := q.store.ClaimMessage(ctx, []string{q.triggerTopic}, consumerId, q.processTimeout)
	if err != nil || raw == nil {
		return nil, nil, err
	}
	trigger := &TriggerMessage{}
	if err = json.Unmarshal(raw.Payload, trigger); err != nil {
		_ = q.store.FailMessage(ctx, raw.MessageId, fmt.Sprintf("undecodable trigger payload: %v", err))
		return nil, nil, customerrors.NewBadRequest(fmt.Sprintf("undecodable trigger payload: %v", err))
	}
	return raw, trigger, nil
}

// Complete acknowledges a claimed message.
func (q *Queue) Complete(ctx context.Context, messageId string) error {
	return q.store.CompleteMessage(ctx, messageId)
}

// Fail records a processing failure; the message returns to pending while
// its retry budget lasts.
func (q *Queue) Fail(ctx context.Context, messageId, errMsg string) error {
	return q.store.FailMessage(ctx, messageId, errMsg)
}

// StatusesForShard returns the status messages observed for one shard,
// oldest first. Used when driving a bulk collect call.
func (q *Queue) StatusesForShard(ctx context.Context, shardId int64) ([]*StatusMessage, error) {
	msgs, err := q.store.SelectMessages(ctx, sqrl.Eq{"topic": q.statusTopic}, -1, 0)
	if err != nil {
		return nil, err
	}
	var out []*StatusMessage
	for _, msg := range msgs {
		status := &StatusMessage{}
		if err = json.Unmarshal(msg.Payload, status); err != nil {
			klog.Warningf("skipping undecodable status message %s: %v", msg.MessageId, err)
			continue
		}
		if status.ShardId == shardId {
			out = append(out, status)
		}
	}
	return out, nil
}

// RunTimeoutHandler returns timed-out processing messages to pending on
// the poll interval until ctx is cancelled.
func (q *Queue) RunTimeoutHandler(ctx context.Context) {
	klog.Infof("queue timeout handler started, interval %s", q.pollInterval)
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		count, err := q.store.HandleMessageTimeouts(ctx, time.Now().UTC())
		if err != nil {
			klog.ErrorS(err, "failed to handle queue timeouts")
			return
		}
		if count > 0 {
			metrics.QueueMessageTimeouts.Add(float64(count))
			klog.Infof("returned %d timed-out messages to pending", count)
		}
	}, q.pollInterval)
}

// RunCleanup deletes terminal messages past the retention window, hourly.
func (q *Queue) RunCleanup(ctx context.Context) {
	wait.UntilWithContext(ctx, func(ctx context.Context) {
		count, err := q.store.CleanupMessages(ctx, q.retention)
		if err != nil {
			klog.ErrorS(err, "failed to cleanup queue messages")
			return
		}
		if count > 0 {
			klog.Infof("cleaned up %d terminal queue messages", count)
		}
	}, time.Hour)
}
