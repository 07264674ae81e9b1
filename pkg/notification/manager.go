/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package notification delivers terminal job outcomes to operators over
// the configured channels.
package notification

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/channel"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/model"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/topic"
)

// pendingBuffer bounds the submission queue; when delivery cannot keep
// up, further notifications are dropped rather than blocking job
// finalization.
const pendingBuffer = 256

type event struct {
	topic string
	data  map[string]interface{}
}

type Manager struct {
	channels map[string]channel.Channel
	topics   map[string]topic.Topic
	pending  chan *event
}

// NewManager wires the channels from the application configuration.
func NewManager(ctx context.Context) (*Manager, error) {
	channels, err := channel.InitChannels(ctx, channel.ConfigFromApp())
	if err != nil {
		return nil, err
	}
	return &Manager{
		channels: channels,
		topics:   topic.NewTopics(),
		pending:  make(chan *event, pendingBuffer),
	}, nil
}

// Start begins draining the submission queue until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

// NotifyJobFinished submits a terminal job outcome. Never blocks; the
// caller is the finalizer and must not wait on SMTP.
func (m *Manager) NotifyJobFinished(job *client.Job) {
	m.Submit(model.TopicJobFinished, map[string]interface{}{
		"job":     job,
		"outcome": job.Status,
		"message": job.Error.String,
	})
}

// Submit enqueues one notification after topic filtering.
func (m *Manager) Submit(topicName string, data map[string]interface{}) {
	t, ok := m.topics[topicName]
	if !ok {
		return
	}
	if !t.Filter(data) {
		return
	}
	select {
	case m.pending <- &event{topic: topicName, data: data}:
	default:
		klog.Warningf("notification queue full, dropping %s event", topicName)
	}
}

func (m *Manager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			klog.Infof("notification manager stopping")
			return
		case ev := <-m.pending:
			if err := m.deliver(ctx, ev); err != nil {
				klog.Errorf("failed to deliver %s notification: %v", ev.topic, err)
			}
		}
	}
}

func (m *Manager) deliver(ctx context.Context, ev *event) error {
	t, exists := m.topics[ev.topic]
	if !exists {
		return nil
	}
	messages, err := t.BuildMessage(ctx, ev.data)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		for _, chName := range msg.GetChannels() {
			ch, exists := m.channels[chName]
			if !exists {
				klog.Warningf("channel %s does not exist", chName)
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				klog.Errorf("failed to send message to channel %s: %v", chName, err)
				return err
			}
		}
	}
	return nil
}
