/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package topic

import (
	"context"

	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/model"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification/topic/job"
)

type Topic interface {
	Name() string
	BuildMessage(ctx context.Context, data map[string]interface{}) ([]*model.Message, error)
	Filter(data map[string]interface{}) bool
}

// NewTopics creates and returns all supported notification topics.
func NewTopics() map[string]Topic {
	topics := make(map[string]Topic)
	jobTopic := &job.Topic{}
	topics[jobTopic.Name()] = jobTopic

	return topics
}
