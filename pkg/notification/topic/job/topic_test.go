/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
)

func TestFilterMatchesConfiguredOutcomes(t *testing.T) {
	topic := &Topic{}

	// default topics are the outcomes that need operator attention
	assert.True(t, topic.Filter(map[string]interface{}{"outcome": client.JobFailed}))
	assert.True(t, topic.Filter(map[string]interface{}{"outcome": client.JobPartiallyCompleted}))
	assert.False(t, topic.Filter(map[string]interface{}{"outcome": client.JobCompleted}))
	assert.False(t, topic.Filter(map[string]interface{}{}))
	assert.False(t, topic.Filter(map[string]interface{}{"outcome": 42}))
}

func TestRenderEmailTemplate(t *testing.T) {
	content, err := renderEmailTemplate(EmailData{
		JobId:        42,
		Custodian:    "alice@example.com",
		JobType:      client.JobTypeEmail,
		Status:       client.JobPartiallyCompleted,
		StatusColor:  getStatusColor(client.JobPartiallyCompleted),
		Items:        120,
		Bytes:        1 << 20,
		FinishedTime: "2026-01-02 15:04:05",
		ErrorMessage: "3 items failed",
	})
	require.NoError(t, err)
	assert.Contains(t, content, "Collection Job 42")
	assert.Contains(t, content, "alice@example.com")
	assert.Contains(t, content, "3 items failed")
	assert.Contains(t, content, "#d69e2e")
}

func TestRenderEmailTemplateOmitsEmptyError(t *testing.T) {
	content, err := renderEmailTemplate(EmailData{
		JobId:  7,
		Status: client.JobCompleted,
	})
	require.NoError(t, err)
	assert.NotContains(t, content, "fff5f5")
}

func TestStatusColors(t *testing.T) {
	assert.Equal(t, "#c53030", getStatusColor(client.JobFailed))
	assert.Equal(t, "#2f855a", getStatusColor(client.JobCompleted))
	assert.Equal(t, "#4a5568", getStatusColor("Unknown"))
}
