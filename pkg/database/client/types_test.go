/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFieldTags(t *testing.T) {
	tags := GetShardFieldTags()
	assert.Equal(t, "shard_identifier", GetFieldTag(tags, "ShardIdentifier"))
	assert.Equal(t, "lease_token", GetFieldTag(tags, "LeaseToken"))
	assert.Equal(t, "parent_job_id", GetFieldTag(tags, "ParentJobId"))

	tags = GetCollectedItemFieldTags()
	assert.Equal(t, "source_item_id", GetFieldTag(tags, "SourceItemId"))
	assert.Equal(t, "sha256", GetFieldTag(tags, "Sha256"))
}

func TestGenInsertCommand(t *testing.T) {
	cmd := genInsertCommand(Matter{}, insertMatterFormat, "id")
	assert.True(t, strings.HasPrefix(cmd, "INSERT INTO "+TMatter))
	assert.Contains(t, cmd, "case_number")
	assert.Contains(t, cmd, ":case_number")
	assert.NotContains(t, cmd, "(id,")
}

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		allowed bool
	}{
		{JobPending, JobPlanning, true},
		{JobPlanning, JobRunning, true},
		{JobRunning, JobRunning, true},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobPartiallyCompleted, true},
		{JobCompleted, JobRunning, false},
		{JobFailed, JobPending, false},
		{JobCancelled, JobRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanJobTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestShardTransitions(t *testing.T) {
	tests := []struct {
		from    string
		to      string
		allowed bool
	}{
		{ShardPending, ShardAssigned, true},
		{ShardAssigned, ShardRunning, true},
		{ShardAssigned, ShardPending, true}, // lease expiry
		{ShardRunning, ShardCompleted, true},
		{ShardFailed, ShardRetrying, true},
		{ShardRetrying, ShardPending, true},
		{ShardCompleted, ShardRunning, false},
		{ShardCancelled, ShardPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.allowed, CanShardTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, IsTerminalJobStatus(JobCompleted))
	assert.True(t, IsTerminalJobStatus(JobPartiallyCompleted))
	assert.False(t, IsTerminalJobStatus(JobRunning))

	assert.True(t, IsTerminalShardStatus(ShardFailed))
	assert.False(t, IsTerminalShardStatus(ShardRetrying))
	assert.False(t, IsTerminalShardStatus(ShardAssigned))
}
