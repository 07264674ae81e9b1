/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package planner

import (
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func baseConfig() *Config {
	return &Config{
		MaxWindowDays:   30,
		MaxShardBytes:   50 * 1024 * 1024 * 1024,
		MaxShardItems:   250000,
		MaxPerCustodian: 12,
		Adaptive:        true,
		AlignCalendar:   true,
		MinWindowDays:   1,
		MaxTotalShards:  1000,
		MaxRetries:      3,
	}
}

func TestPlanTwoCustodiansHalfYear(t *testing.T) {
	p := New(baseConfig(), nil)
	shards, err := p.Plan(&Request{
		Custodians: []string{"u1", "u2"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-06-30"),
		JobType:    client.JobTypeEmail,
		Route:      client.RoutePerItemApi,
		Priority:   5,
	})
	require.NoError(t, err)
	require.Len(t, shards, 12)

	perCustodian := map[string]int{}
	idPattern := regexp.MustCompile(`^u[12]\|\d{8}\|\d{8}\|Email$`)
	seen := map[string]bool{}
	for _, s := range shards {
		perCustodian[s.CustodianEmail]++
		assert.Equal(t, 6, s.TotalShards)
		assert.Equal(t, client.ShardPending, s.Status)
		assert.Regexp(t, idPattern, s.ShardIdentifier)
		assert.False(t, seen[s.ShardIdentifier], "duplicate identifier %s", s.ShardIdentifier)
		seen[s.ShardIdentifier] = true
		assert.True(t, s.StartDate.Time.Before(s.EndDate.Time))
	}
	assert.Equal(t, 6, perCustodian["u1"])
	assert.Equal(t, 6, perCustodian["u2"])

	// dense indexes per custodian
	for _, custodian := range []string{"u1", "u2"} {
		next := 0
		for _, s := range shards {
			if s.CustodianEmail != custodian {
				continue
			}
			assert.Equal(t, next, s.ShardIndex)
			next++
		}
	}
}

func TestPlanCalendarAlignment(t *testing.T) {
	p := New(baseConfig(), nil)
	shards, err := p.Plan(&Request{
		Custodians: []string{"u1"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-03-31"),
		JobType:    client.JobTypeEmail,
		Route:      client.RoutePerItemApi,
	})
	require.NoError(t, err)
	require.Len(t, shards, 3)
	assert.Equal(t, "u1|20240101|20240201|Email", shards[0].ShardIdentifier)
	assert.Equal(t, "u1|20240201|20240301|Email", shards[1].ShardIdentifier)
	assert.Equal(t, "u1|20240301|20240331|Email", shards[2].ShardIdentifier)
}

func TestPlanEmptyRange(t *testing.T) {
	p := New(baseConfig(), nil)
	_, err := p.Plan(&Request{
		Custodians: []string{"u1"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-01-01"),
		JobType:    client.JobTypeEmail,
	})
	require.Error(t, err)
}

func TestPlanTooLarge(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxTotalShards = 5
	p := New(cfg, nil)
	_, err := p.Plan(&Request{
		Custodians: []string{"u1", "u2"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-06-30"),
		JobType:    client.JobTypeEmail,
	})
	require.Error(t, err)
}

func TestPlanAdaptiveBisection(t *testing.T) {
	cfg := baseConfig()
	cfg.AlignCalendar = false
	cfg.MaxWindowDays = 28
	// windows wider than a week blow the item cap
	estimate := func(custodian, jobType string, start, end time.Time) (int64, int64) {
		days := int64(timeutil.DaysBetween(start, end))
		return days * 1024, days * 40000
	}
	p := New(cfg, estimate)
	shards, err := p.Plan(&Request{
		Custodians: []string{"u1"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-01-29"),
		JobType:    client.JobTypeOneDrive,
	})
	require.NoError(t, err)

	// 28 days at 40k items/day must split until each window is under 250k
	// items, i.e. at most 6 days wide
	require.Greater(t, len(shards), 1)
	for _, s := range shards {
		days := timeutil.DaysBetween(s.StartDate.Time, s.EndDate.Time)
		assert.LessOrEqual(t, days, 7)
		assert.LessOrEqual(t, s.EstimatedItems, int64(280000))
	}
}

func TestPlanMergeTail(t *testing.T) {
	cfg := baseConfig()
	cfg.MaxPerCustodian = 3
	p := New(cfg, nil)
	shards, err := p.Plan(&Request{
		Custodians: []string{"u1"},
		StartDate:  day("2024-01-01"),
		EndDate:    day("2024-06-30"),
		JobType:    client.JobTypeEmail,
	})
	require.NoError(t, err)
	require.Len(t, shards, 3)

	// merged tail still covers the full range
	assert.Equal(t, day("2024-01-01"), shards[0].StartDate.Time)
	assert.Equal(t, day("2024-06-30"), shards[2].EndDate.Time)
	for i := 1; i < len(shards); i++ {
		assert.Equal(t, shards[i-1].EndDate.Time, shards[i].StartDate.Time,
			fmt.Sprintf("gap between shard %d and %d", i-1, i))
	}
}
