/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package planner partitions a collection job into custodian × date-window
// shards bounded by the configured size caps.
package planner

import (
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

// Request is the planning input for one job.
type Request struct {
	Custodians   []string
	StartDate    time.Time
	EndDate      time.Time
	JobType      string
	Route        string
	Priority     int
	OutputPrefix string
}

// Config carries the partitioning knobs.
type Config struct {
	MaxWindowDays   int
	MaxShardBytes   int64
	MaxShardItems   int64
	MaxPerCustodian int
	Adaptive        bool
	AlignCalendar   bool
	MinWindowDays   int
	MaxTotalShards  int
	MaxRetries      int
}

// ConfigFromViper reads the planner knobs from configuration.
func ConfigFromViper() *Config {
	return &Config{
		MaxWindowDays:   config.GetShardMaxWindowDays(),
		MaxShardBytes:   config.GetShardMaxBytes(),
		MaxShardItems:   config.GetShardMaxItems(),
		MaxPerCustodian: config.GetShardMaxPerCustodian(),
		Adaptive:        config.IsShardAdaptive(),
		AlignCalendar:   config.IsShardAlignCalendar(),
		MinWindowDays:   config.GetShardMinWindowDays(),
		MaxTotalShards:  config.GetShardMaxTotalShards(),
		MaxRetries:      config.GetShardMaxRetries(),
	}
}

// EstimateFunc projects (bytes, items) for one custodian window.
type EstimateFunc func(custodian, jobType string, start, end time.Time) (int64, int64)

type window struct {
	start time.Time
	end   time.Time
}

type Planner struct {
	cfg      *Config
	estimate EstimateFunc
}

// New builds a planner. estimate may be nil when adaptive sizing is off.
func New(cfg *Config, estimate EstimateFunc) *Planner {
	if cfg == nil {
		cfg = ConfigFromViper()
	}
	return &Planner{cfg: cfg, estimate: estimate}
}

// Plan expands the request into Pending shards with dense indexes and
// unique identifiers. The caller persists them atomically with the parent
// job.
func (p *Planner) Plan(req *Request) ([]*client.Shard, error) {
	if len(req.Custodians) == 0 {
		return nil, customerrors.NewBadRequest("no custodians in request")
	}
	start, end := timeutil.StartOfDay(req.StartDate), timeutil.StartOfDay(req.EndDate)
	if !start.Before(end) {
		return nil, customerrors.NewEmptyPlan(
			fmt.Sprintf("date range %s..%s contains no days",
				start.Format(timeutil.DateOnly), end.Format(timeutil.DateOnly)))
	}

	var shards []*client.Shard
	for _, custodian := range req.Custodians {
		windows := p.timeline(custodian, req.JobType, start, end)
		windows = mergeTail(windows, p.cfg.MaxPerCustodian)
		total := len(windows)
		for i, w := range windows {
			estBytes, estItems := p.windowEstimate(custodian, req.JobType, w)
			shards = append(shards, &client.Shard{
				ShardIndex:      i,
				TotalShards:     total,
				ShardIdentifier: Identifier(custodian, w.start, w.end, req.JobType),
				CustodianEmail:  custodian,
				StartDate:       dbutils.NullTime(w.start),
				EndDate:         dbutils.NullTime(w.end),
				JobType:         req.JobType,
				Route:           req.Route,
				Status:          client.ShardPending,
				Priority:        req.Priority,
				EstimatedBytes:  estBytes,
				EstimatedItems:  estItems,
				MaxRetries:      p.cfg.MaxRetries,
				OutputPrefix:    dbutils.NullString(req.OutputPrefix),
			})
		}
	}
	if p.cfg.MaxTotalShards > 0 && len(shards) > p.cfg.MaxTotalShards {
		return nil, customerrors.NewPlanTooLarge(
			fmt.Sprintf("plan needs %d shards, limit is %d", len(shards), p.cfg.MaxTotalShards))
	}
	klog.V(4).Infof("planned %d shards for %d custodians over %s..%s",
		len(shards), len(req.Custodians), start.Format(timeutil.DateOnly), end.Format(timeutil.DateOnly))
	return shards, nil
}

// Identifier builds the unique shard identity string.
func Identifier(custodian string, start, end time.Time, jobType string) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		custodian, start.Format(timeutil.DateCompact), end.Format(timeutil.DateCompact), jobType)
}

// timeline cuts [start, end) into candidate windows of at most
// MaxWindowDays, optionally snapped to calendar boundaries, then bisects
// any window whose estimate blows a cap.
func (p *Planner) timeline(custodian, jobType string, start, end time.Time) []window {
	var windows []window
	cur := start
	for cur.Before(end) {
		next := cur.AddDate(0, 0, p.cfg.MaxWindowDays)
		if p.cfg.AlignCalendar {
			if snapped := p.snap(cur, next); snapped.After(cur) {
				next = snapped
			}
		}
		if next.After(end) {
			next = end
		}
		windows = append(windows, p.bisect(custodian, jobType, window{start: cur, end: next}, 0)...)
		cur = next
	}
	return windows
}

// snap moves the raw window end to the nearest week or month boundary,
// keeping the window at least MinWindowDays wide.
func (p *Planner) snap(cur, raw time.Time) time.Time {
	candidates := []time.Time{
		timeutil.StartOfMonth(raw),
		timeutil.StartOfMonth(raw).AddDate(0, 1, 0),
		timeutil.StartOfWeek(raw),
		timeutil.StartOfWeek(raw).AddDate(0, 0, 7),
	}
	var best time.Time
	bestDist := -1
	for _, c := range candidates {
		dist := timeutil.DaysBetween(raw, c)
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = c, dist
		}
	}
	if timeutil.DaysBetween(cur, best) < p.cfg.MinWindowDays {
		return raw
	}
	return best
}

// maxBisectDepth bounds the recursion; 20 halvings take any window under a day.
const maxBisectDepth = 20

func (p *Planner) bisect(custodian, jobType string, w window, depth int) []window {
	if !p.cfg.Adaptive || p.estimate == nil || depth >= maxBisectDepth {
		return []window{w}
	}
	days := timeutil.DaysBetween(w.start, w.end)
	if days <= p.cfg.MinWindowDays {
		return []window{w}
	}
	estBytes, estItems := p.estimate(custodian, jobType, w.start, w.end)
	if estBytes <= p.cfg.MaxShardBytes && estItems <= p.cfg.MaxShardItems {
		return []window{w}
	}
	mid := w.start.AddDate(0, 0, days/2)
	left := p.bisect(custodian, jobType, window{start: w.start, end: mid}, depth+1)
	right := p.bisect(custodian, jobType, window{start: mid, end: w.end}, depth+1)
	return append(left, right...)
}

func (p *Planner) windowEstimate(custodian, jobType string, w window) (int64, int64) {
	if p.estimate == nil {
		return 0, 0
	}
	return p.estimate(custodian, jobType, w.start, w.end)
}

// mergeTail collapses excess windows from the end until the per-custodian
// cap holds.
func mergeTail(windows []window, maxCount int) []window {
	if maxCount <= 0 {
		return windows
	}
	for len(windows) > maxCount {
		last := windows[len(windows)-1]
		windows = windows[:len(windows)-1]
		windows[len(windows)-1].end = last.end
	}
	return windows
}
