/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package collector holds the drivers that execute one shard: the per-item
// API driver and the bulk-pipeline driver with its binary fetcher.
package collector

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
)

// Collector executes shards for one route.
type Collector interface {
	// Estimate sizes a prospective collection without touching artifacts.
	Estimate(ctx context.Context, req *EstimateRequest) (bytes, items int64, confidence int, err error)

	// Collect runs one shard to completion, reporting progress through
	// sink. resume carries the shard's non-completed checkpoints; items
	// already counted by completed checkpoints are never re-emitted.
	Collect(ctx context.Context, shard *client.Shard, resume []*client.Checkpoint, sink ProgressSink) (*Result, error)
}

// EstimateRequest describes the scope an estimate covers.
type EstimateRequest struct {
	Custodian string
	JobType   string
	StartDate time.Time
	EndDate   time.Time
}

// Result is the outcome of one Collect call. Ok=false with a nil error
// means the shard ran but some items failed.
type Result struct {
	Ok          bool
	Items       int64
	Bytes       int64
	FailedItems int64
	Error       string
}

// ProgressSink receives incremental progress. Implementations also renew
// the shard lease.
type ProgressSink interface {
	Report(ctx context.Context, itemsDelta, bytesDelta int64, progressPct float64) error
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(ctx context.Context, itemsDelta, bytesDelta int64, progressPct float64) error

func (f ProgressSinkFunc) Report(ctx context.Context, itemsDelta, bytesDelta int64, progressPct float64) error {
	return f(ctx, itemsDelta, bytesDelta, progressPct)
}

// SourceItem is one upstream item streamed by a Source.
type SourceItem struct {
	Id       string
	Name     string
	ItemType string
	Subject  string
	From     string
	To       string
	ItemDate time.Time
	Body     io.Reader
}

// ItemIterator streams items. Next returns io.EOF when the stream is
// drained and *Throttled when the upstream asks the caller to slow down.
type ItemIterator interface {
	Next(ctx context.Context) (*SourceItem, error)
}

// Source is the upstream a per-item driver collects from.
type Source interface {
	Estimate(ctx context.Context, req *EstimateRequest) (bytes, items int64, err error)
	Items(ctx context.Context, shard *client.Shard, resume []*client.Checkpoint) (ItemIterator, error)
}

// Throttled signals upstream rate limiting. RetryAfter is the upstream
// hint, zero when none was given.
type Throttled struct {
	RetryAfter time.Duration
}

func (t *Throttled) Error() string {
	return fmt.Sprintf("upstream throttled, retry after %s", t.RetryAfter)
}

// ItemStore is the slice of the metadata client both drivers write.
type ItemStore interface {
	InsertCollectedItem(ctx context.Context, item *client.CollectedItem) (bool, error)
	AppendJobLog(ctx context.Context, log *client.JobLog) error
}

const (
	// reportEveryItems and reportMaxGap bound how stale reported progress
	// may become.
	reportEveryItems = 100
	reportMaxGap     = 60 * time.Second
)

// artifactName places an item under the shard's output prefix with a
// zero-padded sequence so listings sort in collection order.
func artifactName(shard *client.Shard, sequence int64, itemName string) string {
	prefix := shard.OutputPrefix.String
	if prefix == "" {
		prefix = fmt.Sprintf("matter/%d/GDC/%s", shard.ParentJobId, shard.CustodianEmail)
	}
	safe := strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(itemName)
	if safe == "" {
		safe = "item"
	}
	return fmt.Sprintf("%s/%06d_%s", strings.TrimRight(prefix, "/"), sequence, safe)
}

// progressPct is processed over estimate, clamped to [0,100].
func progressPct(processed, estimated int64) float64 {
	if estimated <= 0 {
		return 0
	}
	pct := float64(processed) / float64(estimated) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
