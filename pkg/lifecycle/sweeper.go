/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
)

// deltaSweepSchedule runs once an hour; cursor staleness is measured in
// days so finer granularity buys nothing.
const deltaSweepSchedule = "@hourly"

// SweeperStore is the slice of the metadata client the sweeper touches.
type SweeperStore interface {
	DeactivateStaleCursors(ctx context.Context, olderThan time.Time, maxFailures int) (int, error)
	AppendJobLog(ctx context.Context, log *client.JobLog) error
}

// DeltaSweeper deactivates delta cursors that are too old or failed too
// often, forcing a baseline resync on the custodian's next job.
type DeltaSweeper struct {
	store       SweeperStore
	maxAge      time.Duration
	maxFailures int
	cron        *cron.Cron
}

func NewDeltaSweeper(store SweeperStore) *DeltaSweeper {
	return &DeltaSweeper{
		store:       store,
		maxAge:      time.Duration(config.GetDeltaMaxAgeDays()) * 24 * time.Hour,
		maxFailures: config.GetDeltaMaxFailures(),
		cron:        cron.New(),
	}
}

// Start schedules the hourly sweep. Stop with Stop.
func (s *DeltaSweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(deltaSweepSchedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *DeltaSweeper) Stop() {
	s.cron.Stop()
}

// Sweep runs one pass. Exposed for the maintenance endpoint.
func (s *DeltaSweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.maxAge)
	count, err := s.store.DeactivateStaleCursors(ctx, cutoff, s.maxFailures)
	if err != nil {
		klog.ErrorS(err, "delta cursor sweep failed")
		return
	}
	if count == 0 {
		return
	}
	klog.Infof("deactivated %d stale delta cursors (older than %s or >=%d failures)",
		count, cutoff.Format(time.RFC3339), s.maxFailures)
	entry := &client.JobLog{
		Ts:       dbutils.NullTime(time.Now().UTC()),
		Level:    client.LogWarn,
		Category: client.CategoryDeltaCursor,
		Message:  fmt.Sprintf("deactivated %d stale delta cursors, baseline resync forced", count),
	}
	if err = s.store.AppendJobLog(ctx, entry); err != nil {
		klog.ErrorS(err, "failed to append delta sweep audit log")
	}
}
