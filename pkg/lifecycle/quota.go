/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"strings"
	"sync"
	"time"

	"github.com/AMD-AIG-AIMA/Custos/pkg/router"
)

// QuotaTracker accumulates per-custodian consumption from finalized jobs.
// The AutoRouter consults it so custodians near their per-item budget get
// routed to the bulk pipeline.
type QuotaTracker struct {
	mu         sync.Mutex
	limitBytes int64
	limitItems int64
	used       map[string]*usage
}

type usage struct {
	bytes   int64
	items   int64
	updated time.Time
}

func NewQuotaTracker(limitBytes, limitItems int64) *QuotaTracker {
	return &QuotaTracker{
		limitBytes: limitBytes,
		limitItems: limitItems,
		used:       map[string]*usage{},
	}
}

// Consume records actuals against a custodian's budget.
func (t *QuotaTracker) Consume(custodian string, bytes, items int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.used[strings.ToLower(custodian)]
	if !ok {
		u = &usage{}
		t.used[strings.ToLower(custodian)] = u
	}
	u.bytes += bytes
	u.items += items
	u.updated = time.Now().UTC()
}

// QuotaFor snapshots the custodian's consumption for a routing decision.
func (t *QuotaTracker) QuotaFor(custodian string) *router.Quota {
	t.mu.Lock()
	defer t.mu.Unlock()
	quota := &router.Quota{
		LimitBytes: t.limitBytes,
		LimitItems: t.limitItems,
	}
	if u, ok := t.used[strings.ToLower(custodian)]; ok {
		quota.UsedBytes = u.bytes
		quota.UsedItems = u.items
		quota.LastUpdated = u.updated
	}
	return quota
}
