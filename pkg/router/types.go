/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package router

import (
	"time"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
)

// Request is one routing question: who, what kind of data, which window.
type Request struct {
	Custodian          string
	JobType            string
	StartDate          time.Time
	EndDate            time.Time
	Keywords           []string
	IncludeAttachments bool
}

// Quota is the custodian's current consumption against its limits.
type Quota struct {
	UsedBytes   int64
	LimitBytes  int64
	UsedItems   int64
	LimitItems  int64
	LastUpdated time.Time
}

// Thresholds bound the per-item route and fix the confidence levels
// reported with each decision.
type Thresholds struct {
	MaxBytes         int64
	MaxItems         int64
	ConfidenceHigh   int
	ConfidenceMedium int
	ConfidenceLow    int
}

// Decision is the routing outcome. Metrics carries both estimates so
// borderline calls can be audited later.
type Decision struct {
	Route          string           `json:"route"`
	Reason         string           `json:"reason"`
	EstimatedBytes int64            `json:"estimatedBytes"`
	EstimatedItems int64            `json:"estimatedItems"`
	Confidence     int              `json:"confidence"`
	Metrics        map[string]int64 `json:"metrics,omitempty"`
}

// ThresholdsFromConfig reads the configured routing thresholds.
func ThresholdsFromConfig() *Thresholds {
	return &Thresholds{
		MaxBytes:         config.GetAutoRouterMaxBytes(),
		MaxItems:         config.GetAutoRouterMaxItems(),
		ConfidenceHigh:   config.GetAutoRouterConfidenceHigh(),
		ConfidenceMedium: config.GetAutoRouterConfidenceMedium(),
		ConfidenceLow:    config.GetAutoRouterConfidenceLow(),
	}
}
