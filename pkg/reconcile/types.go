/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package reconcile compares a source manifest against a collected manifest
// under configurable tolerances and produces pass/fail gates plus a CSV
// report.
package reconcile

import (
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
)

// Config controls the gates and the report emission. Tolerances are
// percentages: 0.1 means 0.1 %.
type Config struct {
	SizeTolerancePct  float64
	ExtraTolerancePct float64
	RequireHashMatch  bool
	NormalizePaths    bool
	IncludeFolders    bool
	ReportsDir        string
	DryRun            bool
}

// ConfigFromViper reads the reconcile block of the loaded configuration.
func ConfigFromViper() *Config {
	return &Config{
		SizeTolerancePct:  config.GetReconcileSizeTolerancePct(),
		ExtraTolerancePct: config.GetReconcileExtraTolerancePct(),
		RequireHashMatch:  config.IsReconcileRequireHashMatch(),
		NormalizePaths:    config.IsReconcileNormalizePaths(),
		IncludeFolders:    config.IsReconcileIncludeFolders(),
		ReportsDir:        config.GetReconcileReportsDir(),
	}
}

// Row is one manifest entry after column mapping, before normalization.
type Row struct {
	Custodian    string
	Kind         string
	DriveId      string
	ItemId       string
	Path         string
	Size         int64
	Sha256       string
	StorageUri   string
	CollectedUtc string
	LastModified string

	key string // assigned during normalization
}

// Result carries every gate outcome and the counters behind them.
type Result struct {
	OverallPassed     bool    `json:"overall_passed"`
	CardinalityPassed bool    `json:"cardinality_passed"`
	ExtrasPassed      bool    `json:"extras_passed"`
	SizePassed        bool    `json:"size_passed"`
	HashPassed        bool    `json:"hash_passed"`
	SourceCount       int     `json:"source_count"`
	CollectedCount    int     `json:"collected_count"`
	Missed            int     `json:"missed"`
	Extras            int     `json:"extras"`
	HashMismatches    int     `json:"hash_mismatches"`
	SkippedSource     int     `json:"skipped_source"`
	SkippedCollected  int     `json:"skipped_collected"`
	SourceBytes       int64   `json:"source_bytes"`
	CollectedBytes    int64   `json:"collected_bytes"`
	SizeDeltaBytes    int64   `json:"size_delta_bytes"`
	SizeDeltaPct      float64 `json:"size_delta_pct"`
	ExtrasPct         float64 `json:"extras_pct"`
	ReportPath        string  `json:"report_path,omitempty"`
}
