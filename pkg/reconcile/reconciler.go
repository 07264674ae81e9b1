/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package reconcile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	customjson "github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// systemPathMarkers identifies entries that never count against the gates.
var systemPathMarkers = []string{"recoverableitems", "versions", "recyclebin"}

// Store is the single write path the reconciler is allowed: one audit
// entry per run.
type Store interface {
	AppendJobLog(ctx context.Context, log *client.JobLog) error
}

// Reconciler compares two manifests. It never mutates collection state;
// store may be nil when running detached (CLI dry runs).
type Reconciler struct {
	store Store
	cfg   *Config
}

func New(store Store, cfg *Config) *Reconciler {
	return &Reconciler{store: store, cfg: cfg}
}

// Run loads, normalizes and compares the two manifests and evaluates the
// gates. custodian, when non-empty, restricts both sides to that owner.
func (r *Reconciler) Run(ctx context.Context, jobId int64, sourcePath, collectedPath, custodian string) (*Result, error) {
	sourceRows, sourceWarns, err := LoadRows(sourcePath)
	if err != nil {
		return nil, err
	}
	collectedRows, collectedWarns, err := LoadRows(collectedPath)
	if err != nil {
		return nil, err
	}
	if len(sourceRows) == 0 && len(collectedRows) == 0 {
		return nil, customerrors.NewReconcileNoRows("both manifests yielded zero rows")
	}

	source, sourceSkips := r.normalize(sourceRows, custodian)
	collected, collectedSkips := r.normalize(collectedRows, custodian)

	result := &Result{
		SourceCount:      len(source),
		CollectedCount:   len(collected),
		SkippedSource:    len(sourceSkips) + sourceWarns,
		SkippedCollected: len(collectedSkips) + collectedWarns,
	}

	var missed, extras, mismatches []*Row
	for key, row := range source {
		result.SourceBytes += row.Size
		other, ok := collected[key]
		if !ok {
			missed = append(missed, row)
			continue
		}
		if r.cfg.RequireHashMatch && !strings.EqualFold(row.Sha256, other.Sha256) {
			mismatches = append(mismatches, row)
		}
	}
	for key, row := range collected {
		result.CollectedBytes += row.Size
		if _, ok := source[key]; !ok {
			extras = append(extras, row)
		}
	}

	// map iteration order is random; the report must be reproducible
	sortByKey(missed)
	sortByKey(extras)
	sortByKey(mismatches)

	result.Missed = len(missed)
	result.Extras = len(extras)
	result.HashMismatches = len(mismatches)
	result.SizeDeltaBytes = result.CollectedBytes - result.SourceBytes
	result.SizeDeltaPct = pctOf(result.SizeDeltaBytes, result.SourceBytes)
	result.ExtrasPct = pctOf(int64(result.Extras), int64(result.SourceCount))

	result.CardinalityPassed = result.Missed == 0
	result.ExtrasPassed = result.ExtrasPct <= r.cfg.ExtraTolerancePct
	result.SizePassed = result.SizeDeltaPct <= r.cfg.SizeTolerancePct
	result.HashPassed = !r.cfg.RequireHashMatch || result.HashMismatches == 0
	result.OverallPassed = result.CardinalityPassed && result.ExtrasPassed &&
		result.SizePassed && result.HashPassed

	if !r.cfg.DryRun {
		reportPath, err := r.writeReport(jobId, result, missed, extras, mismatches,
			append(sourceSkips, collectedSkips...))
		if err != nil {
			return nil, err
		}
		result.ReportPath = reportPath
	}

	metrics.ReconcileRuns.WithLabelValues(strconv.FormatBool(result.OverallPassed)).Inc()
	r.audit(ctx, jobId, result)
	klog.Infof("reconcile job %d: source=%d collected=%d missed=%d extras=%d passed=%t",
		jobId, result.SourceCount, result.CollectedCount, result.Missed, result.Extras,
		result.OverallPassed)
	return result, nil
}

func sortByKey(rows []*Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
}

// pctOf renders |delta| over a floor-1 base as a percentage.
func pctOf(delta, base int64) float64 {
	if delta < 0 {
		delta = -delta
	}
	if base < 1 {
		base = 1
	}
	return float64(delta) / float64(base) * 100
}

// normalize filters and keys one side. The skipped slice carries the
// system-path and folder entries for the ExpectedSkips report section.
func (r *Reconciler) normalize(rows []*Row, custodian string) (map[string]*Row, []*Row) {
	out := make(map[string]*Row, len(rows))
	var skipped []*Row
	for _, row := range rows {
		if custodian != "" && !strings.EqualFold(row.Custodian, custodian) {
			continue
		}
		lowerPath := strings.ToLower(row.Path)
		if containsAny(lowerPath, systemPathMarkers) {
			skipped = append(skipped, row)
			continue
		}
		if !r.cfg.IncludeFolders && isFolder(row) {
			skipped = append(skipped, row)
			continue
		}
		path := row.Path
		if r.cfg.NormalizePaths {
			path = strings.ReplaceAll(strings.ToLower(path), `\`, "/")
			path = strings.TrimRight(path, "/")
		}
		if row.DriveId != "" && row.ItemId != "" {
			row.key = row.DriveId + "\x00" + row.ItemId
		} else {
			row.key = path
		}
		out[row.key] = row
	}
	return out, skipped
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func isFolder(row *Row) bool {
	if strings.EqualFold(row.Kind, "folder") {
		return true
	}
	return strings.HasSuffix(row.Path, "/") || strings.HasSuffix(row.Path, `\`)
}

// writeReport emits the sectioned CSV report under the reports dir.
func (r *Reconciler) writeReport(jobId int64, result *Result, missed, extras, mismatches, skips []*Row) (string, error) {
	if err := os.MkdirAll(r.cfg.ReportsDir, 0o755); err != nil {
		return "", err
	}
	reportPath := filepath.Join(r.cfg.ReportsDir, fmt.Sprintf("recon_report_%d.csv", jobId))
	f, err := os.Create(reportPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err = w.Write([]string{"Section", "Key", "Custodian", "Path", "Size", "SHA256"}); err != nil {
		return "", err
	}
	sections := []struct {
		name string
		rows []*Row
	}{
		{"Missed", missed},
		{"Extras", extras},
		{"HashMismatches", mismatches},
		{"ExpectedSkips", skips},
	}
	for _, section := range sections {
		for _, row := range section.rows {
			record := []string{
				section.name, row.key, row.Custodian, row.Path,
				strconv.FormatInt(row.Size, 10), row.Sha256,
			}
			if err = w.Write(record); err != nil {
				return "", err
			}
		}
	}
	summary := []string{
		"Summary",
		fmt.Sprintf("source=%d collected=%d missed=%d extras=%d hash_mismatches=%d",
			result.SourceCount, result.CollectedCount, result.Missed, result.Extras,
			result.HashMismatches),
		"",
		fmt.Sprintf("size_delta_bytes=%d size_delta_pct=%.4f extras_pct=%.4f",
			result.SizeDeltaBytes, result.SizeDeltaPct, result.ExtrasPct),
		strconv.FormatInt(result.CollectedBytes, 10),
		fmt.Sprintf("overall_passed=%t", result.OverallPassed),
	}
	if err = w.Write(summary); err != nil {
		return "", err
	}
	w.Flush()
	return reportPath, w.Error()
}

// audit appends the single allowed metadata write.
func (r *Reconciler) audit(ctx context.Context, jobId int64, result *Result) {
	if r.store == nil {
		return
	}
	level := client.LogInfo
	if !result.OverallPassed {
		level = client.LogWarn
	}
	entry := &client.JobLog{
		JobId:    jobId,
		Ts:       dbutils.NullTime(time.Now().UTC()),
		Level:    level,
		Category: client.CategoryReconcile,
		Message: fmt.Sprintf("reconcile %s: missed=%d extras=%d",
			map[bool]string{true: "passed", false: "failed"}[result.OverallPassed],
			result.Missed, result.Extras),
		Details: dbutils.NullString(string(customjson.MarshalSilently(result))),
	}
	if err := r.store.AppendJobLog(ctx, entry); err != nil {
		klog.ErrorS(err, "failed to append reconcile audit log", "jobId", jobId)
	}
}
