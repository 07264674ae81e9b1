/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package lifecycle drives a collection job from creation through routing,
// planning, shard execution and finalization.
package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	customjson "github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/manifest"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
	"github.com/AMD-AIG-AIMA/Custos/pkg/planner"
	"github.com/AMD-AIG-AIMA/Custos/pkg/reconcile"
	"github.com/AMD-AIG-AIMA/Custos/pkg/router"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

// Store is the metadata surface the lifecycle manager drives.
type Store interface {
	GetMatter(ctx context.Context, id int64) (*client.Matter, error)

	InsertJob(ctx context.Context, job *client.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*client.Job, error)
	SelectJobs(ctx context.Context, query sqrl.Sqlizer, sortBy, order string, limit, offset int) ([]*client.Job, error)
	SetJobStatus(ctx context.Context, id int64, from, to string) error
	SetJobStarted(ctx context.Context, id int64) error
	SetJobEnded(ctx context.Context, id int64, status, errMsg string) error
	SetJobActuals(ctx context.Context, id int64, actualBytes, actualItems int64) error

	InsertShardsWithJob(ctx context.Context, job *client.Job, shards []*client.Shard) error
	SelectShards(ctx context.Context, query sqrl.Sqlizer, orderBy []string, limit, offset int) ([]*client.Shard, error)
	CancelShardsOfJob(ctx context.Context, jobId int64) (int, error)

	AppendJobLog(ctx context.Context, log *client.JobLog) error
}

// Notifier receives terminal job states. May be nil.
type Notifier interface {
	NotifyJobFinished(job *client.Job)
}

// CreateJobRequest is the caller's intent for one collection.
type CreateJobRequest struct {
	MatterId       int64     `json:"matterId"`
	Custodian      string    `json:"custodian"`
	JobType        string    `json:"jobType"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	Priority       int       `json:"priority"`
	OutputPrefix   string    `json:"outputPrefix"`
	SourceManifest string    `json:"sourceManifest"`
}

var validJobTypes = map[string]bool{
	client.JobTypeEmail:      true,
	client.JobTypeOneDrive:   true,
	client.JobTypeSharePoint: true,
	client.JobTypeTeams:      true,
	client.JobTypeMixed:      true,
}

// Manager is the job controller: it owns routing, planning and
// finalization. Shard execution happens in the workers.
type Manager struct {
	store        Store
	router       *router.Router
	planner      *planner.Planner
	quotas       *QuotaTracker
	thresholds   *router.Thresholds
	manifests    *manifest.Generator
	reconciler   *reconcile.Reconciler
	notifier     Notifier
	artifactRoot string
}

func NewManager(store Store, rt *router.Router, pl *planner.Planner, quotas *QuotaTracker) *Manager {
	return &Manager{
		store:      store,
		router:     rt,
		planner:    pl,
		quotas:     quotas,
		thresholds: router.ThresholdsFromConfig(),
	}
}

// WithManifests wires the chain-of-custody generator fired at
// finalization.
func (m *Manager) WithManifests(gen *manifest.Generator) *Manager {
	m.manifests = gen
	return m
}

// WithReconciler wires source-manifest reconciliation. artifactRoot
// resolves store-relative CSV paths to local files.
func (m *Manager) WithReconciler(rec *reconcile.Reconciler, artifactRoot string) *Manager {
	m.reconciler = rec
	m.artifactRoot = artifactRoot
	return m
}

func (m *Manager) WithNotifier(n Notifier) *Manager {
	m.notifier = n
	return m
}

// CreateJob validates the request, routes it, and persists the Pending
// job with its routing snapshot.
func (m *Manager) CreateJob(ctx context.Context, req *CreateJobRequest) (*client.Job, *router.Decision, error) {
	if !validJobTypes[req.JobType] {
		return nil, nil, customerrors.NewBadRequest(fmt.Sprintf("unknown job type %q", req.JobType))
	}
	matter, err := m.store.GetMatter(ctx, req.MatterId)
	if err != nil {
		return nil, nil, err
	}
	if !matter.IsActive {
		return nil, nil, customerrors.NewForbidden(fmt.Sprintf("matter %s is deactivated", matter.Name))
	}

	decision, err := m.router.Decide(&router.Request{
		Custodian: req.Custodian,
		JobType:   req.JobType,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}, m.quotas.QuotaFor(req.Custodian), m.thresholds)
	if err != nil {
		return nil, nil, err
	}

	priority := req.Priority
	if priority < 1 || priority > 10 {
		priority = 5
	}
	job := &client.Job{
		MatterId:       req.MatterId,
		CustodianEmail: req.Custodian,
		JobType:        req.JobType,
		Status:         client.JobPending,
		Route:          dbutils.NullString(decision.Route),
		RouteReason:    dbutils.NullString(decision.Reason),
		Priority:       priority,
		StartDate:      dbutils.NullTime(req.StartDate),
		EndDate:        dbutils.NullTime(req.EndDate),
		CreatedAt:      dbutils.NullTime(time.Now().UTC()),
		EstimatedBytes: decision.EstimatedBytes,
		EstimatedItems: decision.EstimatedItems,
		OutputPrefix:   dbutils.NullString(req.OutputPrefix),
		SourceManifest: dbutils.NullString(req.SourceManifest),
	}
	id, err := m.store.InsertJob(ctx, job)
	if err != nil {
		return nil, nil, err
	}
	job.Id = id

	m.audit(ctx, id, client.LogInfo, client.CategoryAutoRouter,
		fmt.Sprintf("routed to %s (confidence %d): %s", decision.Route, decision.Confidence, decision.Reason),
		decision)
	metrics.JobsCreated.WithLabelValues(req.JobType, decision.Route).Inc()
	klog.Infof("created job %d for %s/%s routed to %s", id, req.Custodian, req.JobType, decision.Route)
	return job, decision, nil
}

// StartJob plans the job into shards and makes them visible to the
// scheduler. Planning and the Running transition commit atomically.
func (m *Manager) StartJob(ctx context.Context, jobId int64) ([]*client.Shard, error) {
	job, err := m.store.GetJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if job.Status != client.JobPending {
		return nil, customerrors.NewInvalidJobTransition(job.Status, client.JobPlanning)
	}
	if err = m.store.SetJobStatus(ctx, jobId, client.JobPending, client.JobPlanning); err != nil {
		return nil, err
	}

	shards, err := m.planner.Plan(&planner.Request{
		Custodians:   []string{job.CustodianEmail},
		StartDate:    job.StartDate.Time,
		EndDate:      job.EndDate.Time,
		JobType:      job.JobType,
		Route:        job.Route.String,
		Priority:     job.Priority,
		OutputPrefix: job.OutputPrefix.String,
	})
	if err != nil {
		if endErr := m.store.SetJobEnded(ctx, jobId, client.JobFailed, err.Error()); endErr != nil {
			klog.ErrorS(endErr, "failed to fail job after planning error", "jobId", jobId)
		}
		return nil, err
	}
	if err = m.store.InsertShardsWithJob(ctx, job, shards); err != nil {
		return nil, err
	}
	if err = m.store.SetJobStarted(ctx, jobId); err != nil {
		return nil, err
	}

	m.audit(ctx, jobId, client.LogInfo, client.CategoryPlanner,
		fmt.Sprintf("planned %d shards over %s..%s", len(shards),
			job.StartDate.Time.Format(timeutil.DateOnly), job.EndDate.Time.Format(timeutil.DateOnly)), nil)
	return shards, nil
}

// CancelJob cancels every non-terminal shard and ends the job. Workers
// observe the cancellation at their next lease renewal.
func (m *Manager) CancelJob(ctx context.Context, jobId int64) error {
	job, err := m.store.GetJob(ctx, jobId)
	if err != nil {
		return err
	}
	if client.IsTerminalJobStatus(job.Status) {
		return customerrors.NewInvalidJobTransition(job.Status, client.JobCancelled)
	}
	cancelled, err := m.store.CancelShardsOfJob(ctx, jobId)
	if err != nil {
		return err
	}
	if err = m.store.SetJobEnded(ctx, jobId, client.JobCancelled, ""); err != nil {
		return err
	}
	m.audit(ctx, jobId, client.LogInfo, client.CategoryLifecycle,
		fmt.Sprintf("cancelled with %d outstanding shards", cancelled), nil)
	metrics.JobsFinalized.WithLabelValues(client.JobCancelled).Inc()
	return nil
}

// CompleteJob is the manual terminal transition used by external callers
// that own their shard bookkeeping.
func (m *Manager) CompleteJob(ctx context.Context, jobId int64, status string, actualBytes, actualItems int64, errMsg string) error {
	if !client.IsTerminalJobStatus(status) {
		return customerrors.NewBadRequest(fmt.Sprintf("%q is not a terminal job status", status))
	}
	if err := m.store.SetJobActuals(ctx, jobId, actualBytes, actualItems); err != nil {
		return err
	}
	if err := m.store.SetJobEnded(ctx, jobId, status, errMsg); err != nil {
		return err
	}
	metrics.JobsFinalized.WithLabelValues(status).Inc()
	return nil
}

// FinalizeJob computes the job outcome once every shard is terminal.
// Returns false when shards are still outstanding. Idempotent for
// already-terminal jobs.
func (m *Manager) FinalizeJob(ctx context.Context, jobId int64) (bool, error) {
	job, err := m.store.GetJob(ctx, jobId)
	if err != nil {
		return false, err
	}
	if client.IsTerminalJobStatus(job.Status) {
		return true, nil
	}
	shardTags := client.GetShardFieldTags()
	shards, err := m.store.SelectShards(ctx,
		sqrl.Eq{client.GetFieldTag(shardTags, "ParentJobId"): jobId},
		[]string{"shard_index asc"}, -1, 0)
	if err != nil {
		return false, err
	}
	if len(shards) == 0 {
		return false, nil
	}

	var completed, partial, failed int
	var actualBytes, actualItems int64
	for _, shard := range shards {
		if !client.IsTerminalShardStatus(shard.Status) {
			return false, nil
		}
		switch shard.Status {
		case client.ShardCompleted:
			completed++
			actualBytes += shard.ActualBytes
			actualItems += shard.ActualItems
		case client.ShardPartiallyCompleted:
			partial++
			actualBytes += shard.ActualBytes
			actualItems += shard.ActualItems
		default:
			failed++
		}
	}

	// Completed only when every shard fully completed; any surviving
	// partial shard degrades the whole job.
	outcome := client.JobPartiallyCompleted
	switch {
	case completed == len(shards):
		outcome = client.JobCompleted
	case completed == 0 && partial == 0:
		outcome = client.JobFailed
	}

	if err = m.store.SetJobActuals(ctx, jobId, actualBytes, actualItems); err != nil {
		return false, err
	}
	if err = m.store.SetJobEnded(ctx, jobId, outcome, ""); err != nil {
		return false, err
	}
	job.Status = outcome
	job.ActualBytes = actualBytes
	job.ActualItems = actualItems
	m.quotas.Consume(job.CustodianEmail, actualBytes, actualItems)

	m.audit(ctx, jobId, client.LogInfo, client.CategoryLifecycle,
		fmt.Sprintf("finalized as %s: %d/%d shards completed, %d items, %d bytes",
			outcome, completed, len(shards), actualItems, actualBytes), nil)
	metrics.JobsFinalized.WithLabelValues(outcome).Inc()

	m.buildManifest(ctx, job)
	if m.notifier != nil {
		m.notifier.NotifyJobFinished(job)
	}
	return true, nil
}

// buildManifest fires the custody chain: generate, then reconcile when a
// source manifest was supplied. Failures are audited, not fatal; the
// manifest endpoints allow regeneration.
func (m *Manager) buildManifest(ctx context.Context, job *client.Job) {
	if m.manifests == nil {
		return
	}
	row, _, err := m.manifests.Generate(ctx, job.Id)
	if err != nil {
		klog.ErrorS(err, "manifest generation failed", "jobId", job.Id)
		m.audit(ctx, job.Id, client.LogError, client.CategoryManifest,
			fmt.Sprintf("manifest generation failed: %v", err), nil)
		return
	}
	m.audit(ctx, job.Id, client.LogInfo, client.CategoryManifest,
		fmt.Sprintf("manifest %s generated with %d items", row.ManifestId, row.TotalItems), nil)

	if m.reconciler == nil || strings.TrimSpace(job.SourceManifest.String) == "" {
		return
	}
	collectedPath := row.CsvPath.String
	if m.artifactRoot != "" {
		collectedPath = filepath.Join(m.artifactRoot, filepath.FromSlash(collectedPath))
	}
	result, err := m.reconciler.Run(ctx, job.Id, job.SourceManifest.String, collectedPath, job.CustodianEmail)
	if err != nil {
		klog.ErrorS(err, "reconciliation failed", "jobId", job.Id)
		m.audit(ctx, job.Id, client.LogError, client.CategoryReconcile,
			fmt.Sprintf("reconciliation failed: %v", err), nil)
		return
	}
	klog.Infof("job %d reconciled: overall_passed=%t", job.Id, result.OverallPassed)
}

func (m *Manager) audit(ctx context.Context, jobId int64, level, category, message string, details interface{}) {
	entry := &client.JobLog{
		JobId:    jobId,
		Ts:       dbutils.NullTime(time.Now().UTC()),
		Level:    level,
		Category: category,
		Message:  message,
	}
	if details != nil {
		entry.Details = dbutils.NullString(string(customjson.MarshalSilently(details)))
	}
	if err := m.store.AppendJobLog(ctx, entry); err != nil {
		klog.ErrorS(err, "failed to append job audit log", "jobId", jobId, "category", category)
	}
}
