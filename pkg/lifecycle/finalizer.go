/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package lifecycle

import (
	"context"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
	ctrlruntime "sigs.k8s.io/controller-runtime"

	"github.com/AMD-AIG-AIMA/Custos/pkg/controller"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
)

const (
	finalizerWorkers = 2
	// finalizerRecheck is how long a job with outstanding shards waits
	// before the next terminal check.
	finalizerRecheck = 30 * time.Second
	// sweepInterval re-enqueues Running jobs so completions signalled by
	// external workers are never missed.
	sweepInterval = time.Minute
)

// Finalizer watches Running jobs and finalizes each once all of its
// shards are terminal.
type Finalizer struct {
	manager *Manager
	ctrl    *controller.Controller[int64]
}

func NewFinalizer(manager *Manager) *Finalizer {
	f := &Finalizer{manager: manager}
	f.ctrl = controller.NewController[int64](f, finalizerWorkers)
	return f
}

// Do implements the controller handler for one job id.
func (f *Finalizer) Do(ctx context.Context, jobId int64) (ctrlruntime.Result, error) {
	done, err := f.manager.FinalizeJob(ctx, jobId)
	if err != nil {
		return ctrlruntime.Result{}, err
	}
	if !done {
		return ctrlruntime.Result{RequeueAfter: finalizerRecheck}, nil
	}
	return ctrlruntime.Result{}, nil
}

// Enqueue asks for an immediate terminal check, typically after a shard
// completion.
func (f *Finalizer) Enqueue(jobId int64) {
	f.ctrl.Add(jobId)
}

// Run starts the workers and the periodic sweep.
func (f *Finalizer) Run(ctx context.Context) {
	f.ctrl.Run(ctx)
	go wait.UntilWithContext(ctx, f.sweep, sweepInterval)
}

func (f *Finalizer) sweep(ctx context.Context) {
	jobTags := client.GetJobFieldTags()
	jobs, err := f.manager.store.SelectJobs(ctx,
		sqrl.Eq{client.GetFieldTag(jobTags, "Status"): client.JobRunning},
		client.CreatedTime, client.ASC, -1, 0)
	if err != nil {
		klog.ErrorS(err, "finalizer sweep failed to list running jobs")
		return
	}
	for _, job := range jobs {
		f.ctrl.Add(job.Id)
	}
}
