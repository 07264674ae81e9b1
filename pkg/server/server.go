/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package server assembles the orchestrator: metadata client, artifact
// store, collection drivers, background loops, and the HTTP API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/klogr"
	ctrlruntime "sigs.k8s.io/controller-runtime"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/checkpoint"
	"github.com/AMD-AIG-AIMA/Custos/pkg/collector"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers"
	customhandler "github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers"
	customjson "github.com/AMD-AIG-AIMA/Custos/pkg/json"
	commonklog "github.com/AMD-AIG-AIMA/Custos/pkg/klog"
	"github.com/AMD-AIG-AIMA/Custos/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/Custos/pkg/manifest"
	"github.com/AMD-AIG-AIMA/Custos/pkg/notification"
	"github.com/AMD-AIG-AIMA/Custos/pkg/options"
	"github.com/AMD-AIG-AIMA/Custos/pkg/planner"
	"github.com/AMD-AIG-AIMA/Custos/pkg/queue"
	"github.com/AMD-AIG-AIMA/Custos/pkg/reconcile"
	"github.com/AMD-AIG-AIMA/Custos/pkg/router"
	"github.com/AMD-AIG-AIMA/Custos/pkg/scheduler"
	"github.com/AMD-AIG-AIMA/Custos/pkg/worker"
)

type Server struct {
	opts       *options.Options
	httpServer *http.Server
	ctx        context.Context

	dbClient  *client.Client
	artifacts artifact.Store
	sched     *scheduler.Scheduler
	queue     *queue.Queue
	manager   *lifecycle.Manager
	finalizer *lifecycle.Finalizer
	sweeper   *lifecycle.DeltaSweeper
	pool      *worker.Pool
	deps      *customhandler.Deps

	isInited bool
}

// NewServer creates and returns a new Server instance.
func NewServer() (*Server, error) {
	s := &Server{
		opts: &options.Options{},
		ctx:  ctrlruntime.SetupSignalHandler(),
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

// Options returns the parsed command line options.
func (s *Server) Options() *options.Options {
	return s.opts
}

// init performs the initial setup of the server including flag parsing,
// logging initialization, configuration loading, and component wiring.
func (s *Server) init() error {
	gin.SetMode(gin.ReleaseMode)
	var err error
	if err = s.opts.InitFlags(); err != nil {
		klog.ErrorS(err, "failed to parse flags")
		return err
	}
	if err = s.initLogs(); err != nil {
		klog.ErrorS(err, "failed to init logs")
		return err
	}
	if err = s.initConfig(); err != nil {
		klog.ErrorS(err, "failed to init config")
		return err
	}
	if s.opts.Reconcile {
		// one-shot mode needs no database or background loops
		s.isInited = true
		return nil
	}
	if err = s.initComponents(); err != nil {
		klog.ErrorS(err, "failed to init components")
		return err
	}
	s.isInited = true
	return nil
}

// initLogs initializes the logging system with the specified log file path
// and size. It also sets up the controller-runtime logger to use klog.
func (s *Server) initLogs() error {
	if err := commonklog.Init(s.opts.LogfilePath, s.opts.LogFileSize); err != nil {
		return err
	}
	ctrlruntime.SetLogger(klogr.NewWithOptions())
	return nil
}

// initConfig loads the server configuration from the specified config file
// path. Reconcile mode runs on defaults when no config file is given.
func (s *Server) initConfig() error {
	if s.opts.Config == "" {
		return nil
	}
	fullPath, err := filepath.Abs(s.opts.Config)
	if err != nil {
		return err
	}
	if err = config.LoadConfig(fullPath); err != nil {
		return fmt.Errorf("config path: %s, err: %v", fullPath, err)
	}
	return nil
}

// initComponents wires the orchestrator graph bottom-up: storage first,
// then planning and scheduling, then the collection drivers.
func (s *Server) initComponents() error {
	s.dbClient = client.NewClient()
	if s.dbClient == nil {
		return fmt.Errorf("failed to connect to the metadata database")
	}

	var err error
	if s.artifacts, err = newArtifactStore(s.ctx); err != nil {
		return err
	}

	var signer *manifest.Signer
	if config.IsManifestSignEnabled() {
		if signer, err = manifest.LoadSigner(config.GetManifestSigningKeyPath()); err != nil {
			return err
		}
	}
	manifests := manifest.NewGenerator(s.dbClient, s.artifacts, signer)

	checkpoints := checkpoint.NewEngine(s.dbClient)
	s.sched = scheduler.New(s.dbClient)
	s.queue = queue.New(s.dbClient)

	source := collector.NewHttpSource()
	perItem := collector.NewPerItemDriver(s.dbClient, s.artifacts, source, checkpoints)
	bulk := collector.NewBulkDriver(s.queue, collector.NewFetcher(s.artifacts, s.dbClient))

	var estimate planner.EstimateFunc
	if config.GetSourceEndpoint() != "" {
		estimate = func(custodian, jobType string, start, end time.Time) (int64, int64) {
			estCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
			defer cancel()
			bytes, items, err := source.Estimate(estCtx, &collector.EstimateRequest{
				Custodian: custodian,
				JobType:   jobType,
				StartDate: start,
				EndDate:   end,
			})
			if err != nil {
				klog.V(2).Infof("window estimate unavailable for %s: %v", custodian, err)
				return 0, 0
			}
			return bytes, items
		}
	}

	quotas := lifecycle.NewQuotaTracker(config.GetQuotaLimitBytes(), config.GetQuotaLimitItems())
	s.manager = lifecycle.NewManager(s.dbClient,
		router.New(router.NewProfileStore()),
		planner.New(planner.ConfigFromViper(), estimate),
		quotas).
		WithManifests(manifests)

	reconciler := reconcile.New(s.dbClient, reconcile.ConfigFromViper())
	s.manager.WithReconciler(reconciler, config.GetArtifactRoot())

	if config.IsNotificationEnabled() {
		notifier, err := notification.NewManager(s.ctx)
		if err != nil {
			return err
		}
		notifier.Start(s.ctx)
		s.manager.WithNotifier(notifier)
	}

	s.finalizer = lifecycle.NewFinalizer(s.manager)
	s.sweeper = lifecycle.NewDeltaSweeper(s.dbClient)

	if config.IsWorkerEnabled() {
		s.pool = worker.NewPool(s.sched, perItem, bulk, checkpoints).WithNotifier(s.finalizer)
	}

	s.deps = &customhandler.Deps{
		DbClient:   s.dbClient,
		Lifecycle:  s.manager,
		Scheduler:  s.sched,
		Manifests:  manifests,
		Reconciler: reconciler,
		Artifacts:  s.artifacts,
		Finalizer:  s.finalizer,
	}
	return nil
}

func newArtifactStore(ctx context.Context) (artifact.Store, error) {
	if config.GetArtifactBackend() == "s3" || config.IsS3Enable() {
		return artifact.NewS3Store(ctx)
	}
	return artifact.NewFsStore(config.GetArtifactRoot())
}

// Start begins server operation: the HTTP server, the shard scheduler's
// reaper, the bulk queue maintenance loops, the job finalizer, and the
// embedded worker pool when enabled. It blocks until a stop signal.
func (s *Server) Start() {
	if !s.isInited {
		klog.Errorf("please init the server first")
		return
	}
	gin.EnableJsonDecoderDisallowUnknownFields()

	klog.Infof("starting custos server")
	go s.sched.RunReaper(s.ctx)
	go s.queue.RunTimeoutHandler(s.ctx)
	go s.queue.RunCleanup(s.ctx)
	s.finalizer.Run(s.ctx)
	if err := s.sweeper.Start(s.ctx); err != nil {
		klog.ErrorS(err, "failed to start the delta cursor sweeper")
	}
	if s.pool != nil {
		go s.pool.Run(s.ctx)
	}

	go func() {
		if err := s.startHttpServer(); err != nil && err != http.ErrServerClosed {
			klog.ErrorS(err, "failed to start http-server")
		}
	}()

	<-s.ctx.Done()
	s.Stop()
}

// Stop gracefully shuts down the HTTP server and flushes logs.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	klog.Info("shutting down http server...")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			klog.ErrorS(err, "failed to shutdown httpserver")
		}
	}
	klog.Info("custos server is stopped")
	klog.Flush()
}

// startHttpServer initializes and starts the HTTP server on the
// configured port.
func (s *Server) startHttpServer() error {
	if config.GetServerPort() <= 0 {
		return fmt.Errorf("the server port is not defined")
	}
	handler, err := handlers.InitHttpHandlers(s.ctx, s.deps)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf(":%d", config.GetServerPort())
	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	klog.Infof("http-server listen port: %d", config.GetServerPort())
	return s.httpServer.ListenAndServe()
}

// RunReconcile executes the one-shot reconciliation mode:
// custos --reconcile <custodian> <job_id> <source_manifest> <collected_manifest>
// It returns true when every gate passed.
func (s *Server) RunReconcile() (bool, error) {
	if len(s.opts.Args) < 4 {
		return false, fmt.Errorf("usage: --reconcile <custodian> <job_id> <source_manifest> <collected_manifest>")
	}
	custodian, jobArg, sourcePath, collectedPath := s.opts.Args[0], s.opts.Args[1], s.opts.Args[2], s.opts.Args[3]
	var jobId int64
	if _, err := fmt.Sscanf(jobArg, "%d", &jobId); err != nil || jobId <= 0 {
		return false, fmt.Errorf("invalid job id %q", jobArg)
	}

	cfg := reconcile.ConfigFromViper()
	cfg.DryRun = s.opts.DryRun
	// no store: the run prints its report instead of persisting it
	rec := reconcile.New(nil, cfg)
	result, err := rec.Run(s.ctx, jobId, sourcePath, collectedPath, custodian)
	if err != nil {
		return false, err
	}
	fmt.Println(string(customjson.MarshalSilently(result)))
	return result.OverallPassed, nil
}
