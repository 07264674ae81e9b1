/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package controller provides a generic rate-limited work queue loop used
// by the background maintenance tasks.
package controller

import (
	"context"
	"time"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"
	ctrlruntime "sigs.k8s.io/controller-runtime"
)

// Handler processes one message. The returned Result follows the
// controller-runtime contract: RequeueAfter schedules a delayed retry,
// Requeue an immediate rate-limited one.
type Handler[T comparable] interface {
	Do(ctx context.Context, message T) (ctrlruntime.Result, error)
}

// Controller fans messages from a typed rate-limiting queue out to
// MaxConcurrent workers.
type Controller[T comparable] struct {
	queue         workqueue.TypedRateLimitingInterface[T]
	handler       Handler[T]
	MaxConcurrent int
}

func NewController[T comparable](handler Handler[T], maxConcurrent int) *Controller[T] {
	queue := workqueue.NewTypedRateLimitingQueueWithConfig(
		workqueue.DefaultTypedControllerRateLimiter[T](),
		workqueue.TypedRateLimitingQueueConfig[T]{},
	)
	return NewControllerWithQueue(handler, queue, maxConcurrent)
}

func NewControllerWithQueue[T comparable](handler Handler[T], queue workqueue.TypedRateLimitingInterface[T], maxConcurrent int) *Controller[T] {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Controller[T]{
		queue:         queue,
		handler:       handler,
		MaxConcurrent: maxConcurrent,
	}
}

// Run starts the worker goroutines and returns immediately. The queue
// shuts down when ctx is cancelled.
func (c *Controller[T]) Run(ctx context.Context) {
	for i := 0; i < c.MaxConcurrent; i++ {
		go func() {
			for c.processNext(ctx) {
			}
		}()
	}
	go func() {
		<-ctx.Done()
		c.queue.ShutDown()
	}()
}

func (c *Controller[T]) Add(message T) {
	c.queue.Add(message)
}

func (c *Controller[T]) AddAfter(message T, delay time.Duration) {
	c.queue.AddAfter(message, delay)
}

func (c *Controller[T]) GetQueueSize() int {
	return c.queue.Len()
}

// processNext handles one message; false means the queue shut down.
func (c *Controller[T]) processNext(ctx context.Context) bool {
	message, shutdown := c.queue.Get()
	if shutdown {
		return false
	}
	defer c.queue.Done(message)

	result, err := c.handler.Do(ctx, message)
	switch {
	case err != nil:
		klog.ErrorS(err, "message handler failed, requeueing", "message", message)
		c.queue.AddRateLimited(message)
	case result.RequeueAfter > 0:
		c.queue.Forget(message)
		c.queue.AddAfter(message, result.RequeueAfter)
	case result.Requeue:
		c.queue.AddRateLimited(message)
	default:
		c.queue.Forget(message)
	}
	return true
}
