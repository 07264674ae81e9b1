/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package router implements the routing decision between the synchronous
// per-item API back-end and the asynchronous bulk pipeline.
package router

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// bulkFactor is the multiple of a threshold beyond which the bulk pipeline
// is the only sensible route.
const bulkFactor = 2

type Router struct {
	profiles *ProfileStore
}

func New(profiles *ProfileStore) *Router {
	if profiles == nil {
		profiles = NewProfileStore()
	}
	return &Router{profiles: profiles}
}

// Profiles exposes the estimator cache so job actuals can feed it back.
func (r *Router) Profiles() *ProfileStore {
	return r.profiles
}

// Decide picks a route for the request. Pure apart from the profile cache
// read: no store writes, no network.
//
// The decision is monotone in the estimates: once the numbers are large
// enough for BulkPipeline, growing them further never flips the route back.
func (r *Router) Decide(req *Request, quota *Quota, th *Thresholds) (*Decision, error) {
	if req == nil || req.Custodian == "" {
		return nil, customerrors.NewBadRequest("custodian is empty")
	}
	if req.EndDate.Before(req.StartDate) {
		return nil, customerrors.NewBadRequest(
			fmt.Sprintf("date range is inverted: %s after %s",
				req.StartDate.Format("2006-01-02"), req.EndDate.Format("2006-01-02")))
	}

	estBytes, estItems, found := r.profiles.estimate(req)
	if !found {
		decision := &Decision{
			Route:          client.RoutePerItemApi,
			Reason:         "fallback",
			Confidence:     th.ConfidenceLow,
			EstimatedBytes: 0,
			EstimatedItems: 0,
		}
		metrics.RouteDecisions.WithLabelValues(decision.Route).Inc()
		return decision, nil
	}

	decision := &Decision{
		EstimatedBytes: estBytes,
		EstimatedItems: estItems,
		Metrics: map[string]int64{
			"estimatedBytes": estBytes,
			"estimatedItems": estItems,
			"maxBytes":       th.MaxBytes,
			"maxItems":       th.MaxItems,
		},
	}

	underThresholds := estBytes < th.MaxBytes && estItems < th.MaxItems
	quotaHasRoom := quota == nil ||
		(quota.UsedBytes+estBytes <= quota.LimitBytes && quota.UsedItems+estItems <= quota.LimitItems)

	switch {
	case underThresholds && quotaHasRoom:
		decision.Route = client.RoutePerItemApi
		decision.Reason = "estimate under thresholds with quota headroom"
		decision.Confidence = th.ConfidenceHigh
	case estBytes >= bulkFactor*th.MaxBytes || estItems >= bulkFactor*th.MaxItems:
		decision.Route = client.RouteBulkPipeline
		decision.Reason = "estimate at least twice a per-item threshold"
		decision.Confidence = th.ConfidenceHigh
	case underThresholds && !quotaHasRoom:
		decision.Route = client.RouteBulkPipeline
		decision.Reason = "per-item quota exhausted"
		decision.Confidence = th.ConfidenceMedium
	default:
		// between 1x and 2x of a threshold: pick the back-end whose
		// threshold is less violated
		if !quotaHasRoom ||
			violationRatio(estBytes, th.MaxBytes) >= 1.5 || violationRatio(estItems, th.MaxItems) >= 1.5 {
			decision.Route = client.RouteBulkPipeline
			decision.Reason = "estimate closer to the bulk threshold"
		} else {
			decision.Route = client.RoutePerItemApi
			decision.Reason = "estimate marginally over a per-item threshold"
		}
		decision.Confidence = th.ConfidenceMedium
	}

	klog.V(4).Infof("route decision for %s/%s: %s (%s), est %d bytes / %d items",
		req.Custodian, req.JobType, decision.Route, decision.Reason, estBytes, estItems)
	metrics.RouteDecisions.WithLabelValues(decision.Route).Inc()
	return decision, nil
}

func violationRatio(est, threshold int64) float64 {
	if threshold <= 0 {
		return 0
	}
	return float64(est) / float64(threshold)
}
