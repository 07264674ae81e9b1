/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package backoff

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Retry executes an operation with exponential backoff until it succeeds or
// maxElapsedTime is reached. maxInterval caps the gap between attempts.
func Retry(op backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsedTime
	b.MaxInterval = maxInterval
	if err := backoff.Retry(op, b); err != nil {
		return err
	}
	return nil
}

// RetryContext is Retry bound to ctx; cancellation stops further attempts.
func RetryContext(ctx context.Context, op backoff.Operation, maxElapsedTime, maxInterval time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsedTime
	b.MaxInterval = maxInterval
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// ConflictRetry retries an operation a fixed number of times with a fixed
// interval, but only while the error is a conflict. Other errors return
// immediately.
func ConflictRetry(op backoff.Operation, count int, interval time.Duration) error {
	for i := 0; i < count; i++ {
		err := op()
		if err == nil {
			break
		}
		if i == count-1 || !apierrors.IsConflict(err) {
			return err
		}
		time.Sleep(interval)
	}
	return nil
}

// NextThrottleDelay merges an upstream retry-after hint with the next
// exponential interval; the larger of the two wins.
func NextThrottleDelay(b backoff.BackOff, retryAfter time.Duration) time.Duration {
	next := b.NextBackOff()
	if next == backoff.Stop {
		next = 0
	}
	if retryAfter > next {
		return retryAfter
	}
	return next
}

// NewThrottleBackOff builds the policy drivers use to absorb upstream
// throttling: exponential with jitter, never giving up on elapsed time.
func NewThrottleBackOff(initial, maxInterval time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	return b
}
