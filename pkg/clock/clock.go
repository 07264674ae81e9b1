/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package clock

import (
	"github.com/google/uuid"
	utilclock "k8s.io/utils/clock"
)

// Clock is the time source handed to components that schedule or expire
// work. Tests substitute a fake from k8s.io/utils/clock/testing.
type Clock = utilclock.Clock

// Real returns the wall clock.
func Real() Clock {
	return utilclock.RealClock{}
}

// NewCorrelationId returns a fresh correlation id for audit trails.
func NewCorrelationId() string {
	return uuid.NewString()
}

// NewLeaseToken returns the token identifying one lease grant.
func NewLeaseToken() string {
	return uuid.NewString()
}

// NewManifestId returns the identifier for a generated manifest.
func NewManifestId() string {
	return uuid.NewString()
}
