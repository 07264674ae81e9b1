/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package router

import (
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/timeutil"
)

// Profile is an observed per-day volume for one custodian and job type,
// typically fed back from completed jobs.
type Profile struct {
	BytesPerDay int64
	ItemsPerDay int64
	UpdatedAt   time.Time
}

// conservative per-day defaults used when no profile is cached
var defaultProfiles = map[string]Profile{
	"Email":      {BytesPerDay: 200 * 1024 * 1024, ItemsPerDay: 400},
	"OneDrive":   {BytesPerDay: 1024 * 1024 * 1024, ItemsPerDay: 600},
	"SharePoint": {BytesPerDay: 512 * 1024 * 1024, ItemsPerDay: 300},
	"Teams":      {BytesPerDay: 50 * 1024 * 1024, ItemsPerDay: 800},
	"Mixed":      {BytesPerDay: 2 * 1024 * 1024 * 1024, ItemsPerDay: 2000},
}

// ProfileStore caches custodian volume profiles with a TTL so routing does
// not keep consulting stale observations.
type ProfileStore struct {
	cache *gocache.Cache
}

func NewProfileStore() *ProfileStore {
	ttl := time.Duration(config.GetAutoRouterProfileTTLSecond()) * time.Second
	return &ProfileStore{
		cache: gocache.New(ttl, 2*ttl),
	}
}

func profileKey(custodian, jobType string) string {
	return strings.ToLower(custodian) + "|" + jobType
}

// Put records a profile for (custodian, jobType).
func (s *ProfileStore) Put(custodian, jobType string, profile Profile) {
	s.cache.SetDefault(profileKey(custodian, jobType), profile)
}

// Get returns the cached profile, if any.
func (s *ProfileStore) Get(custodian, jobType string) (Profile, bool) {
	val, found := s.cache.Get(profileKey(custodian, jobType))
	if !found {
		return Profile{}, false
	}
	return val.(Profile), true
}

// estimate projects (bytes, items) for the request's window. The second
// return reports whether a cached custodian profile backed the numbers;
// otherwise conservative per-job-type defaults were used.
func (s *ProfileStore) estimate(req *Request) (int64, int64, bool) {
	days := timeutil.DaysBetween(req.StartDate, req.EndDate)
	if days <= 0 {
		return 0, 0, false
	}
	if profile, found := s.Get(req.Custodian, req.JobType); found {
		return profile.BytesPerDay * int64(days), profile.ItemsPerDay * int64(days), true
	}
	fallback, ok := defaultProfiles[req.JobType]
	if !ok {
		fallback = defaultProfiles["Mixed"]
	}
	return fallback.BytesPerDay * int64(days), fallback.ItemsPerDay * int64(days), true
}
