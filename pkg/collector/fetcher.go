/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package collector

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	resty "github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customjson "github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/metrics"
)

// DatasetEntry is one binary listed by the bulk pipeline's dataset
// endpoint.
type DatasetEntry struct {
	ItemId      string `json:"item_id"`
	Name        string `json:"name"`
	ItemType    string `json:"item_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Sha256      string `json:"sha256,omitempty"`
	DownloadUrl string `json:"download_url"`
}

// Fetcher walks a produced dataset, downloads every binary through a
// circuit breaker, and persists each with its hash. Download concurrency
// is capped by a weighted semaphore.
type Fetcher struct {
	http        *resty.Client
	breaker     *gobreaker.CircuitBreaker
	concurrency int64
	artifacts   artifact.Store
	store       ItemStore
}

func NewFetcher(artifacts artifact.Store, store ItemStore) *Fetcher {
	httpClient := resty.New().
		SetTimeout(5 * time.Minute).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == 429 || r.StatusCode() >= 500
		})
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "bulk-dataset",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			klog.Warningf("circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	concurrency := config.GetBulkFetchConcurrency()
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		http:        httpClient,
		breaker:     breaker,
		concurrency: int64(concurrency),
		artifacts:   artifacts,
		store:       store,
	}
}

// FetchDataset lists the dataset and downloads every entry. Individual
// failures become unsuccessful CollectedItem rows; only listing-level
// failures are errors.
func (f *Fetcher) FetchDataset(ctx context.Context, shard *client.Shard, datasetUrl string, sink ProgressSink) (*Result, error) {
	listing, err := f.get(ctx, datasetUrl)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list dataset %s", datasetUrl)
	}
	var entries []DatasetEntry
	if err = customjson.Unmarshal(listing, &entries); err != nil {
		return nil, pkgerrors.Wrapf(err, "dataset listing %s is not json", datasetUrl)
	}

	sem := semaphore.NewWeighted(f.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := &Result{}
	var pendingItems, pendingBytes int64
	var sinkErr error

	for i := range entries {
		if err = sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(sequence int64, entry *DatasetEntry) {
			defer sem.Release(1)
			defer wg.Done()
			row, fetchErr := f.fetchOne(ctx, shard, sequence, entry)
			inserted, insErr := f.store.InsertCollectedItem(ctx, row)
			mu.Lock()
			defer mu.Unlock()
			if insErr != nil {
				if sinkErr == nil {
					sinkErr = insErr
				}
				return
			}
			if !inserted {
				metrics.ItemsSkippedDuplicate.Inc()
				return
			}
			if fetchErr != nil {
				result.FailedItems++
				return
			}
			result.Items++
			result.Bytes += row.SizeBytes
			pendingItems++
			pendingBytes += row.SizeBytes
			metrics.ItemsCollected.WithLabelValues(shard.JobType).Inc()
			metrics.BytesCollected.WithLabelValues(shard.JobType).Add(float64(row.SizeBytes))
			if pendingItems >= reportEveryItems {
				pct := progressPct(result.Items+result.FailedItems, int64(len(entries)))
				if err := sink.Report(ctx, pendingItems, pendingBytes, pct); err != nil && sinkErr == nil {
					sinkErr = err
				}
				pendingItems, pendingBytes = 0, 0
			}
		}(int64(i+1), &entries[i])
	}
	wg.Wait()
	if err = ctx.Err(); err != nil {
		return result, err
	}
	if sinkErr != nil {
		return result, sinkErr
	}
	if pendingItems > 0 || pendingBytes > 0 {
		pct := progressPct(result.Items+result.FailedItems, int64(len(entries)))
		if err = sink.Report(ctx, pendingItems, pendingBytes, pct); err != nil {
			return result, err
		}
	}
	result.Ok = result.FailedItems == 0
	if result.FailedItems > 0 {
		result.Error = fmt.Sprintf("%d of %d dataset binaries failed", result.FailedItems, len(entries))
	}
	return result, nil
}

// fetchOne downloads a single binary and persists it. The returned row is
// always insertable; fetch failures mark it unsuccessful.
func (f *Fetcher) fetchOne(ctx context.Context, shard *client.Shard, sequence int64, entry *DatasetEntry) (*client.CollectedItem, error) {
	row := &client.CollectedItem{
		ShardId:      shard.Id,
		SourceItemId: entry.ItemId,
		ItemType:     entry.ItemType,
		CollectedAt:  dbutils.NullTime(time.Now().UTC()),
		IsSuccessful: true,
	}
	body, err := f.get(ctx, entry.DownloadUrl)
	if err != nil {
		row.IsSuccessful = false
		row.Error = dbutils.NullString(err.Error())
		return row, err
	}
	wr, err := f.artifacts.Write(ctx, artifactName(shard, sequence, entry.Name), bytes.NewReader(body))
	if err != nil {
		row.IsSuccessful = false
		row.Error = dbutils.NullString(err.Error())
		return row, err
	}
	if entry.Sha256 != "" && !strings.EqualFold(entry.Sha256, wr.Sha256) {
		err = fmt.Errorf("hash mismatch for %s: dataset declares %s, downloaded %s",
			entry.ItemId, entry.Sha256, wr.Sha256)
		row.IsSuccessful = false
		row.Error = dbutils.NullString(err.Error())
		return row, err
	}
	row.SizeBytes = wr.SizeBytes
	row.Sha256 = wr.Sha256
	row.ArtifactPath = dbutils.NullString(wr.Path)
	return row, nil
}

// get runs one GET through the breaker and returns the body bytes.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	body, err := f.breaker.Execute(func() (interface{}, error) {
		resp, err := f.http.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}
