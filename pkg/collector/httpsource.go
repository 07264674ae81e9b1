/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package collector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	resty "github.com/go-resty/resty/v2"
	pkgerrors "github.com/pkg/errors"

	"github.com/AMD-AIG-AIMA/Custos/pkg/checkpoint"
	"github.com/AMD-AIG-AIMA/Custos/pkg/config"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customjson "github.com/AMD-AIG-AIMA/Custos/pkg/json"
)

// sourceEntry is one item listed by the connector's paging endpoint.
type sourceEntry struct {
	ItemId      string    `json:"item_id"`
	Name        string    `json:"name"`
	ItemType    string    `json:"item_type"`
	Subject     string    `json:"subject,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	ItemDate    time.Time `json:"item_date,omitempty"`
	DownloadUrl string    `json:"download_url"`
}

type sourcePage struct {
	Items      []sourceEntry `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type sourceEstimate struct {
	EstimatedBytes int64 `json:"estimated_bytes"`
	EstimatedItems int64 `json:"estimated_items"`
}

// HttpSource is a per-item Source backed by the connector REST API. Paging
// and item downloads go through the same client; an HTTP 429 from either
// surfaces as *Throttled so the driver can back off instead of failing.
type HttpSource struct {
	http     *resty.Client
	endpoint string
	pageSize int
}

func NewHttpSource() *HttpSource {
	httpClient := resty.New().
		SetTimeout(2 * time.Minute).
		SetRetryCount(3).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(15 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 429 is surfaced to the driver, not retried here
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	pageSize := config.GetSourcePageSize()
	if pageSize < 1 {
		pageSize = 1
	}
	return &HttpSource{
		http:     httpClient,
		endpoint: strings.TrimRight(config.GetSourceEndpoint(), "/"),
		pageSize: pageSize,
	}
}

func (s *HttpSource) Estimate(ctx context.Context, req *EstimateRequest) (int64, int64, error) {
	if s.endpoint == "" {
		return 0, 0, fmt.Errorf("source endpoint is not configured")
	}
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"custodian": req.Custodian,
			"job_type":  req.JobType,
			"start":     req.StartDate.UTC().Format(time.RFC3339),
			"end":       req.EndDate.UTC().Format(time.RFC3339),
		}).
		Get(s.endpoint + "/estimate")
	if err != nil {
		return 0, 0, pkgerrors.Wrapf(err, "failed to estimate %s for %s", req.JobType, req.Custodian)
	}
	if err = checkSourceStatus(resp); err != nil {
		return 0, 0, err
	}
	est := sourceEstimate{}
	if err = customjson.Unmarshal(resp.Body(), &est); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "estimate response is not json")
	}
	return est.EstimatedBytes, est.EstimatedItems, nil
}

func (s *HttpSource) Items(_ context.Context, shard *client.Shard, resume []*client.Checkpoint) (ItemIterator, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("source endpoint is not configured")
	}
	return &httpIterator{
		source:     s,
		shard:      shard,
		deltaToken: latestDeltaToken(resume),
		firstPage:  true,
	}, nil
}

// latestDeltaToken picks the resume position out of the shard's prior
// checkpoints. The connector treats it as opaque.
func latestDeltaToken(resume []*client.Checkpoint) string {
	token := ""
	for _, cp := range resume {
		payload, err := checkpoint.ParsePayload(cp.CheckpointType, cp.Payload)
		if err != nil {
			continue
		}
		switch p := payload.(type) {
		case checkpoint.MailFolderPayload:
			if p.DeltaToken != "" {
				token = p.DeltaToken
			}
		case checkpoint.OneDrivePayload:
			if p.DeltaToken != "" {
				token = p.DeltaToken
			}
		case checkpoint.SharePointPayload:
			if p.DeltaToken != "" {
				token = p.DeltaToken
			}
		}
	}
	return token
}

// httpIterator walks the connector's item listing page by page, fetching
// each item's body on demand.
type httpIterator struct {
	source     *HttpSource
	shard      *client.Shard
	deltaToken string

	firstPage bool
	cursor    string
	page      []sourceEntry
	offset    int
}

func (it *httpIterator) Next(ctx context.Context) (*SourceItem, error) {
	for it.offset >= len(it.page) {
		if !it.firstPage && it.cursor == "" {
			return nil, io.EOF
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}
	entry := it.page[it.offset]
	it.offset++

	body, err := it.source.download(ctx, entry.DownloadUrl)
	if err != nil {
		return nil, err
	}
	return &SourceItem{
		Id:       entry.ItemId,
		Name:     entry.Name,
		ItemType: entry.ItemType,
		Subject:  entry.Subject,
		From:     entry.From,
		To:       entry.To,
		ItemDate: entry.ItemDate,
		Body:     bytes.NewReader(body),
	}, nil
}

func (it *httpIterator) fetchPage(ctx context.Context) error {
	params := map[string]string{
		"custodian": it.shard.CustodianEmail,
		"job_type":  it.shard.JobType,
		"start":     it.shard.StartDate.Time.UTC().Format(time.RFC3339),
		"end":       it.shard.EndDate.Time.UTC().Format(time.RFC3339),
		"page_size": strconv.Itoa(it.source.pageSize),
	}
	if it.cursor != "" {
		params["cursor"] = it.cursor
	}
	if it.deltaToken != "" {
		params["delta_token"] = it.deltaToken
	}
	resp, err := it.source.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(it.source.endpoint + "/items")
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to list items for shard %d", it.shard.Id)
	}
	if err = checkSourceStatus(resp); err != nil {
		return err
	}
	page := sourcePage{}
	if err = customjson.Unmarshal(resp.Body(), &page); err != nil {
		return pkgerrors.Wrapf(err, "item listing for shard %d is not json", it.shard.Id)
	}
	it.firstPage = false
	it.page = page.Items
	it.offset = 0
	it.cursor = page.NextCursor
	if len(page.Items) == 0 && page.NextCursor == "" {
		return io.EOF
	}
	return nil
}

func (s *HttpSource) download(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("item has no download url")
	}
	resp, err := s.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to download %s", url)
	}
	if err = checkSourceStatus(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// checkSourceStatus maps 429 to *Throttled, honoring Retry-After.
func checkSourceStatus(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == 429:
		return &Throttled{RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	case resp.StatusCode() >= 300:
		return fmt.Errorf("source returned %d for %s", resp.StatusCode(), resp.Request.URL)
	}
	return nil
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := time.Parse(time.RFC1123, value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
