/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
)

// presignExpireSeconds bounds a direct manifest download link.
const presignExpireSeconds = int64(15 * 60)

func (h *Handler) GenerateManifest(c *gin.Context) {
	handle(c, h.generateManifest)
}

func (h *Handler) SealManifest(c *gin.Context) {
	handle(c, h.sealManifest)
}

func (h *Handler) VerifyManifest(c *gin.Context) {
	handle(c, h.verifyManifest)
}

func (h *Handler) GetManifest(c *gin.Context) {
	handle(c, h.getManifest)
}

func (h *Handler) DownloadManifest(c *gin.Context) {
	handle(c, h.downloadManifest)
}

func (h *Handler) ListJobManifests(c *gin.Context) {
	handle(c, h.listJobManifests)
}

func (h *Handler) generateManifest(c *gin.Context) (interface{}, error) {
	if h.manifests == nil {
		return nil, customerrors.NewInternalError("the manifest generator is not configured")
	}
	jobId, err := pathId(c, types.JobId)
	if err != nil {
		return nil, err
	}
	row, _, err := h.manifests.Generate(c.Request.Context(), jobId)
	if err != nil {
		return nil, err
	}
	klog.Infof("generated manifest %s for job %d", row.ManifestId, jobId)
	c.Status(http.StatusCreated)
	return row, nil
}

func (h *Handler) sealManifest(c *gin.Context) (interface{}, error) {
	if h.manifests == nil {
		return nil, customerrors.NewInternalError("the manifest generator is not configured")
	}
	manifestId := c.Param(types.Id)
	if manifestId == "" {
		return nil, customerrors.NewBadRequest("manifest id is required")
	}
	sealedPath, err := h.manifests.Seal(c.Request.Context(), manifestId)
	if err != nil {
		return nil, err
	}
	klog.Infof("sealed manifest %s at %s", manifestId, sealedPath)
	return h.dbClient.GetJobManifest(c.Request.Context(), manifestId)
}

func (h *Handler) verifyManifest(c *gin.Context) (interface{}, error) {
	if h.manifests == nil {
		return nil, customerrors.NewInternalError("the manifest generator is not configured")
	}
	manifestId := c.Param(types.Id)
	if manifestId == "" {
		return nil, customerrors.NewBadRequest("manifest id is required")
	}
	state, err := h.manifests.Verify(c.Request.Context(), manifestId)
	if err != nil {
		return nil, err
	}
	return gin.H{"manifestId": manifestId, "state": state}, nil
}

func (h *Handler) getManifest(c *gin.Context) (interface{}, error) {
	manifestId := c.Param(types.Id)
	if manifestId == "" {
		return nil, customerrors.NewBadRequest("manifest id is required")
	}
	return h.dbClient.GetJobManifest(c.Request.Context(), manifestId)
}

// downloadManifest streams the manifest file, or redirects to a presigned
// URL when the artifact backend supports direct downloads.
func (h *Handler) downloadManifest(c *gin.Context) (interface{}, error) {
	if h.artifacts == nil {
		return nil, customerrors.NewInternalError("the artifact store is not configured")
	}
	manifestId := c.Param(types.Id)
	if manifestId == "" {
		return nil, customerrors.NewBadRequest("manifest id is required")
	}
	row, err := h.dbClient.GetJobManifest(c.Request.Context(), manifestId)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(c.DefaultQuery("format", "json"))
	var path, contentType string
	switch format {
	case "json":
		path, contentType = row.JsonPath, jsonContentType
	case "csv":
		path, contentType = row.CsvPath.String, "text/csv; charset=utf-8"
	default:
		return nil, customerrors.NewBadRequest(fmt.Sprintf("unknown format %q, want csv or json", format))
	}
	if path == "" {
		return nil, customerrors.NewNotFoundWithMessage(
			fmt.Sprintf("manifest %s has no %s artifact", manifestId, format))
	}

	if url, err := h.artifacts.PresignGet(c.Request.Context(), path, presignExpireSeconds); err == nil && url != "" {
		c.Redirect(http.StatusFound, url)
		return nil, nil
	}

	reader, err := h.artifacts.Read(c.Request.Context(), path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=manifest_%s.%s", manifestId, format))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err = io.Copy(c.Writer, reader); err != nil {
		klog.ErrorS(err, "manifest download interrupted", "manifestId", manifestId)
	}
	return nil, nil
}

func (h *Handler) listJobManifests(c *gin.Context) (interface{}, error) {
	jobId, err := pathId(c, types.JobId)
	if err != nil {
		return nil, err
	}
	tags := client.GetJobManifestFieldTags()
	manifests, err := h.dbClient.SelectJobManifests(c.Request.Context(),
		sqrl.Eq{client.GetFieldTag(tags, "JobId"): jobId}, -1, 0)
	if err != nil {
		return nil, err
	}
	return &types.ManifestListResponse{Items: manifests}, nil
}
