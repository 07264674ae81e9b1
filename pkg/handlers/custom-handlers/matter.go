/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"fmt"
	"strings"
	"time"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/Custos/pkg/database/utils"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	"github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers/types"
)

func (h *Handler) CreateMatter(c *gin.Context) {
	handle(c, h.createMatter)
}

func (h *Handler) GetMatter(c *gin.Context) {
	handle(c, h.getMatter)
}

func (h *Handler) ListMatter(c *gin.Context) {
	handle(c, h.listMatter)
}

func (h *Handler) createMatter(c *gin.Context) (interface{}, error) {
	req := &types.CreateMatterRequest{}
	body, err := getBodyFromRequest(c.Request, req)
	if err != nil {
		klog.ErrorS(err, "failed to parse matter request", "body", string(body))
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.CaseNumber) == "" {
		return nil, customerrors.NewBadRequest("name and caseNumber are required")
	}
	if existing, err := h.dbClient.GetMatterByCaseNumber(c.Request.Context(), req.CaseNumber); err == nil && existing != nil {
		return nil, customerrors.NewAlreadyExist(fmt.Sprintf("case number %s already exists", req.CaseNumber))
	}

	matter := &client.Matter{
		Name:       req.Name,
		CaseNumber: req.CaseNumber,
		CreatedAt:  dbutils.NullTime(time.Now().UTC()),
		CreatedBy:  dbutils.NullString(req.CreatedBy),
		IsActive:   true,
	}
	id, err := h.dbClient.InsertMatter(c.Request.Context(), matter)
	if err != nil {
		return nil, err
	}
	klog.Infof("created matter %d (%s / %s)", id, req.Name, req.CaseNumber)
	return &types.CreateMatterResponse{MatterId: id}, nil
}

func (h *Handler) getMatter(c *gin.Context) (interface{}, error) {
	id, err := pathId(c, types.Id)
	if err != nil {
		return nil, err
	}
	return h.dbClient.GetMatter(c.Request.Context(), id)
}

func (h *Handler) listMatter(c *gin.Context) (interface{}, error) {
	limit, offset := pagination(c)
	query := sqrl.And{}
	tags := client.GetMatterFieldTags()
	if active := c.Query("active"); active != "" {
		query = append(query, sqrl.Eq{client.GetFieldTag(tags, "IsActive"): active == "true"})
	}
	if name := c.Query("name"); name != "" {
		query = append(query, sqrl.Like{client.GetFieldTag(tags, "Name"): "%" + name + "%"})
	}

	matters, err := h.dbClient.SelectMatters(c.Request.Context(), query,
		[]string{client.CreatedTime + " " + client.DESC}, limit, offset)
	if err != nil {
		return nil, err
	}
	count, err := h.dbClient.CountMatters(c.Request.Context(), query)
	if err != nil {
		return nil, err
	}
	return &types.MatterListResponse{TotalCount: count, Items: matters}, nil
}
