/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package custom_handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/Custos/pkg/artifact"
	"github.com/AMD-AIG-AIMA/Custos/pkg/database/client"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/Custos/pkg/json"
	"github.com/AMD-AIG-AIMA/Custos/pkg/lifecycle"
	"github.com/AMD-AIG-AIMA/Custos/pkg/manifest"
	"github.com/AMD-AIG-AIMA/Custos/pkg/reconcile"
	"github.com/AMD-AIG-AIMA/Custos/pkg/scheduler"
	apiutils "github.com/AMD-AIG-AIMA/Custos/pkg/utils"
)

var (
	jsonContentType = "application/json; charset=utf-8"
)

// Deps carries everything the HTTP surface delegates to.
type Deps struct {
	DbClient   client.Interface
	Lifecycle  *lifecycle.Manager
	Scheduler  *scheduler.Scheduler
	Manifests  *manifest.Generator
	Reconciler *reconcile.Reconciler
	Artifacts  artifact.Store
	Finalizer  *lifecycle.Finalizer
}

type Handler struct {
	dbClient   client.Interface
	lifecycle  *lifecycle.Manager
	sched      *scheduler.Scheduler
	manifests  *manifest.Generator
	reconciler *reconcile.Reconciler
	artifacts  artifact.Store
	finalizer  *lifecycle.Finalizer
}

func NewHandler(deps *Deps) (*Handler, error) {
	if deps.DbClient == nil {
		return nil, customerrors.NewInternalError("the db client is required")
	}
	h := &Handler{
		dbClient:   deps.DbClient,
		lifecycle:  deps.Lifecycle,
		sched:      deps.Scheduler,
		manifests:  deps.Manifests,
		reconciler: deps.Reconciler,
		artifacts:  deps.Artifacts,
		finalizer:  deps.Finalizer,
	}
	return h, nil
}

type handleFunc func(*gin.Context) (interface{}, error)

func handle(c *gin.Context, fn handleFunc) {
	rsp, err := fn(c)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	code := http.StatusOK
	// If a status was previously set, use that status in the response.
	if c.Writer.Status() > 0 {
		code = c.Writer.Status()
	}
	switch rspType := rsp.(type) {
	case nil:
		c.Status(code)
	case []byte:
		c.Data(code, jsonContentType, rspType)
	case string:
		c.Data(code, jsonContentType, []byte(rspType))
	default:
		c.JSON(code, rspType)
	}
}

func getBodyFromRequest(req *http.Request, bodyStruct interface{}) ([]byte, error) {
	body, err := apiutils.ReadBody(req)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	if err = jsonutils.UnmarshalStrict(body, bodyStruct); err != nil {
		return body, customerrors.NewBadRequest(err.Error())
	}
	return body, nil
}
