/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

// Package handlers assembles the HTTP surface of the orchestrator.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	customhandler "github.com/AMD-AIG-AIMA/Custos/pkg/handlers/custom-handlers"
	apiutils "github.com/AMD-AIG-AIMA/Custos/pkg/utils"
)

var startedAt = time.Now().UTC()

// InitHttpHandlers initializes the HTTP handlers for the API server.
// It creates a new Gin engine, sets up middleware including logging and
// recovery, and registers the API routes.
func InitHttpHandlers(_ context.Context, deps *customhandler.Deps) (*gin.Engine, error) {
	engine := gin.New()
	engine.Use(apiutils.Logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		apiutils.AbortWithApiError(c, customerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})

	customHandler, err := customhandler.NewHandler(deps)
	if err != nil {
		return nil, err
	}
	customhandler.InitCustomRouters(engine, customHandler)

	engine.GET("/healthz", healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return engine, nil
}

func healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(startedAt).Seconds()),
	})
}
