/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/Custos/pkg/clock"
	customerrors "github.com/AMD-AIG-AIMA/Custos/pkg/errors"
	jsonutils "github.com/AMD-AIG-AIMA/Custos/pkg/json"
)

const (
	DefaultMaxRequestBodyBytes = int64(2 * 1024 * 1024)

	HeaderCorrelationId = "X-Correlation-Id"
)

// ReadBody reads the HTTP request body with a size limit to prevent excessive memory consumption.
// It uses a LimitedReader to restrict the maximum number of bytes that can be read.
// The request body is automatically closed after reading.
func ReadBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	var lr *io.LimitedReader
	data, err := func() ([]byte, error) {
		lr = &io.LimitedReader{
			R: req.Body,
			N: DefaultMaxRequestBodyBytes + 1,
		}
		return io.ReadAll(lr)
	}()
	if err != nil {
		return nil, customerrors.NewInternalError(err.Error())
	}
	if lr != nil && lr.N <= 0 {
		return nil, customerrors.NewRequestEntityTooLargeError(
			fmt.Sprintf("the max length is %d bytes", DefaultMaxRequestBodyBytes))
	}
	return data, nil
}

// ParseRequestBody reads the request body and unmarshals it into the provided struct.
// An empty body is not an error; the struct is left untouched.
func ParseRequestBody(req *http.Request, bodyStruct interface{}) ([]byte, error) {
	body, err := ReadBody(req)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	if err = jsonutils.Unmarshal(body, bodyStruct); err != nil {
		return body, customerrors.NewBadRequest(err.Error())
	}
	return body, nil
}

// Logger is the access-log middleware. Every request gets a correlation
// id, echoed in the response header and carried into audit trails.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		correlationId := c.GetHeader(HeaderCorrelationId)
		if correlationId == "" {
			correlationId = clock.NewCorrelationId()
		}
		c.Set(ContextCorrelationId, correlationId)
		c.Writer.Header().Set(HeaderCorrelationId, correlationId)

		c.Next()

		latency := time.Since(started)
		status := c.Writer.Status()
		if len(c.Errors) > 0 {
			klog.Warningf("%s %s -> %d (%s) [%s]: %s",
				c.Request.Method, c.Request.URL.Path, status, latency, correlationId,
				c.Errors.ByType(gin.ErrorTypeAny).String())
			return
		}
		klog.V(2).Infof("%s %s -> %d (%s) [%s]",
			c.Request.Method, c.Request.URL.Path, status, latency, correlationId)
	}
}

// ContextCorrelationId is the gin context key set by Logger.
const ContextCorrelationId = "correlationId"

// CorrelationId returns the request's correlation id, or empty outside
// the Logger middleware.
func CorrelationId(c *gin.Context) string {
	return c.GetString(ContextCorrelationId)
}
