// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http 任务与积分的 HTTP 处理器
package http

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"aigc-platform/internal/gateway"
	"aigc-platform/pkg/log"
	"aigc-platform/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	gw      *gateway.Gateway
	logger  *log.Logger
	started time.Time
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(gw *gateway.Gateway, logger *log.Logger) *Handler {
	return &Handler{
		gw:      gw,
		logger:  logger,
		started: time.Now(),
	}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(h.started).String(),
		"service":   "aigc-api",
	})
}

// SystemMetrics Prometheus 指标
// GET /api/system/metrics
func (h *Handler) SystemMetrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "collect metrics failed",
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
