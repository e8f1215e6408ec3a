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

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"aigc-platform/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// Build 创建 Hertz server 并注册全部路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	options := append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(options...)

	h.Use(r.middleware.CORS())

	api := h.Group("/api")

	// 健康与指标不要求身份
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/system/metrics", r.handler.SystemMetrics)

	tasks := api.Group("/tasks", r.middleware.Identity())
	{
		tasks.POST("", r.handler.SubmitTask)
		tasks.GET("", r.handler.ListTasks)
		tasks.GET("/status", r.handler.TaskStatus)
		tasks.GET("/result", r.handler.TaskResult)
		tasks.DELETE("/:promptId", r.handler.CancelTask)
	}

	credits := api.Group("/credits", r.middleware.Identity())
	{
		credits.GET("/balance", r.handler.CreditBalance)
		credits.GET("/transactions", r.handler.CreditTransactions)
		credits.POST("/grant", r.handler.CreditGrant)
	}

	return h
}
