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
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"aigc-platform/internal/api/http/middleware"
	"aigc-platform/internal/application"
	"aigc-platform/internal/task"
)

// submitRequest 提交请求体；formConfig 为历史字段名,与 inputs 等价
type submitRequest struct {
	ApplicationID string                 `json:"applicationId"`
	FormConfig    map[string]interface{} `json:"formConfig"`
	Inputs        map[string]interface{} `json:"inputs"`
}

func (r *submitRequest) inputs() map[string]interface{} {
	if r.Inputs != nil {
		return r.Inputs
	}
	return r.FormConfig
}

// taskView 任务记录的对外视图；执行时长读取时派生
type taskView struct {
	*task.TaskExecution
	ExecutionTimeMs int64 `json:"executionTimeMs"`
}

func viewOf(t *task.TaskExecution) taskView {
	return taskView{
		TaskExecution:   t,
		ExecutionTimeMs: t.ExecutionTime(time.Now()).Milliseconds(),
	}
}

// SubmitTask 提交任务
// POST /api/tasks
func (h *Handler) SubmitTask(c context.Context, ctx *app.RequestContext) {
	var req submitRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ApplicationID) == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "applicationId is required"})
		return
	}

	t, err := h.gw.Submit(c, middleware.UserID(ctx), req.ApplicationID, req.inputs())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, viewOf(t))
}

// TaskStatus 查询任务状态
// GET /api/tasks/status?promptId=xxx
func (h *Handler) TaskStatus(c context.Context, ctx *app.RequestContext) {
	promptID := ctx.Query("promptId")
	if promptID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "promptId is required"})
		return
	}
	t, err := h.gw.Status(c, middleware.UserID(ctx), promptID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, viewOf(t))
}

// TaskResult 取任务结果；只有 completed 的任务有结果
// GET /api/tasks/result?promptId=xxx
func (h *Handler) TaskResult(c context.Context, ctx *app.RequestContext) {
	promptID := ctx.Query("promptId")
	if promptID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "promptId is required"})
		return
	}
	out, err := h.gw.Result(c, middleware.UserID(ctx), promptID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"promptId": promptID,
		"status":   task.StatusCompleted,
		"data":     out,
	})
}

// ListTasks 分页列出当前用户的任务
// GET /api/tasks?page=1&limit=20&status=&platformType=
func (h *Handler) ListTasks(c context.Context, ctx *app.RequestContext) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	f := task.Filter{
		Status:       task.Status(ctx.Query("status")),
		PlatformType: application.PlatformType(ctx.Query("platformType")),
		Page:         page,
		Limit:        limit,
	}

	list, total, err := h.gw.List(c, middleware.UserID(ctx), f)
	if err != nil {
		writeError(ctx, err)
		return
	}
	views := make([]taskView, 0, len(list))
	for _, t := range list {
		views = append(views, viewOf(t))
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"tasks": views,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// CancelTask 取消任务；远端尽力而为,本地必然落 cancelled
// DELETE /api/tasks/:promptId
func (h *Handler) CancelTask(c context.Context, ctx *app.RequestContext) {
	promptID := ctx.Param("promptId")
	if promptID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{"error": "promptId is required"})
		return
	}
	t, err := h.gw.Cancel(c, middleware.UserID(ctx), promptID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"message": "task cancelled",
		"task":    viewOf(t),
	})
}
