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

// Package task 持有任务执行记录与其状态机。
// 每次提交产生一条 TaskExecution，状态只向前推进：
// pending → running → {completed|failed|cancelled}，pending 可直接到 cancelled/failed。
package task

import (
	"encoding/json"
	"time"

	"aigc-platform/internal/application"
	"aigc-platform/pkg/errors"
)

// Status 任务状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusUnknown 远端状态无法归入五态时的归一结果；只作查询返回，不落库
	StatusUnknown Status = "unknown"
)

// Terminal 是否终态；终态后记录只读，轮询直接返回缓存
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition 状态机允许的前向边
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusFailed || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

// QueueInfo 远端队列遥测（平台相关，可空）
type QueueInfo struct {
	Position int `json:"position"`
	Running  int `json:"running"`
	Pending  int `json:"pending"`
}

// Progress 执行进度遥测（平台相关，可空）
type Progress struct {
	Step        int     `json:"step"`
	TotalSteps  int     `json:"totalSteps"`
	Percentage  float64 `json:"percentage"`
	CurrentNode string  `json:"currentNode,omitempty"`
}

// WorkflowInfo 工作流节点统计（平台相关，可空）
type WorkflowInfo struct {
	NodeCount     int `json:"nodeCount"`
	ExecutedNodes int `json:"executedNodes"`
}

// Timing 生命周期时间点；StartedAt 在首次观察到 running 时设置一次，
// CompletedAt 在首次观察到终态时设置一次
type Timing struct {
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ErrorInfo 失败详情
type ErrorInfo struct {
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// OutputKind 归一化结果的标签
type OutputKind string

const (
	OutputImages OutputKind = "image"
	OutputText   OutputKind = "text"
	OutputRaw    OutputKind = "raw"
)

// ImageRef 产物图片引用
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Output 归一化结果：image[] / text / 原样透传
type Output struct {
	Kind   OutputKind      `json:"kind"`
	Images []ImageRef      `json:"images,omitempty"`
	Text   string          `json:"text,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// RawResponse 平台原始响应审计项；只追加，不改写
type RawResponse struct {
	Type      string          `json:"type"` // submit | status | result | cancel
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// RetryInfo 本地轮询重试预算
type RetryInfo struct {
	Count       int        `json:"count"`
	Max         int        `json:"max"`
	LastRetryAt *time.Time `json:"lastRetryAt,omitempty"`
}

// TaskExecution 一次提交的完整生命周期记录
type TaskExecution struct {
	PromptID       string `json:"promptId"`
	PlatformTaskID string `json:"platformTaskId,omitempty"`
	ApplicationID  string `json:"applicationId"`
	// ApplicationName 提交时的应用名快照，列表展示用
	ApplicationName string                   `json:"applicationName,omitempty"`
	UserID          string                   `json:"userId"`
	PlatformType    application.PlatformType `json:"platformType"`
	// APIConfig 提交时的端点快照；之后改应用配置不影响本任务
	APIConfig application.APIConfig `json:"apiConfig"`
	Status    Status                `json:"status"`

	QueueInfo    *QueueInfo    `json:"queueInfo,omitempty"`
	Progress     *Progress     `json:"progress,omitempty"`
	WorkflowInfo *WorkflowInfo `json:"workflowInfo,omitempty"`
	Timing       Timing        `json:"timing"`

	InputData    map[string]interface{} `json:"inputData,omitempty"`
	OutputData   *Output                `json:"outputData,omitempty"`
	ErrorInfo    *ErrorInfo             `json:"errorInfo,omitempty"`
	RawResponses []RawResponse          `json:"rawResponses,omitempty"`

	CreditsConsumed int64     `json:"creditsConsumed"`
	CreditTxnID     string    `json:"creditTxnId,omitempty"` // 对应 consumption 流水，退款与对账经此关联
	RetryInfo       RetryInfo `json:"retryInfo"`
}

// ExecutionTime 派生字段：运行时长。读取时计算，不落库（避免派生状态漂移）。
// 未开始返回 0；运行中返回到 now 的时长。
func (t *TaskExecution) ExecutionTime(now time.Time) time.Duration {
	if t.Timing.StartedAt == nil {
		return 0
	}
	end := now
	if t.Timing.CompletedAt != nil {
		end = *t.Timing.CompletedAt
	}
	if end.Before(*t.Timing.StartedAt) {
		return 0
	}
	return end.Sub(*t.Timing.StartedAt)
}

// Terminal 记录是否已到终态
func (t *TaskExecution) Terminal() bool {
	return t.Status.Terminal()
}

// transition 推进状态并维护 Timing；非法边返回错误，终态后一律拒绝
func (t *TaskExecution) transition(to Status, at time.Time) error {
	if t.Status == to {
		return nil
	}
	if t.Status.Terminal() {
		return errors.ErrTaskTerminal
	}
	if !CanTransition(t.Status, to) {
		return errors.Wrapf(errors.ErrInvalidArg, "transition %s → %s", t.Status, to)
	}
	t.Status = to
	if to == StatusRunning && t.Timing.StartedAt == nil {
		at := at
		t.Timing.StartedAt = &at
	}
	if to.Terminal() && t.Timing.CompletedAt == nil {
		at := at
		t.Timing.CompletedAt = &at
	}
	return nil
}

// MarkRunning 首次观察到远端开始执行
func (t *TaskExecution) MarkRunning(at time.Time) error {
	return t.transition(StatusRunning, at)
}

// MarkCompleted 远端成功；归一化结果由调用方填入
func (t *TaskExecution) MarkCompleted(out *Output, at time.Time) error {
	if err := t.transition(StatusCompleted, at); err != nil {
		return err
	}
	if out != nil {
		t.OutputData = out
	}
	return nil
}

// MarkFailed 远端报错或本地轮询预算耗尽
func (t *TaskExecution) MarkFailed(errInfo *ErrorInfo, at time.Time) error {
	if err := t.transition(StatusFailed, at); err != nil {
		return err
	}
	if errInfo != nil {
		t.ErrorInfo = errInfo
	}
	return nil
}

// MarkCancelled 显式取消；远端取消失败也照常落本地状态
func (t *TaskExecution) MarkCancelled(at time.Time) error {
	return t.transition(StatusCancelled, at)
}

// AppendRaw 追加一条原始响应审计项
func (t *TaskExecution) AppendRaw(typ string, data []byte, at time.Time) {
	if len(data) == 0 {
		return
	}
	cp := make(json.RawMessage, len(data))
	copy(cp, data)
	t.RawResponses = append(t.RawResponses, RawResponse{Type: typ, Timestamp: at, Data: cp})
}
