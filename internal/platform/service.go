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

// Package platform 定义对异构生成平台的统一能力契约：
// 提交、查状态、取结果、取消，外加只用这四个原语搭出来的轮询辅助。
package platform

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"aigc-platform/internal/application"
	"aigc-platform/internal/task"
)

// SubmitRequest 一次提交：应用描述 + 客户端表单值
type SubmitRequest struct {
	App    *application.Application
	Inputs map[string]interface{}
}

// SubmitResult 提交结果。请求/响应式平台没有远端生命周期，
// 提交即完成，Output/State 直接带出；节点图平台二者为空。
type SubmitResult struct {
	PromptID string
	// PlatformTaskID 远端自己的任务标识,与 PromptID 不同时才设置
	PlatformTaskID string
	Raw            json.RawMessage
	Workflow       *task.WorkflowInfo
	Output         *task.Output
	State          task.Status // 为空表示 pending
}

// StatusSnapshot 一次状态查询的归一化结果
type StatusSnapshot struct {
	State    task.Status
	Queue    *task.QueueInfo
	Progress *task.Progress
	Workflow *task.WorkflowInfo
	Error    *task.ErrorInfo
	Raw      json.RawMessage
}

// Service 平台适配器契约。实现必须把平台私有状态词表归一到五态集合，
// 无法归类的值映射为 StatusUnknown 而不是报错。
type Service interface {
	// PlatformType 本适配器对应的平台类型
	PlatformType() application.PlatformType
	// Submit 提交任务；网络失败返回 PlatformUnreachableError，
	// 远端非成功响应返回 PlatformRejectedError（保留远端原始错误文本）
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	// GetStatus 查询并归一化远端状态
	GetStatus(ctx context.Context, promptID string, api application.APIConfig) (*StatusSnapshot, error)
	// GetResult 取归一化结果；终态前调用返回 ErrNotYetComplete。
	// 第二个返回值为远端原始响应，供审计日志追加。
	GetResult(ctx context.Context, promptID string, api application.APIConfig) (*task.Output, json.RawMessage, error)
	// Cancel 尽力取消；到不了平台也不阻止调用方把本地记录置为 cancelled
	Cancel(ctx context.Context, promptID string, api application.APIConfig) error
}

// ClientConfig 出站调用配置：硬超时、传输层重试与每平台限流
type ClientConfig struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
	QPS          float64 // <=0 不限流
	Burst        int
}

// DefaultClientConfig 缺省出站配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:      30 * time.Second,
		RetryCount:   3,
		RetryWait:    time.Second,
		RetryMaxWait: 5 * time.Second,
	}
}

// NewRestyClient 按配置构建 resty 客户端
func NewRestyClient(cfg ClientConfig) *resty.Client {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
		client.SetRetryWaitTime(cfg.RetryWait)
		client.SetRetryMaxWaitTime(cfg.RetryMaxWait)
	}
	return client
}

// NewLimiter 按配置构建每平台出站限流器；不限流时返回 nil
func NewLimiter(cfg ClientConfig) *rate.Limiter {
	if cfg.QPS <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.QPS), burst)
}

// WaitLimiter 限流等待；lim 为 nil 时直接通过
func WaitLimiter(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}
