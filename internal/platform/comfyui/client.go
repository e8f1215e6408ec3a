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

// Package comfyui 节点图引擎适配器：工作流模板合成、提交、
// 队列/历史两级状态查询与产物提取。
package comfyui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"aigc-platform/internal/application"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/metrics"
	"aigc-platform/pkg/secrets"
)

const platformName = string(application.PlatformComfyUI)

// Service 节点图平台适配器
type Service struct {
	client   *resty.Client
	limiter  *rate.Limiter
	resolver OptionResolver
	creds    secrets.Store
}

// NewService 构建适配器；resolver 用于批量解析枚举选项，creds 解析 ref: 凭据
func NewService(cfg platform.ClientConfig, resolver OptionResolver, creds secrets.Store) *Service {
	return &Service{
		client:   platform.NewRestyClient(cfg),
		limiter:  platform.NewLimiter(cfg),
		resolver: resolver,
		creds:    creds,
	}
}

func (s *Service) PlatformType() application.PlatformType {
	return application.PlatformComfyUI
}

// request 统一出站调用：限流、凭据、计时
func (s *Service) request(ctx context.Context, op string, api application.APIConfig) (*resty.Request, error) {
	if err := platform.WaitLimiter(ctx, s.limiter); err != nil {
		return nil, platform.Unreachable(platformName, op, err)
	}
	req := s.client.R().SetContext(ctx)
	if api.APIKey != "" {
		key, err := secrets.Resolve(ctx, s.creds, api.APIKey)
		if err != nil {
			return nil, pkgerr.NewConfiguration("comfyui", fmt.Sprintf("resolve api key: %v", err))
		}
		req.SetHeader("Authorization", "Bearer "+key)
	}
	return req, nil
}

func baseURL(api application.APIConfig) string {
	return strings.TrimRight(api.APIUrl, "/")
}

// Submit 合成工作流并提交到 /prompt
func (s *Service) Submit(ctx context.Context, req platform.SubmitRequest) (*platform.SubmitResult, error) {
	graph, err := BuildWorkflow(ctx, req.App, req.Inputs, s.resolver)
	if err != nil {
		return nil, err
	}

	api := req.App.APIConfig
	body := map[string]interface{}{"prompt": graph}
	if api.ClientID != "" {
		body["client_id"] = api.ClientID
	}

	r, err := s.request(ctx, "submit", api)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := r.SetBody(body).Post(baseURL(api) + "/prompt")
	metrics.PlatformCallDuration.WithLabelValues(platformName, "submit").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, platform.Unreachable(platformName, "submit", err)
	}
	if resp.IsError() {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}

	var out struct {
		PromptID   string                     `json:"prompt_id"`
		Number     int                        `json:"number"`
		NodeErrors map[string]json.RawMessage `json:"node_errors"`
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}
	if out.PromptID == "" {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}
	// node_errors 非空说明图校验未通过,远端不会执行
	if len(out.NodeErrors) > 0 {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}

	return &platform.SubmitResult{
		PromptID: out.PromptID,
		Raw:      json.RawMessage(resp.Body()),
		Workflow: &task.WorkflowInfo{NodeCount: len(graph)},
	}, nil
}

// GetStatus 先查 /history（终态在那里），没有记录再查 /queue 定位排队或执行
func (s *Service) GetStatus(ctx context.Context, promptID string, api application.APIConfig) (*platform.StatusSnapshot, error) {
	entry, raw, err := s.history(ctx, promptID, api)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return snapshotFromHistory(*entry, raw), nil
	}

	r, err := s.request(ctx, "status", api)
	if err != nil {
		return nil, err
	}
	resp, err := r.Get(baseURL(api) + "/queue")
	if err != nil {
		return nil, platform.Unreachable(platformName, "status", err)
	}
	if resp.IsError() {
		return nil, platform.Rejected(platformName, "status", resp.StatusCode(), resp.Body())
	}
	var q queueState
	if err := json.Unmarshal(resp.Body(), &q); err != nil {
		return nil, platform.Rejected(platformName, "status", resp.StatusCode(), resp.Body())
	}
	return snapshotFromQueue(promptID, q, json.RawMessage(resp.Body())), nil
}

// history 查 /history/{id}；远端尚无记录返回 (nil, nil, nil)
func (s *Service) history(ctx context.Context, promptID string, api application.APIConfig) (*historyEntry, json.RawMessage, error) {
	r, err := s.request(ctx, "history", api)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()
	resp, err := r.Get(baseURL(api) + "/history/" + url.PathEscape(promptID))
	metrics.PlatformCallDuration.WithLabelValues(platformName, "history").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, nil, platform.Unreachable(platformName, "history", err)
	}
	if resp.IsError() {
		return nil, nil, platform.Rejected(platformName, "history", resp.StatusCode(), resp.Body())
	}

	// 响应按 prompt_id 做键,没执行到的任务是空对象
	var entries map[string]historyEntry
	if err := json.Unmarshal(resp.Body(), &entries); err != nil {
		return nil, nil, platform.Rejected(platformName, "history", resp.StatusCode(), resp.Body())
	}
	entry, ok := entries[promptID]
	if !ok {
		return nil, nil, nil
	}
	return &entry, json.RawMessage(resp.Body()), nil
}

// GetResult 从历史记录提取产物图片并拼出可取回的 view URL
func (s *Service) GetResult(ctx context.Context, promptID string, api application.APIConfig) (*task.Output, json.RawMessage, error) {
	entry, raw, err := s.history(ctx, promptID, api)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil || !entry.Status.Completed {
		return nil, nil, pkgerr.ErrNotYetComplete
	}

	var images []task.ImageRef
	for _, nodeOut := range entry.Outputs {
		var out struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
				Type      string `json:"type"`
			} `json:"images"`
		}
		if err := json.Unmarshal(nodeOut, &out); err != nil {
			continue
		}
		for _, img := range out.Images {
			q := url.Values{}
			q.Set("filename", img.Filename)
			if img.Subfolder != "" {
				q.Set("subfolder", img.Subfolder)
			}
			if img.Type != "" {
				q.Set("type", img.Type)
			}
			images = append(images, task.ImageRef{
				Filename:  img.Filename,
				Subfolder: img.Subfolder,
				URL:       baseURL(api) + "/view?" + q.Encode(),
			})
		}
	}

	if len(images) == 0 {
		// 工作流没有产图节点时原样透传,不硬编码结果形状
		return &task.Output{Kind: task.OutputRaw, Raw: raw}, raw, nil
	}
	return &task.Output{Kind: task.OutputImages, Images: images}, raw, nil
}

// Cancel 尽力取消：中断执行中的,同时从 pending 队列删除
func (s *Service) Cancel(ctx context.Context, promptID string, api application.APIConfig) error {
	r, err := s.request(ctx, "cancel", api)
	if err != nil {
		return err
	}
	if _, err := r.Post(baseURL(api) + "/interrupt"); err != nil {
		return platform.Unreachable(platformName, "cancel", err)
	}

	r, err = s.request(ctx, "cancel", api)
	if err != nil {
		return err
	}
	body := map[string]interface{}{"delete": []string{promptID}}
	if _, err := r.SetBody(body).Post(baseURL(api) + "/queue"); err != nil {
		return platform.Unreachable(platformName, "cancel", err)
	}
	return nil
}
