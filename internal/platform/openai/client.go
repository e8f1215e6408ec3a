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

// Package openai 请求/响应式生成平台适配器。
// 这类 API 没有远端任务生命周期：提交即同步拿到结果,
// 适配器在 SubmitResult 里直接带出 Output 和终态。
package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"aigc-platform/internal/application"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/task"
	pkgerr "aigc-platform/pkg/errors"
	"aigc-platform/pkg/metrics"
	"aigc-platform/pkg/secrets"
)

const platformName = string(application.PlatformOpenAI)

// Service 请求/响应式平台适配器
type Service struct {
	client  *resty.Client
	limiter *rate.Limiter
	creds   secrets.Store
}

// NewService 构建适配器
func NewService(cfg platform.ClientConfig, creds secrets.Store) *Service {
	return &Service{
		client:  platform.NewRestyClient(cfg),
		limiter: platform.NewLimiter(cfg),
		creds:   creds,
	}
}

func (s *Service) PlatformType() application.PlatformType {
	return application.PlatformOpenAI
}

// chatRequest 从表单值构建请求体。prompt 必填进 messages，
// system/temperature/max_tokens/top_p 按字段名识别为调用参数。
func chatRequest(app *application.Application, inputs map[string]interface{}) (map[string]interface{}, error) {
	prompt, _ := inputs["prompt"].(string)
	if prompt == "" {
		if f := app.Field("prompt"); f != nil {
			if def, ok := f.Default.(string); ok {
				prompt = def
			}
		}
	}
	if prompt == "" {
		return nil, pkgerr.NewValidation("prompt", "required field missing")
	}

	messages := []map[string]string{}
	if system, ok := inputs["system"].(string); ok && system != "" {
		messages = append(messages, map[string]string{"role": "system", "content": system})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt})

	request := map[string]interface{}{
		"model":    app.APIConfig.Model,
		"messages": messages,
	}
	for _, param := range []string{"temperature", "max_tokens", "top_p"} {
		if v, ok := inputs[param]; ok {
			request[param] = v
		}
	}
	return request, nil
}

// Submit 同步调用 /chat/completions；成功即完成,失败即提交失败
func (s *Service) Submit(ctx context.Context, req platform.SubmitRequest) (*platform.SubmitResult, error) {
	api := req.App.APIConfig
	if api.Model == "" {
		return nil, pkgerr.NewConfiguration("openai", "application "+req.App.ID+" has no model configured")
	}
	body, err := chatRequest(req.App, req.Inputs)
	if err != nil {
		return nil, err
	}

	if err := platform.WaitLimiter(ctx, s.limiter); err != nil {
		return nil, platform.Unreachable(platformName, "submit", err)
	}
	apiKey, err := secrets.Resolve(ctx, s.creds, api.APIKey)
	if err != nil {
		return nil, pkgerr.NewConfiguration("openai", "resolve api key: "+err.Error())
	}

	start := time.Now()
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey).
		SetBody(body).
		Post(baseURL(api) + "/chat/completions")
	metrics.PlatformCallDuration.WithLabelValues(platformName, "submit").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, platform.Unreachable(platformName, "submit", err)
	}
	if resp.IsError() {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}

	var result struct {
		ID      string `json:"id"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}
	if len(result.Choices) == 0 {
		return nil, platform.Rejected(platformName, "submit", resp.StatusCode(), resp.Body())
	}

	// 本地生成 promptId 作为统一任务标识,远端 id 另存
	return &platform.SubmitResult{
		PromptID:       "task-" + uuid.New().String(),
		PlatformTaskID: result.ID,
		Raw:            json.RawMessage(resp.Body()),
		Output:         &task.Output{Kind: task.OutputText, Text: result.Choices[0].Message.Content},
		State:          task.StatusCompleted,
	}, nil
}

func baseURL(api application.APIConfig) string {
	return strings.TrimRight(api.APIUrl, "/")
}

// GetStatus 没有远端生命周期可查；网关对终态任务不会走到这里,
// 走到了就如实归一为 unknown
func (s *Service) GetStatus(ctx context.Context, promptID string, api application.APIConfig) (*platform.StatusSnapshot, error) {
	return &platform.StatusSnapshot{State: task.StatusUnknown}, nil
}

// GetResult 结果只在提交时产生,远端没有可回取的端点；
// 未完成语义上等价于"结果还不存在"
func (s *Service) GetResult(ctx context.Context, promptID string, api application.APIConfig) (*task.Output, json.RawMessage, error) {
	return nil, nil, pkgerr.ErrNotYetComplete
}

// Cancel 同步调用没有可取消的在途任务
func (s *Service) Cancel(ctx context.Context, promptID string, api application.APIConfig) error {
	return nil
}
