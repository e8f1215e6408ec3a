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

// Package application 提供 AI 应用描述记录及其读取仓储。
// 应用的增删改由外部 CMS 负责，这里只消费其稳定的记录形状。
package application

import (
	"encoding/json"
	"time"
)

// PlatformType 平台类型判别字段
type PlatformType string

const (
	// PlatformComfyUI 节点图引擎（工作流模板 + 字段映射）
	PlatformComfyUI PlatformType = "comfyui"
	// PlatformOpenAI 请求/响应式生成 API
	PlatformOpenAI PlatformType = "openai"
)

// Valid 判断平台类型是否已知
func (p PlatformType) Valid() bool {
	switch p {
	case PlatformComfyUI, PlatformOpenAI:
		return true
	}
	return false
}

// APIConfig 平台端点与凭据。提交时整体快照到任务记录，
// 此后不再回读应用配置，改配置不影响在途任务。
type APIConfig struct {
	APIUrl   string `json:"apiUrl"`
	APIKey   string `json:"apiKey,omitempty"`   // 可为 "ref:<key>"，经 secrets 解析
	Model    string `json:"model,omitempty"`    // openai 类平台的模型名
	ClientID string `json:"clientId,omitempty"` // comfyui 客户端标识，可空
}

// apiConfigJSON 兼容两种历史拼写：apiUrl 与 api_url（读取时规整，下游只看 APIUrl）
type apiConfigJSON struct {
	APIUrl       string `json:"apiUrl"`
	APIUrlLegacy string `json:"api_url"`
	APIKey       string `json:"apiKey"`
	APIKeyLegacy string `json:"api_key"`
	Model        string `json:"model"`
	ClientID     string `json:"clientId"`
}

// UnmarshalJSON 读取时规整历史拼写；两种拼写同时存在时以 apiUrl 为准
func (c *APIConfig) UnmarshalJSON(data []byte) error {
	var raw apiConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.APIUrl = raw.APIUrl
	if c.APIUrl == "" {
		c.APIUrl = raw.APIUrlLegacy
	}
	c.APIKey = raw.APIKey
	if c.APIKey == "" {
		c.APIKey = raw.APIKeyLegacy
	}
	c.Model = raw.Model
	c.ClientID = raw.ClientID
	return nil
}

// FieldType 表单字段类型
type FieldType string

const (
	FieldText   FieldType = "text"
	FieldNumber FieldType = "number"
	FieldSelect FieldType = "select" // 枚举选项，值为选项 id，提交前须解析为显示值
	FieldImage  FieldType = "image"
)

// FormField 表单字段到工作流节点输入的映射
type FormField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label,omitempty"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	// NodeID + InputKey 指向模板中目标节点的输入；空表示该字段不写入模板
	NodeID   string `json:"nodeId,omitempty"`
	InputKey string `json:"inputKey,omitempty"`
	// Default 未提供时的缺省值
	Default interface{} `json:"default,omitempty"`
}

// FieldOption 枚举选项：id 为内部引用，Value 为远端平台期望的显示值
type FieldOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Application AI 应用描述记录（外部 CMS 的稳定形状）
type Application struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PlatformType PlatformType    `json:"platformType"`
	Active       bool            `json:"active"`
	Cost         int64           `json:"cost"` // 每次使用消耗的 credits，0 为免费
	APIConfig    APIConfig       `json:"apiConfig"`
	FormSchema   []FormField     `json:"formSchema,omitempty"`
	Template     json.RawMessage `json:"template,omitempty"` // comfyui 基础工作流模板（节点图 JSON）
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Field 按名称取表单字段；无则返回 nil
func (a *Application) Field(name string) *FormField {
	for i := range a.FormSchema {
		if a.FormSchema[i].Name == name {
			return &a.FormSchema[i]
		}
	}
	return nil
}
