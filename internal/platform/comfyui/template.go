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

package comfyui

import (
	"context"
	"encoding/json"
	"fmt"

	"aigc-platform/internal/application"
	pkgerr "aigc-platform/pkg/errors"
)

// OptionResolver 批量解析枚举选项 id 到选项记录。application.Store 满足该接口。
type OptionResolver interface {
	GetOptions(ctx context.Context, ids []string) (map[string]application.FieldOption, error)
}

// workflowNode 节点图里的单个节点，只关心 inputs，其余字段原样保留
type workflowNode map[string]interface{}

// BuildWorkflow 把基础模板和表单值合成一份可提交的节点图。
// 模板每次重新反序列化，同一应用的并发提交互不沾染；
// 只有字段映射指到的坐标被改写，其余节点与模板逐字节一致。
func BuildWorkflow(ctx context.Context, app *application.Application, inputs map[string]interface{}, resolver OptionResolver) (map[string]workflowNode, error) {
	if len(app.Template) == 0 {
		return nil, pkgerr.NewConfiguration("comfyui", fmt.Sprintf("application %s has no workflow template", app.ID))
	}
	// 没有表单定义就无从校验输入,宁可整体失败也不透传裸模板
	if len(app.FormSchema) == 0 {
		return nil, pkgerr.NewConfiguration("comfyui", fmt.Sprintf("application %s has no form schema", app.ID))
	}
	var graph map[string]workflowNode
	if err := json.Unmarshal(app.Template, &graph); err != nil {
		return nil, pkgerr.NewConfiguration("comfyui", fmt.Sprintf("application %s template is not a node graph: %v", app.ID, err))
	}

	values, err := resolveValues(ctx, app, inputs, resolver)
	if err != nil {
		return nil, err
	}

	for _, field := range app.FormSchema {
		if field.NodeID == "" || field.InputKey == "" {
			continue // 不映射到模板的展示型字段
		}
		value, ok := values[field.Name]
		if !ok {
			continue
		}
		node, ok := graph[field.NodeID]
		if !ok {
			// 模板和字段映射对不上是应用配置损坏,提交前整体失败
			return nil, pkgerr.NewConfiguration("comfyui",
				fmt.Sprintf("application %s field %s maps to missing node %s", app.ID, field.Name, field.NodeID))
		}
		nodeInputs, ok := node["inputs"].(map[string]interface{})
		if !ok {
			return nil, pkgerr.NewConfiguration("comfyui",
				fmt.Sprintf("application %s node %s has no inputs object", app.ID, field.NodeID))
		}
		nodeInputs[field.InputKey] = value
	}
	return graph, nil
}

// resolveValues 合并缺省值、校验必填、把枚举 id 批量换成显示值
func resolveValues(ctx context.Context, app *application.Application, inputs map[string]interface{}, resolver OptionResolver) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(app.FormSchema))
	var optionIDs []string

	for _, field := range app.FormSchema {
		value, ok := inputs[field.Name]
		if !ok || value == nil || value == "" {
			if field.Default == nil {
				if field.Required {
					return nil, pkgerr.NewValidation(field.Name, "required field missing")
				}
				continue
			}
			value = field.Default
		}
		values[field.Name] = value
		if field.Type == application.FieldSelect {
			id, ok := value.(string)
			if !ok {
				return nil, pkgerr.NewValidation(field.Name, "select value must be an option id string")
			}
			optionIDs = append(optionIDs, id)
		}
	}

	if len(optionIDs) == 0 {
		return values, nil
	}
	// 一次批量查询解析本次提交引用的全部选项
	options, err := resolver.GetOptions(ctx, optionIDs)
	if err != nil {
		return nil, pkgerr.Wrap(err, "resolve field options")
	}
	for _, field := range app.FormSchema {
		if field.Type != application.FieldSelect {
			continue
		}
		id, ok := values[field.Name].(string)
		if !ok {
			continue
		}
		opt, ok := options[id]
		if !ok {
			return nil, pkgerr.NewValidation(field.Name, "unknown option id "+id)
		}
		values[field.Name] = opt.Value
	}
	return values, nil
}
