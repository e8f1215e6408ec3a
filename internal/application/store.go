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

package application

import (
	"context"
	"sync"
)

// Store 应用描述读取仓储：查应用、批量查枚举选项
type Store interface {
	// Get 按 id 查应用；不存在返回 nil, nil
	Get(ctx context.Context, id string) (*Application, error)
	// GetOptions 按 id 批量查枚举选项，返回 id → 选项；缺失的 id 不在结果中
	GetOptions(ctx context.Context, ids []string) (map[string]FieldOption, error)
}

// StoreMem 内存实现：map 持有应用与选项，供测试与单机部署
type StoreMem struct {
	mu      sync.RWMutex
	apps    map[string]*Application
	options map[string]FieldOption
}

// NewStoreMem 创建内存应用仓储
func NewStoreMem() *StoreMem {
	return &StoreMem{
		apps:    make(map[string]*Application),
		options: make(map[string]FieldOption),
	}
}

// Put 写入应用（测试与引导数据用）
func (s *StoreMem) Put(app *Application) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *app
	s.apps[app.ID] = &cp
}

// PutOption 写入枚举选项（测试与引导数据用）
func (s *StoreMem) PutOption(opt FieldOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options[opt.ID] = opt
}

func (s *StoreMem) Get(ctx context.Context, id string) (*Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *app
	return &cp, nil
}

func (s *StoreMem) GetOptions(ctx context.Context, ids []string) (map[string]FieldOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]FieldOption, len(ids))
	for _, id := range ids {
		if opt, ok := s.options[id]; ok {
			out[id] = opt
		}
	}
	return out, nil
}
