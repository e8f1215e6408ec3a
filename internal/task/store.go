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

package task

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"aigc-platform/internal/application"
)

// Filter 列表查询条件
type Filter struct {
	Status       Status
	PlatformType application.PlatformType
	Page         int // 1 起
	Limit        int
}

// Store 任务执行记录存储
type Store interface {
	// Create 持久化新记录；promptID 已存在时返回错误
	Create(ctx context.Context, t *TaskExecution) error
	// Get 按 promptID 查记录；不存在返回 nil, nil
	Get(ctx context.Context, promptID string) (*TaskExecution, error)
	// GetByCreditTxn 按消费流水 id 查记录，对账扫描用；不存在返回 nil, nil
	GetByCreditTxn(ctx context.Context, txnID string) (*TaskExecution, error)
	// Update 整体覆盖写回（状态推进由 TaskExecution 方法保证合法）
	Update(ctx context.Context, t *TaskExecution) error
	// ListByUser 分页读取某用户的任务，按提交时间倒序；返回记录与总数
	ListByUser(ctx context.Context, userID string, f Filter) ([]*TaskExecution, int, error)
}

// StoreMem 内存实现：map + 深拷贝读写，供测试与单机部署
type StoreMem struct {
	mu   sync.RWMutex
	byID map[string]*TaskExecution
}

// NewStoreMem 创建内存任务存储
func NewStoreMem() *StoreMem {
	return &StoreMem{byID: make(map[string]*TaskExecution)}
}

// deepCopy 经 JSON 往返隔离内外引用（RawResponses、InputData 均含引用类型）
func deepCopy(t *TaskExecution) *TaskExecution {
	data, _ := json.Marshal(t)
	var cp TaskExecution
	_ = json.Unmarshal(data, &cp)
	return &cp
}

func (s *StoreMem) Create(ctx context.Context, t *TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.PromptID]; ok {
		return ErrDuplicatePrompt
	}
	s.byID[t.PromptID] = deepCopy(t)
	return nil
}

func (s *StoreMem) Get(ctx context.Context, promptID string) (*TaskExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[promptID]
	if !ok {
		return nil, nil
	}
	return deepCopy(t), nil
}

func (s *StoreMem) GetByCreditTxn(ctx context.Context, txnID string) (*TaskExecution, error) {
	if txnID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.byID {
		if t.CreditTxnID == txnID {
			return deepCopy(t), nil
		}
	}
	return nil, nil
}

func (s *StoreMem) Update(ctx context.Context, t *TaskExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.PromptID]; !ok {
		return ErrTaskNotFound
	}
	s.byID[t.PromptID] = deepCopy(t)
	return nil
}

func (s *StoreMem) ListByUser(ctx context.Context, userID string, f Filter) ([]*TaskExecution, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*TaskExecution
	for _, t := range s.byID {
		if t.UserID != userID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.PlatformType != "" && t.PlatformType != f.PlatformType {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timing.SubmittedAt.After(matched[j].Timing.SubmittedAt)
	})
	total := len(matched)
	page, limit := normalizePage(f.Page, f.Limit)
	start := (page - 1) * limit
	if start >= total {
		return nil, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	out := make([]*TaskExecution, 0, end-start)
	for _, t := range matched[start:end] {
		out = append(out, deepCopy(t))
	}
	return out, total, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
