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

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryStore 内存缓存存储实现
type MemoryStore struct {
	items map[string]*cacheItem
	mu    sync.RWMutex
}

// cacheItem 缓存项
type cacheItem struct {
	value     []byte
	expiresAt time.Time
}

func (it *cacheItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && it.expiresAt.Before(now)
}

// NewMemoryStore 创建新的内存缓存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*cacheItem),
	}
}

// Set 设置缓存
func (s *MemoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	item := &cacheItem{value: data}
	if expiration > 0 {
		item.expiresAt = time.Now().Add(expiration)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

// Get 获取缓存；未命中或已过期返回 ErrCacheMiss
func (s *MemoryStore) Get(ctx context.Context, key string, dest interface{}) error {
	s.mu.RLock()
	item, exists := s.items[key]
	s.mu.RUnlock()
	if !exists || item.expired(time.Now()) {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(item.value, dest); err != nil {
		return fmt.Errorf("unmarshal cache value: %w", err)
	}
	return nil
}

// Delete 删除缓存；key 不存在不视为错误
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	return nil
}

// Exists 检查缓存是否存在
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	item, exists := s.items[key]
	s.mu.RUnlock()
	if !exists || item.expired(time.Now()) {
		return false, nil
	}
	return true, nil
}

// Clear 清除所有缓存
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.items = make(map[string]*cacheItem)
	s.mu.Unlock()
	return nil
}

// Close 关闭缓存连接
func (s *MemoryStore) Close() error {
	return nil
}
