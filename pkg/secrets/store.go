// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
)

// Store 平台凭据存储接口；apiConfig 中以 ref:<key> 形式引用的 API Key 经此解析
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Backend string      `mapstructure:"backend"` // vault | env | memory
	Vault   VaultConfig `mapstructure:"vault"`
}

// NewStore 创建 Secret Store；backend 为空时默认 env
func NewStore(config Config) (Store, error) {
	switch config.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return NewEnvStore(), nil
	}
}

// Resolve 解析可能为引用形式的凭据值："ref:<key>" 经 store 查询，其余原样返回。
// 平台 apiConfig 快照只存引用，不落明文。
func Resolve(ctx context.Context, store Store, value string) (string, error) {
	const refPrefix = "ref:"
	if store == nil || len(value) <= len(refPrefix) || value[:len(refPrefix)] != refPrefix {
		return value, nil
	}
	return store.Get(ctx, value[len(refPrefix):])
}
