// Copyright 2026 fanjia1024
// Environment variable based secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store；key 中的 '/' 与 '-' 规整为 '_'
func NewEnvStore() Store {
	return &envStore{}
}

func envKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(key))
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(envKey(key))
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", envKey(key))
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(envKey(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(envKey(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, env := range os.Environ() {
		name, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(name, envKey(prefix)) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
