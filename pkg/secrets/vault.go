// Copyright 2026 fanjia1024
// HashiCorp Vault secret store

package secrets

import (
	"context"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// VaultConfig Vault 配置
type VaultConfig struct {
	Addr      string `mapstructure:"addr"`       // 如 http://vault:8200
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"` // secret 路径前缀，默认 "secret"
}

type vaultStore struct {
	client    *vault.Client
	mountPath string
}

// NewVaultStore 创建 Vault secret store
func NewVaultStore(config VaultConfig) (Store, error) {
	cfg := vault.DefaultConfig()
	if config.Addr != "" {
		cfg.Address = config.Addr
	}
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if config.Token != "" {
		client.SetToken(config.Token)
	}
	if _, err := client.Sys().Health(); err != nil {
		return nil, fmt.Errorf("connect to vault: %w", err)
	}
	mount := config.MountPath
	if mount == "" {
		mount = "secret"
	}
	return &vaultStore{client: client, mountPath: mount}, nil
}

func (v *vaultStore) Get(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path(key))
	if err != nil {
		return "", fmt.Errorf("read secret from vault: %w", err)
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	if data, ok := secret.Data["value"].(string); ok {
		return data, nil
	}
	for _, val := range secret.Data {
		if str, ok := val.(string); ok {
			return str, nil
		}
	}
	return "", fmt.Errorf("secret value not found: %s", key)
}

func (v *vaultStore) Set(ctx context.Context, key string, value string) error {
	_, err := v.client.Logical().WriteWithContext(ctx, v.path(key), map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("write secret to vault: %w", err)
	}
	return nil
}

func (v *vaultStore) Delete(ctx context.Context, key string) error {
	if _, err := v.client.Logical().DeleteWithContext(ctx, v.path(key)); err != nil {
		return fmt.Errorf("delete secret from vault: %w", err)
	}
	return nil
}

func (v *vaultStore) List(ctx context.Context, prefix string) ([]string, error) {
	searchPath := v.mountPath
	if prefix != "" {
		searchPath = fmt.Sprintf("%s/metadata/%s", v.mountPath, prefix)
	}
	secret, err := v.client.Logical().ListWithContext(ctx, searchPath)
	if err != nil {
		return nil, fmt.Errorf("list secrets from vault: %w", err)
	}
	if secret == nil {
		return nil, nil
	}
	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}
	var result []string
	for _, k := range keys {
		str, ok := k.(string)
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(str, prefix) {
			str = prefix + "/" + str
		}
		result = append(result, str)
	}
	return result, nil
}

func (v *vaultStore) path(key string) string {
	return fmt.Sprintf("%s/%s", v.mountPath, key)
}
