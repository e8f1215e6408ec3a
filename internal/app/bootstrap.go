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

package app

import (
	"context"
	"fmt"
	"time"

	"aigc-platform/internal/application"
	"aigc-platform/internal/credit"
	"aigc-platform/internal/storage/cache"
	"aigc-platform/internal/task"
	"aigc-platform/pkg/config"
	"aigc-platform/pkg/log"
	"aigc-platform/pkg/secrets"
)

// Bootstrap 统一初始化：装配日志与三个存储后端，供 api 进程复用,
// 避免在 cmd 内写装配逻辑
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	AppStore application.Store
	Tasks    task.Store
	Ledger   credit.Ledger
	Cache    cache.Store
	Secrets  secrets.Store
}

// NewBootstrap 根据配置创建 Bootstrap
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var appStore application.Store
	if cfg.AppStore.Type == "postgres" && cfg.AppStore.DSN != "" {
		appStore, err = application.NewStorePg(ctx, cfg.AppStore.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化应用存储failed: %w", err)
		}
		logger.Info("应用存储使用 PostgreSQL 后端")
	} else {
		appStore = application.NewStoreMem()
	}

	var tasks task.Store
	if cfg.TaskStore.Type == "postgres" && cfg.TaskStore.DSN != "" {
		tasks, err = task.NewStorePg(ctx, cfg.TaskStore.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化任务存储failed: %w", err)
		}
		logger.Info("任务存储使用 PostgreSQL 后端")
	} else {
		tasks = task.NewStoreMem()
	}

	var ledger credit.Ledger
	if cfg.CreditStore.Type == "postgres" && cfg.CreditStore.DSN != "" {
		ledger, err = credit.NewLedgerPg(ctx, cfg.CreditStore.DSN)
		if err != nil {
			return nil, fmt.Errorf("初始化积分账本failed: %w", err)
		}
		logger.Info("积分账本使用 PostgreSQL 后端")
	} else {
		ledger = credit.NewLedgerMem()
	}

	statusCache, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化状态缓存failed: %w", err)
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Backend: cfg.Secrets.Backend,
		Vault: secrets.VaultConfig{
			Addr:      cfg.Secrets.Vault.Addr,
			Token:     cfg.Secrets.Vault.Token,
			MountPath: cfg.Secrets.Vault.MountPath,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化凭据存储failed: %w", err)
	}

	return &Bootstrap{
		Config:   cfg,
		Logger:   logger,
		AppStore: appStore,
		Tasks:    tasks,
		Ledger:   ledger,
		Cache:    statusCache,
		Secrets:  secretStore,
	}, nil
}

// ParseDuration 解析时长字符串，无效或空时返回 defaultVal
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
