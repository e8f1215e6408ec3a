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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构体
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	TaskStore   StoreConfig       `mapstructure:"task_store"`
	CreditStore StoreConfig       `mapstructure:"credit_store"`
	AppStore    StoreConfig       `mapstructure:"app_store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Platform    PlatformConfig    `mapstructure:"platform"`
	Reconcile   ReconcileConfig   `mapstructure:"reconcile"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	Log         LogConfig         `mapstructure:"log"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// APIConfig API 服务配置
type APIConfig struct {
	Port    int        `mapstructure:"port"`
	Host    string     `mapstructure:"host"`
	Timeout string     `mapstructure:"timeout"`
	CORS    CORSConfig `mapstructure:"cors"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	Enable       bool     `mapstructure:"enable"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// StoreConfig 存储配置（task/credit/application 共用结构）
type StoreConfig struct {
	Type     string `mapstructure:"type"` // memory | postgres
	DSN      string `mapstructure:"dsn"`  // Postgres 连接串，type=postgres 时必填
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 平台状态缓存配置
type CacheConfig struct {
	Type      string `mapstructure:"type"` // memory | redis | none
	Addr      string `mapstructure:"addr"`
	DB        int    `mapstructure:"db"`
	Password  string `mapstructure:"password"`
	StatusTTL string `mapstructure:"status_ttl"` // 非终态状态缓存时长，如 "2s"；空则默认 2s
}

// PlatformConfig 外部生成平台调用配置
type PlatformConfig struct {
	Timeout       string  `mapstructure:"timeout"`         // 单次平台调用硬超时，如 "30s"
	RetryCount    int     `mapstructure:"retry_count"`     // resty 传输层重试次数
	RetryWait     string  `mapstructure:"retry_wait"`      // 重试等待，如 "1s"
	RetryMaxWait  string  `mapstructure:"retry_max_wait"`  // 重试等待上限，如 "5s"
	RateLimitQPS  float64 `mapstructure:"rate_limit_qps"`  // 每平台出站 QPS，<=0 不限流
	RateBurst     int     `mapstructure:"rate_burst"`      // 限流突发额度
	PollInterval  string  `mapstructure:"poll_interval"`   // PollUntilComplete 默认间隔
	PollMaxAttempts int   `mapstructure:"poll_max_attempts"` // PollUntilComplete 默认最大次数
}

// ReconcileConfig 对账扫描配置（扣费后缺失退款的补偿）
type ReconcileConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Interval string `mapstructure:"interval"` // 扫描周期，如 "1m"
	MinAge   string `mapstructure:"min_age"`  // 消费流水至少存在此时长才参与对账，如 "5m"
}

// SecretsConfig 平台凭据后端配置
type SecretsConfig struct {
	Backend string `mapstructure:"backend"` // env | memory | vault
	Vault   VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 后端配置
type VaultConfig struct {
	Addr      string `mapstructure:"addr"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("AIGC")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	replaceEnvVars(&config)
	return &config, nil
}

// replaceEnvVars 替换配置中 ${VAR} 形式的敏感值（DSN、Vault token 等）
func replaceEnvVars(config *Config) {
	expand := func(s string) string {
		if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
			if val := os.Getenv(strings.TrimSuffix(strings.TrimPrefix(s, "${"), "}")); val != "" {
				return val
			}
		}
		return s
	}
	config.TaskStore.DSN = expand(config.TaskStore.DSN)
	config.CreditStore.DSN = expand(config.CreditStore.DSN)
	config.AppStore.DSN = expand(config.AppStore.DSN)
	config.Cache.Password = expand(config.Cache.Password)
	config.Secrets.Vault.Token = expand(config.Secrets.Vault.Token)
}

// LoadAPIConfig 加载 API 配置（仅 configs/api.yaml）
func LoadAPIConfig() (*Config, error) {
	return LoadConfig("configs/api.yaml")
}
