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

package api

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"aigc-platform/internal/api/http"
	"aigc-platform/internal/api/http/middleware"
	"aigc-platform/internal/app"
	"aigc-platform/internal/credit"
	"aigc-platform/internal/gateway"
	"aigc-platform/internal/platform"
	"aigc-platform/internal/platform/comfyui"
	"aigc-platform/internal/platform/openai"
	"aigc-platform/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配平台适配器、网关、HTTP Router 与对账扫描
type App struct {
	bootstrap    *app.Bootstrap
	gateway      *gateway.Gateway
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
	reconciler   *credit.Reconciler
	reconcileCtx context.Context
	reconcileCancel context.CancelFunc
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	clientCfg := platform.DefaultClientConfig()
	clientCfg.Timeout = app.ParseDuration(cfg.Platform.Timeout, clientCfg.Timeout)
	clientCfg.RetryCount = utils.DefaultInt(cfg.Platform.RetryCount, clientCfg.RetryCount)
	clientCfg.RetryWait = app.ParseDuration(cfg.Platform.RetryWait, clientCfg.RetryWait)
	clientCfg.RetryMaxWait = app.ParseDuration(cfg.Platform.RetryMaxWait, clientCfg.RetryMaxWait)
	clientCfg.QPS = cfg.Platform.RateLimitQPS
	clientCfg.Burst = cfg.Platform.RateBurst

	registry := platform.NewRegistry(
		comfyui.NewService(clientCfg, bootstrap.AppStore, bootstrap.Secrets),
		openai.NewService(clientCfg, bootstrap.Secrets),
	)

	gw := gateway.New(
		bootstrap.AppStore,
		bootstrap.Tasks,
		bootstrap.Ledger,
		registry,
		bootstrap.Cache,
		bootstrap.Logger,
		gateway.Options{
			StatusCacheTTL:  app.ParseDuration(cfg.Cache.StatusTTL, 2*time.Second),
			PollInterval:    app.ParseDuration(cfg.Platform.PollInterval, 2*time.Second),
			PollMaxAttempts: utils.DefaultInt(cfg.Platform.PollMaxAttempts, 60),
		},
	)

	handler := http.NewHandler(gw, bootstrap.Logger)
	router := http.NewRouter(handler, middleware.NewMiddleware())

	a := &App{
		bootstrap: bootstrap,
		gateway:   gw,
		router:    router,
	}

	// 对账扫描:扣费成功但补偿退款丢失的流水,后台周期性补齐
	if cfg.Reconcile.Enable {
		a.reconciler = credit.NewReconciler(
			bootstrap.Ledger,
			bootstrap.Tasks,
			bootstrap.Logger,
			app.ParseDuration(cfg.Reconcile.MinAge, 5*time.Minute),
			app.ParseDuration(cfg.Reconcile.Interval, time.Minute),
		)
	}
	return a, nil
}

// Gateway 供测试与 cmd 注入使用
func (a *App) Gateway() *gateway.Gateway {
	return a.gateway
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.bootstrap.Config
	a.bootstrap.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 日志配置对齐
	output := os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}
	levelVar := &slog.LevelVar{}
	switch cfg.Log.Level {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	if cfg.Monitoring.Tracing.Enable {
		serviceName := cfg.Monitoring.Tracing.ServiceName
		if serviceName == "" {
			serviceName = "aigc-api"
		}
		exportEndpoint := cfg.Monitoring.Tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if cfg.Monitoring.Tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			p := provider.NewOpenTelemetryProvider(opts...)
			a.otelProvider = p
			tracerOpt, tcfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = a.router.Build(addr)
	}

	if a.reconciler != nil {
		a.reconcileCtx, a.reconcileCancel = context.WithCancel(context.Background())
		go a.reconciler.Run(a.reconcileCtx)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.reconcileCancel != nil {
		a.reconcileCancel()
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.bootstrap.Cache != nil {
		_ = a.bootstrap.Cache.Close()
	}
	return nil
}
