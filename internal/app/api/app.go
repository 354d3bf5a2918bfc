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
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	apihttp "medgateway/internal/api/http"
	"medgateway/internal/app"
	"medgateway/internal/model/llm"
	"medgateway/internal/planner"
	"medgateway/internal/router"
	"medgateway/pkg/config"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配 Router、Planner、HTTP Handler 与 Hertz Server
type App struct {
	bootstrap    *app.Bootstrap
	invoker      *router.Router
	planner      *planner.Planner // 未配置推理模型时为 nil
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
	stopProber   context.CancelFunc
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config

	toolTimeouts := make(map[string]time.Duration, len(cfg.Invocation.ToolTimeouts))
	for tool, raw := range cfg.Invocation.ToolTimeouts {
		if d := config.Duration(raw, 0); d > 0 {
			toolTimeouts[tool] = d
		}
	}
	retryMax := cfg.Invocation.RetryMax
	if retryMax < 0 {
		retryMax = 2
	}
	invoker := router.New(bootstrap.Schemas, bootstrap.Registry, bootstrap.Guard,
		bootstrap.Sink, bootstrap.Redactor, bootstrap.Logger, router.Options{
			DefaultTimeout: config.Duration(cfg.Invocation.DefaultTimeout, 8*time.Second),
			ToolTimeouts:   toolTimeouts,
			RetryMax:       retryMax,
			RetryBackoff:   config.Duration(cfg.Invocation.RetryBackoff, 200*time.Millisecond),
		})

	a := &App{bootstrap: bootstrap, invoker: invoker}

	if cfg.Model.Model != "" {
		client, err := llm.NewClient(cfg.Model.Provider, cfg.Model.Model, cfg.Model.APIKey, cfg.Model.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("初始化推理客户端失败: %w", err)
		}
		store, err := newContextStore(cfg)
		if err != nil {
			return nil, err
		}
		a.planner = planner.New(client, bootstrap.Schemas, store, bootstrap.Logger, planner.Options{
			Timeout:         config.Duration(cfg.Planner.Timeout, 30*time.Second),
			MaxContextTurns: cfg.Planner.MaxContextTurns,
			MaxStringLength: cfg.Planner.MaxStringLength,
		})
	} else {
		bootstrap.Logger.Info("未配置推理模型，/api/converse 不可用")
	}

	return a, nil
}

func newContextStore(cfg *config.Config) (planner.ContextStore, error) {
	switch cfg.Conversation.Store {
	case "redis":
		if cfg.Conversation.Addr == "" {
			return nil, fmt.Errorf("conversation.store=redis 需要 conversation.addr")
		}
		return planner.NewRedisContextStore(cfg.Conversation.Addr, cfg.Conversation.DB,
			cfg.Planner.MaxContextTurns, config.Duration(cfg.Conversation.TTL, 30*time.Minute))
	case "memory", "":
		return planner.NewMemoryContextStore(cfg.Planner.MaxContextTurns), nil
	default:
		return nil, fmt.Errorf("不支持的会话存储: %s", cfg.Conversation.Store)
	}
}

// Run 启动 HTTP 服务；阻塞直到 Shutdown
func (a *App) Run(addr string) error {
	cfg := a.bootstrap.Config

	// Hertz 框架日志桥接到 slog，与网关日志对齐
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
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(os.Stdout),
		hertzslog.WithLevel(levelVar),
	))

	// 可选链路追踪
	if cfg.Monitoring.TracingEnable {
		endpoint := cfg.Monitoring.TracingEndpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if endpoint != "" {
			serviceName := cfg.Monitoring.ServiceName
			if serviceName == "" {
				serviceName = "medgateway"
			}
			p := provider.NewOpenTelemetryProvider(
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(endpoint),
				provider.WithInsecure(),
			)
			a.otelProvider = p
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = server.New(server.WithHostPorts(addr), tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.bootstrap.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = server.New(server.WithHostPorts(addr))
	}

	handler := apihttp.NewHandler(a.bootstrap.Schemas, a.bootstrap.Registry, a.invoker,
		a.planner, a.bootstrap.Sink, a.bootstrap.Guard, a.bootstrap.Logger)
	apihttp.RegisterRoutes(a.hertz, handler, a.bootstrap.Logger, cfg.API.RateLimitRPS, cfg.API.CORS)

	// 后台健康探测
	proberCtx, cancel := context.WithCancel(context.Background())
	a.stopProber = cancel
	a.bootstrap.Registry.StartProber(proberCtx,
		config.Duration(cfg.Adapters.HealthInterval, 30*time.Second))

	a.bootstrap.Logger.Info("网关启动", "addr", addr)
	a.hertz.Spin()
	return nil
}

// Shutdown 优雅关闭：HTTP → 探测 → 适配器 → 审计/会话存储 → 追踪
func (a *App) Shutdown(ctx context.Context) error {
	if a.stopProber != nil {
		a.stopProber()
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			a.bootstrap.Logger.Warn("HTTP 关闭失败", "error", err)
		}
	}
	a.bootstrap.Registry.Shutdown(ctx)
	if a.planner != nil {
		if err := a.planner.Close(ctx); err != nil {
			a.bootstrap.Logger.Warn("会话存储关闭失败", "error", err)
		}
	}
	if err := a.bootstrap.Sink.Close(ctx); err != nil {
		a.bootstrap.Logger.Warn("审计存储关闭失败", "error", err)
	}
	if a.otelProvider != nil {
		if err := a.otelProvider.Shutdown(ctx); err != nil {
			a.bootstrap.Logger.Warn("追踪关闭失败", "error", err)
		}
	}
	return nil
}
