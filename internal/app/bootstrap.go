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

// Package app 装配网关核心：配置 → 日志/凭据/鉴权/审计 → 目录与适配器注册。
package app

import (
	"context"
	"fmt"
	"time"

	"medgateway/internal/adapter"
	"medgateway/internal/adapter/billing"
	"medgateway/internal/adapter/pacs"
	"medgateway/internal/adapter/reporting"
	"medgateway/internal/adapter/scheduling"
	"medgateway/internal/audit"
	"medgateway/internal/schema"
	"medgateway/pkg/auth"
	"medgateway/pkg/config"
	"medgateway/pkg/log"
	"medgateway/pkg/secrets"
)

// Bootstrap 装配完成的核心依赖
type Bootstrap struct {
	Config   *config.Config
	Logger   *log.Logger
	Secrets  secrets.Store
	Guard    *auth.Guard
	Schemas  *schema.Store
	Registry *adapter.Registry
	Sink     audit.Sink
	Redactor *audit.Redactor
}

// NewBootstrap 按配置装配核心。
// 单个适配器初始化失败不中止启动：其工具仍然注册，调用被拒绝为 adapter_unavailable。
func NewBootstrap(cfg *config.Config) (*Bootstrap, error) {
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	credStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Config:   cfg.Secrets.Config,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化凭据存储失败: %w", err)
	}

	guard := auth.NewGuard(auth.RoleTable(cfg.Auth.Roles))

	sink, err := newAuditSink(cfg)
	if err != nil {
		return nil, err
	}
	redactor := audit.NewRedactor(cfg.Audit.SensitiveKeys, cfg.Audit.MaxParamLength)

	schemas := schema.NewStore()
	registry := adapter.NewRegistry(logger,
		cfg.Invocation.BreakerThreshold,
		config.Duration(cfg.Invocation.BreakerCooldown, 30*time.Second))

	b := &Bootstrap{
		Config:   cfg,
		Logger:   logger,
		Secrets:  credStore,
		Guard:    guard,
		Schemas:  schemas,
		Registry: registry,
		Sink:     sink,
		Redactor: redactor,
	}
	if err := b.registerAdapters(); err != nil {
		return nil, err
	}
	return b, nil
}

func newAuditSink(cfg *config.Config) (audit.Sink, error) {
	switch cfg.Audit.Store {
	case "postgres":
		if cfg.Audit.DSN == "" {
			return nil, fmt.Errorf("audit.store=postgres 需要 audit.dsn")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return audit.NewPgSink(ctx, cfg.Audit.DSN)
	case "memory", "":
		return audit.NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("不支持的审计存储: %s", cfg.Audit.Store)
	}
}

// registerAdapters 注册已配置的后端适配器与其工具目录
func (b *Bootstrap) registerAdapters() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := b.Config.Adapters
	if cfg.PACS.Endpoint != "" {
		b.register(ctx, pacs.New(b.Secrets), pacs.Tools(), adapter.Config{
			Endpoint:      cfg.PACS.Endpoint,
			CredentialKey: cfg.PACS.CredentialKey,
			Timeout:       config.Duration(cfg.PACS.Timeout, 10*time.Second),
		})
	}
	if cfg.Scheduling.Endpoint != "" {
		b.register(ctx, scheduling.New(b.Secrets), scheduling.Tools(), adapter.Config{
			Endpoint:      cfg.Scheduling.Endpoint,
			CredentialKey: cfg.Scheduling.CredentialKey,
			Timeout:       config.Duration(cfg.Scheduling.Timeout, 10*time.Second),
		})
	}
	if cfg.Reporting.DSN != "" {
		b.register(ctx, reporting.New(), reporting.Tools(), adapter.Config{
			DSN: cfg.Reporting.DSN,
		})
	}
	if cfg.Billing.Endpoint != "" {
		b.register(ctx, billing.New(b.Secrets), billing.Tools(), adapter.Config{
			Endpoint:      cfg.Billing.Endpoint,
			CredentialKey: cfg.Billing.CredentialKey,
			Timeout:       config.Duration(cfg.Billing.Timeout, 10*time.Second),
		})
	}
	return nil
}

// register 注册单个适配器：先登记工具目录，再初始化后端连通
func (b *Bootstrap) register(ctx context.Context, a adapter.Adapter, tools []schema.ToolDescriptor, cfg adapter.Config) {
	toolTimeouts := b.Config.Invocation.ToolTimeouts
	names := make([]string, 0, len(tools))
	for _, desc := range tools {
		if t, ok := toolTimeouts[desc.Name]; ok {
			desc.TimeoutOverride = config.Duration(t, 0)
		}
		if err := b.Schemas.Register(desc); err != nil {
			b.Logger.Error("工具注册失败", "adapter", a.Name(), "tool", desc.Name, "error", err)
			continue
		}
		names = append(names, desc.Name)
	}

	available := true
	if err := a.Initialize(ctx, cfg); err != nil {
		b.Logger.Error("适配器初始化失败，工具将拒绝调用", "adapter", a.Name(), "error", err)
		available = false
	}
	if err := b.Registry.RegisterAdapter(a, names, available); err != nil {
		b.Logger.Error("适配器注册失败", "adapter", a.Name(), "error", err)
	}
}
