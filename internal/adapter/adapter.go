package adapter

import (
	"context"
	"time"
)

// Config 适配器初始化配置
type Config struct {
	Endpoint      string        // REST 后端地址
	CredentialKey string        // secrets store 中的凭据 key
	DSN           string        // 数据库后端连接串
	Timeout       time.Duration // 后端请求超时
}

// Adapter 后端适配器契约：核心触达后端的唯一途径。
// Initialize 失败不会中止网关启动，只是该适配器的工具被标记不可用。
type Adapter interface {
	// Name 适配器名（唯一）
	Name() string
	// Initialize 建立后端连通；后端不可达返回包装了 ErrAdapterInit 的错误
	Initialize(ctx context.Context, cfg Config) error
	// HealthCheck 存活探测；定期与按需调用
	HealthCheck(ctx context.Context) error
	// Invoke 执行一个工具；入参已由 Router 校验，返回值须符合工具的结果 schema
	Invoke(ctx context.Context, toolName string, params map[string]any) (map[string]any, error)
	// Shutdown 释放后端资源；尽力而为，不得无限阻塞
	Shutdown(ctx context.Context) error
}
