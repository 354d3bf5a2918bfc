// Copyright 2026 fanjia1024
// 适配器后端凭据存储抽象

package secrets

import (
	"context"
)

// Store 凭据存储接口；适配器初始化时按 credential_key 取后端凭据
type Store interface {
	// Get 获取凭据值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置凭据值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除凭据
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀下的凭据 key
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config 凭据存储配置
type Config struct {
	Provider string            `mapstructure:"provider"` // vault | env | memory
	Config   map[string]string `mapstructure:"config"`   // Provider 相关配置
}

// NewStore 创建凭据存储
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(VaultConfig{
			Address:    config.Config["address"],
			Token:      config.Config["token"],
			PathPrefix: config.Config["path_prefix"],
		})
	case "env", "":
		return NewEnvStore(), nil
	default:
		return NewEnvStore(), nil
	}
}
