// Copyright 2026 fanjia1024
// 环境变量凭据存储

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量凭据存储；key 中的小写与冒号会被规整为环境变量形式
func NewEnvStore() Store {
	return &envStore{}
}

func envKey(key string) string {
	k := strings.ToUpper(key)
	k = strings.NewReplacer(":", "_", "-", "_", ".", "_").Replace(k)
	return k
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	value := os.Getenv(envKey(key))
	if value == "" {
		return "", fmt.Errorf("credential not set: %s", envKey(key))
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
	p := envKey(prefix)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) > 0 && strings.HasPrefix(parts[0], p) {
			keys = append(keys, parts[0])
		}
	}
	return keys, nil
}
