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

package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medgateway/pkg/errors"
	"medgateway/pkg/log"
)

// entry 注册表内部条目：适配器 + 熔断器 + 可用性
type entry struct {
	adapter   Adapter
	breaker   *Breaker
	available bool // Initialize 失败的适配器标记为不可用
}

// Health 单个适配器的健康快照
type Health struct {
	Adapter   string `json:"adapter"`
	Available bool   `json:"available"` // 初始化成功
	Alive     bool   `json:"alive"`     // 最近一次探测存活
	Open      bool   `json:"breaker_open"`
}

// Registry 工具名 → 适配器实例的注册表；注册只发生在启动阶段。
// 健康快照由后台探测维护，读取从不阻塞调用路径。
type Registry struct {
	mu       sync.RWMutex
	byTool   map[string]*entry
	byName   map[string]*entry
	order    []string
	logger   *log.Logger
	breakerThreshold int
	breakerCooldown  time.Duration

	healthMu sync.RWMutex
	alive    map[string]bool
}

// NewRegistry 创建适配器注册表
func NewRegistry(logger *log.Logger, breakerThreshold int, breakerCooldown time.Duration) *Registry {
	if logger == nil {
		logger = log.Nop()
	}
	return &Registry{
		byTool:           make(map[string]*entry),
		byName:           make(map[string]*entry),
		alive:            make(map[string]bool),
		logger:           logger,
		breakerThreshold: breakerThreshold,
		breakerCooldown:  breakerCooldown,
	}
}

// RegisterAdapter 将一组工具名绑定到一个适配器实例。
// 任一工具已被其他适配器持有时返回 ErrToolOwnershipConflict，整组注册回退。
// available=false 表示 Initialize 失败，工具仍注册但调用会被拒绝为 adapter_unavailable。
func (r *Registry) RegisterAdapter(a Adapter, toolNames []string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range toolNames {
		if owner, taken := r.byTool[name]; taken && owner.adapter != a {
			return errors.Wrap(errors.KindCaller, "tool_ownership_conflict",
				fmt.Sprintf("tool %q already owned by adapter %q", name, owner.adapter.Name()),
				errors.ErrToolOwnershipConflict)
		}
	}

	e, seen := r.byName[a.Name()]
	if !seen {
		e = &entry{
			adapter:   a,
			breaker:   NewBreaker(a.Name(), r.breakerThreshold, r.breakerCooldown),
			available: available,
		}
		r.byName[a.Name()] = e
		r.order = append(r.order, a.Name())
	}
	for _, name := range toolNames {
		r.byTool[name] = e
	}
	return nil
}

// Resolve 返回工具的归属适配器与其熔断器；未注册返回 ErrUnknownTool，
// 初始化失败的适配器返回 ErrAdapterUnavailable。
func (r *Registry) Resolve(toolName string) (Adapter, *Breaker, error) {
	r.mu.RLock()
	e, ok := r.byTool[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("no adapter owns tool %q", toolName), errors.ErrUnknownTool)
	}
	if !e.available {
		return nil, nil, errors.Wrap(errors.KindAdapter, "adapter_unavailable",
			fmt.Sprintf("adapter %q failed to initialize", e.adapter.Name()), errors.ErrAdapterUnavailable)
	}
	return e.adapter, e.breaker, nil
}

// HealthSnapshot 返回各适配器健康状态；读取缓存的探测结果，不触达后端
func (r *Registry) HealthSnapshot() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.healthMu.RLock()
	defer r.healthMu.RUnlock()

	now := time.Now()
	out := make([]Health, 0, len(r.order))
	for _, name := range r.order {
		e := r.byName[name]
		out = append(out, Health{
			Adapter:   name,
			Available: e.available,
			Alive:     r.alive[name],
			Open:      e.breaker.Open(now),
		})
	}
	return out
}

// Probe 对所有可用适配器做一轮健康探测并更新缓存
func (r *Registry) Probe(ctx context.Context) {
	r.mu.RLock()
	entries := make(map[string]*entry, len(r.byName))
	for name, e := range r.byName {
		entries[name] = e
	}
	r.mu.RUnlock()

	for name, e := range entries {
		alive := false
		if e.available {
			alive = e.adapter.HealthCheck(ctx) == nil
		}
		r.healthMu.Lock()
		r.alive[name] = alive
		r.healthMu.Unlock()
	}
}

// StartProber 启动后台探测循环；ctx 取消时退出
func (r *Registry) StartProber(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		r.Probe(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Probe(ctx)
			}
		}
	}()
}

// Shutdown 依次关闭所有适配器；每个 shutdown 限时，失败只记录不阻断
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		e := r.byName[name]
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := e.adapter.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("适配器关闭失败", "adapter", name, "error", err)
		}
		cancel()
	}
}
