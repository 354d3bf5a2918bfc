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
	"sync/atomic"
	"time"

	"medgateway/pkg/metrics"
)

// Breaker 每适配器一个的熔断器：连续失败达到阈值后打开，
// 冷却窗口内对该适配器的调用快速失败，窗口结束后放行探测。
// 状态仅通过原子操作更新：并发失败只会让熔断在一个冷却周期内触发一次。
type Breaker struct {
	adapterName string
	threshold   int64
	cooldown    time.Duration

	failures  atomic.Int64
	openUntil atomic.Int64 // UnixNano；0 表示关闭
}

// NewBreaker 创建熔断器；threshold<=0 默认 5，cooldown<=0 默认 30s
func NewBreaker(adapterName string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{adapterName: adapterName, threshold: int64(threshold), cooldown: cooldown}
}

// Allow 当前是否放行调用；冷却期满时自动转为半开（放行并等待下一次结果）
func (b *Breaker) Allow(now time.Time) bool {
	until := b.openUntil.Load()
	if until == 0 {
		return true
	}
	if now.UnixNano() >= until {
		// 冷却结束：CAS 清零，多个并发读者只有一个会成功，其余看到已清零同样放行
		if b.openUntil.CompareAndSwap(until, 0) {
			b.failures.Store(0)
			metrics.BreakerState.WithLabelValues(b.adapterName).Set(0)
		}
		return true
	}
	return false
}

// RecordFailure 记录一次硬失败（错误或超时）；达到阈值时打开熔断。
// CAS 保证同一冷却周期内只打开一次。
func (b *Breaker) RecordFailure(now time.Time) {
	n := b.failures.Add(1)
	if n < b.threshold {
		return
	}
	if b.openUntil.CompareAndSwap(0, now.Add(b.cooldown).UnixNano()) {
		metrics.BreakerState.WithLabelValues(b.adapterName).Set(1)
	}
}

// RecordSuccess 成功调用重置失败计数
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
}

// Open 当前是否处于打开状态（只读，供健康上报）
func (b *Breaker) Open(now time.Time) bool {
	until := b.openUntil.Load()
	return until != 0 && now.UnixNano() < until
}
