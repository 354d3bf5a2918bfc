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

package planner

import (
	"context"
)

// Turn 会话中的一轮：角色 + 文本
type Turn struct {
	Role string `json:"role"` // user / assistant
	Text string `json:"text"`
}

// ContextStore 按 correlation id 维护有界会话上下文。
// 只在一次调用完整结束后追加；同一 correlation 内追加保持顺序。
type ContextStore interface {
	// Append 追加若干轮；实现负责裁剪到上限
	Append(ctx context.Context, correlationID string, turns ...Turn) error
	// History 返回按时间先后排列的最近轮次
	History(ctx context.Context, correlationID string) ([]Turn, error)
	// Close 释放存储资源
	Close(ctx context.Context) error
}
