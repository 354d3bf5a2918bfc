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

package schema

import (
	"fmt"
	"sync"

	"medgateway/pkg/errors"
)

// Store 工具描述存储：注册、查询、目录列表。
// 注册仅发生在启动阶段；之后并发只读。
type Store struct {
	mu    sync.RWMutex
	tools map[string]ToolDescriptor
	order []string // 保持注册顺序，目录输出稳定
}

// NewStore 创建 Schema Store
func NewStore() *Store {
	return &Store{tools: make(map[string]ToolDescriptor)}
}

// Register 注册工具描述；同名重复注册返回 ErrDuplicateTool
func (s *Store) Register(d ToolDescriptor) error {
	if d.Name == "" {
		return errors.Wrap(errors.KindCaller, "invalid_descriptor", "tool name must not be empty", errors.ErrValidationFailed)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tools[d.Name]; exists {
		return errors.Wrap(errors.KindCaller, "duplicate_tool",
			fmt.Sprintf("tool %q already registered", d.Name), errors.ErrDuplicateTool)
	}
	s.tools[d.Name] = d
	s.order = append(s.order, d.Name)
	return nil
}

// Get 按名称获取工具描述；未注册返回 ErrUnknownTool
func (s *Store) Get(name string) (ToolDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.tools[name]
	if !ok {
		return ToolDescriptor{}, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("tool %q is not registered", name), errors.ErrUnknownTool)
	}
	return d, nil
}

// List 按注册顺序返回所有工具描述
func (s *Store) List() []ToolDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]ToolDescriptor, 0, len(s.order))
	for _, name := range s.order {
		list = append(list, s.tools[name])
	}
	return list
}
