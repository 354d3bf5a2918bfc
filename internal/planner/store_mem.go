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
	"sync"
)

// MemoryContextStore 内存会话存储；单机部署与测试用
type MemoryContextStore struct {
	mu       sync.Mutex
	maxTurns int
	entries  map[string]*contextEntry
}

// contextEntry 每个 correlation 一把锁，追加互不阻塞
type contextEntry struct {
	mu    sync.Mutex
	turns []Turn
}

// NewMemoryContextStore 创建内存会话存储；maxTurns<=0 默认 20
func NewMemoryContextStore(maxTurns int) *MemoryContextStore {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &MemoryContextStore{
		maxTurns: maxTurns,
		entries:  make(map[string]*contextEntry),
	}
}

func (s *MemoryContextStore) entry(correlationID string) *contextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[correlationID]
	if !ok {
		e = &contextEntry{}
		s.entries[correlationID] = e
	}
	return e
}

// Append 实现 ContextStore
func (s *MemoryContextStore) Append(ctx context.Context, correlationID string, turns ...Turn) error {
	e := s.entry(correlationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, turns...)
	if len(e.turns) > s.maxTurns {
		e.turns = e.turns[len(e.turns)-s.maxTurns:]
	}
	return nil
}

// History 实现 ContextStore
func (s *MemoryContextStore) History(ctx context.Context, correlationID string) ([]Turn, error) {
	e := s.entry(correlationID)
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

// Close 实现 ContextStore
func (s *MemoryContextStore) Close(ctx context.Context) error { return nil }
