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

package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemorySink 内存审计存储；单机部署与测试用
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink 创建内存审计存储
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 实现 Sink；锁内串行化保证链的全序
func (s *MemorySink) Append(ctx context.Context, r *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if n := len(s.records); n > 0 {
		r.PrevHash = s.records[n-1].Hash
	} else {
		r.PrevHash = ""
	}
	r.Hash = ComputeRecordHash(*r)
	s.records = append(s.records, *r)
	return nil
}

// Query 实现 Sink
func (s *MemorySink) Query(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]Record, 0)
	for _, r := range s.records {
		if !matches(r, f) {
			continue
		}
		matched = append(matched, r)
	}
	return paginate(matched, f), nil
}

// Close 实现 Sink
func (s *MemorySink) Close(ctx context.Context) error { return nil }

// All 返回完整记录序列（链校验用）
func (s *MemorySink) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func matches(r Record, f Filter) bool {
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.Tool != "" && r.Tool != f.Tool {
		return false
	}
	if f.CorrelationID != "" && r.CorrelationID != f.CorrelationID {
		return false
	}
	if !f.From.IsZero() && r.StartedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.StartedAt.After(f.To) {
		return false
	}
	if f.Regulated != nil && r.Regulated != *f.Regulated {
		return false
	}
	return true
}

func paginate(records []Record, f Filter) []Record {
	offset := f.Offset
	if offset > len(records) {
		offset = len(records)
	}
	records = records[offset:]
	if f.Limit > 0 && len(records) > f.Limit {
		records = records[:f.Limit]
	}
	return records
}
