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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisContextStore Redis 会话存储；多副本部署时共享上下文
type RedisContextStore struct {
	client   *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewRedisContextStore 连接 Redis 并验证连通
func NewRedisContextStore(addr string, db int, maxTurns int, ttl time.Duration) (*RedisContextStore, error) {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("conversation store unreachable at %s: %w", addr, err)
	}
	return &RedisContextStore{client: client, maxTurns: maxTurns, ttl: ttl}, nil
}

func contextKey(correlationID string) string {
	return "medgw:conversation:" + correlationID
}

// Append 实现 ContextStore；RPUSH+LTRIM 原子管道保证同 correlation 的顺序与上界
func (s *RedisContextStore) Append(ctx context.Context, correlationID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	key := contextKey(correlationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation turns: %w", err)
	}
	return nil
}

// History 实现 ContextStore
func (s *RedisContextStore) History(ctx context.Context, correlationID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, contextKey(correlationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read conversation turns: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue // 跳过坏记录，不让历史污染新请求
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Close 实现 ContextStore
func (s *RedisContextStore) Close(ctx context.Context) error {
	return s.client.Close()
}
