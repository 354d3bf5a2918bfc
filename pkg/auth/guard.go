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

package auth

import (
	"strings"
	"sync/atomic"
)

// RoleTable 角色→权限模式表；只读快照，更新时整表替换
type RoleTable map[string][]string

// Guard 授权守卫：fail-closed，任何缺失或歧义均判定拒绝。
// 同一表快照下，相同 (identity, permission) 的判定结果恒定。
type Guard struct {
	table atomic.Pointer[RoleTable]
}

// NewGuard 创建 Guard；table 可为 nil（此时一切请求被拒绝）
func NewGuard(table RoleTable) *Guard {
	g := &Guard{}
	g.Reload(table)
	return g
}

// Reload 整表替换角色权限表；读者要么看到旧表要么看到新表，不会看到半更新状态
func (g *Guard) Reload(table RoleTable) {
	if table == nil {
		table = RoleTable{}
	}
	snapshot := make(RoleTable, len(table))
	for role, perms := range table {
		cp := make([]string, len(perms))
		copy(cp, perms)
		snapshot[role] = cp
	}
	g.table.Store(&snapshot)
}

// Authorize 判定 identity 是否持有 required 权限。
// 匹配规则：精确匹配；"pacs:*" 满足 "pacs:read"；"*" 满足一切。
// 角色授予与身份直接持有的权限取并集。
func (g *Guard) Authorize(identity Identity, required string) bool {
	if required == "" || !identity.Valid() {
		return false
	}
	table := *g.table.Load()
	if perms, ok := table[identity.Role]; ok {
		for _, p := range perms {
			if matches(p, required) {
				return true
			}
		}
	}
	for _, p := range identity.Permissions {
		if matches(p, required) {
			return true
		}
	}
	return false
}

// matches 权限模式匹配；pattern 为授予项，required 为请求项
func matches(pattern, required string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == required {
		return true
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(required, prefix)
	}
	return false
}
