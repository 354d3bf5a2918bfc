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
	"sync"
	"testing"
)

func TestAuthorizeExactAndWildcard(t *testing.T) {
	g := NewGuard(RoleTable{
		"radiologist": {"pacs:*", "reporting:read"},
		"admin":       {"*"},
	})

	rad := Identity{SubjectID: "u1", Role: "radiologist"}
	if !g.Authorize(rad, "pacs:read") {
		t.Error("pacs:* should satisfy pacs:read")
	}
	if !g.Authorize(rad, "reporting:read") {
		t.Error("exact match should allow")
	}
	if g.Authorize(rad, "billing:write") {
		t.Error("ungranted permission must deny")
	}
	if !g.Authorize(Identity{SubjectID: "root", Role: "admin"}, "anything:at_all") {
		t.Error("universal wildcard should satisfy anything")
	}
}

func TestAuthorizeFailClosed(t *testing.T) {
	g := NewGuard(RoleTable{"clerk": {"scheduling:read"}})

	cases := []struct {
		name     string
		identity Identity
		required string
	}{
		{"unknown role", Identity{SubjectID: "u1", Role: "ghost"}, "scheduling:read"},
		{"empty role", Identity{SubjectID: "u1"}, "scheduling:read"},
		{"empty subject", Identity{Role: "clerk"}, "scheduling:read"},
		{"empty permission", Identity{SubjectID: "u1", Role: "clerk"}, ""},
	}
	for _, tc := range cases {
		if g.Authorize(tc.identity, tc.required) {
			t.Errorf("%s: must deny", tc.name)
		}
	}

	empty := NewGuard(nil)
	if empty.Authorize(Identity{SubjectID: "u1", Role: "clerk"}, "scheduling:read") {
		t.Error("empty table must deny everything")
	}
}

func TestAuthorizeDirectPermissions(t *testing.T) {
	g := NewGuard(RoleTable{})
	id := Identity{SubjectID: "svc-1", Role: "service", Permissions: []string{"billing:read"}}
	if !g.Authorize(id, "billing:read") {
		t.Error("directly held permission should allow")
	}
	if g.Authorize(id, "billing:write") {
		t.Error("direct permissions are not wildcards")
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	g := NewGuard(RoleTable{"clerk": {"scheduling:read"}})
	id := Identity{SubjectID: "u1", Role: "clerk"}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				g.Reload(RoleTable{"clerk": {"scheduling:read", "scheduling:write"}})
				g.Reload(RoleTable{"clerk": {"scheduling:read"}})
			}
		}
	}()
	for i := 0; i < 1000; i++ {
		// 两个快照都授予 scheduling:read，并发换表期间不允许出现拒绝
		if !g.Authorize(id, "scheduling:read") {
			t.Fatal("reader observed an inconsistent table")
		}
	}
	close(stop)
	wg.Wait()
}

func TestWildcardSuffixDoesNotCrossSegments(t *testing.T) {
	g := NewGuard(RoleTable{"tech": {"pacs:*"}})
	id := Identity{SubjectID: "u1", Role: "tech"}
	if g.Authorize(id, "pacsadmin:wipe") {
		t.Error("pacs:* must not satisfy pacsadmin:*")
	}
}
