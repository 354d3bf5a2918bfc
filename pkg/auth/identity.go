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

// Identity 调用方身份：由外部身份层校验后传入的三元组
type Identity struct {
	SubjectID   string   `json:"subject_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"` // 直接授予的权限，与角色权限取并集
}

// Valid 身份是否可用于授权判定（缺失主体或角色一律视为不可用）
func (id Identity) Valid() bool {
	return id.SubjectID != "" && id.Role != ""
}
