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
	"fmt"
	"unicode/utf8"
)

// 默认敏感字段；配置可追加，不可移除
var defaultSensitiveKeys = []string{
	"patient_name",
	"id_number",
	"date_of_birth",
	"clinical_indication",
	"impression",
	"notes",
	"member_number",
}

const redactedPlaceholder = "***REDACTED***"

// Redactor 审计脱敏器：敏感字段替换为占位符，超长字符串截断。
// 只处理顶层与嵌套 map 的字段名，不解析自由文本。
type Redactor struct {
	sensitive map[string]bool
	maxLen    int
}

// NewRedactor 创建脱敏器；extraKeys 追加到默认敏感字段之上
func NewRedactor(extraKeys []string, maxParamLength int) *Redactor {
	if maxParamLength <= 0 {
		maxParamLength = 2048
	}
	sensitive := make(map[string]bool, len(defaultSensitiveKeys)+len(extraKeys))
	for _, k := range defaultSensitiveKeys {
		sensitive[k] = true
	}
	for _, k := range extraKeys {
		sensitive[k] = true
	}
	return &Redactor{sensitive: sensitive, maxLen: maxParamLength}
}

// Redact 返回脱敏后的副本；原 map 不被修改
func (r *Redactor) Redact(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if r.sensitive[k] {
			out[k] = redactedPlaceholder
			continue
		}
		out[k] = r.redactValue(v)
	}
	return out
}

func (r *Redactor) redactValue(v any) any {
	switch t := v.(type) {
	case string:
		if len(t) > r.maxLen {
			return truncateAtRune(t, r.maxLen) + "...(truncated)"
		}
		return t
	case map[string]any:
		return r.Redact(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.redactValue(item)
		}
		return out
	default:
		return v
	}
}

// RedactString 对单个自由文本做长度截断（规划输入等非结构化内容）
func (r *Redactor) RedactString(s string) string {
	if len(s) > r.maxLen {
		kept := truncateAtRune(s, r.maxLen)
		return fmt.Sprintf("%s...(truncated %d bytes)", kept, len(s)-len(kept))
	}
	return s
}

// truncateAtRune 在 rune 边界截断，不把多字节字符切成非法 UTF-8。
// 仅在 len(s) > max 时调用。
func truncateAtRune(s string, max int) string {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
