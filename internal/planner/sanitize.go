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
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeParams 清洗模型提出的参数：控制字符剥离，字符串截断。
// 清洗只收紧不放宽，清洗后仍要过 schema 校验。
func sanitizeParams(params map[string]any, maxStringLen int) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = sanitizeValue(v, maxStringLen)
	}
	return out
}

func sanitizeValue(v any, maxStringLen int) any {
	switch t := v.(type) {
	case string:
		return sanitizeString(t, maxStringLen)
	case map[string]any:
		return sanitizeParams(t, maxStringLen)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sanitizeValue(item, maxStringLen)
		}
		return out
	default:
		return v
	}
}

// sanitizeString 去除控制字符（保留换行与制表），并截断到上限
func sanitizeString(s string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	clean := b.String()
	if maxLen > 0 && len(clean) > maxLen {
		// 截断落在 rune 边界上，避免留下非法 UTF-8
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(clean[cut]) {
			cut--
		}
		clean = clean[:cut]
	}
	return clean
}
