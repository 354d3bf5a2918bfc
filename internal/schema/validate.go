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
	"strings"

	"medgateway/pkg/errors"
)

// FieldError 单字段校验失败
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ValidateParams 校验入参形状；任何失配返回 KindCaller/validation_failed。
// 规则：必填字段缺失、未声明字段、动态类型不符、enum/范围/长度越界均拒绝。
func ValidateParams(s Schema, params map[string]any) error {
	fieldErrs := check(s, params, true)
	if len(fieldErrs) == 0 {
		return nil
	}
	return errors.Wrap(errors.KindCaller, "validation_failed",
		joinFieldErrors(fieldErrs), errors.ErrValidationFailed)
}

// ResultCheck 结果校验结论
type ResultCheck struct {
	// Fatal 缺失必填结果字段：调用以 contract_violation 终止
	Fatal []FieldError
	// Anomalies 非致命失配（多余字段、可选字段类型异常）：调用仍视为成功，单独记录
	Anomalies []FieldError
}

// OK 结果完全符合约
func (r ResultCheck) OK() bool { return len(r.Fatal) == 0 && len(r.Anomalies) == 0 }

// FatalError 将致命失配包装为 contract_violation；无致命失配返回 nil
func (r ResultCheck) FatalError() error {
	if len(r.Fatal) == 0 {
		return nil
	}
	return errors.Wrap(errors.KindAdapter, "contract_violation",
		joinFieldErrors(r.Fatal), errors.ErrContractViolation)
}

// AnomalyDetail 非致命失配的文字描述，写入审计记录
func (r ResultCheck) AnomalyDetail() string {
	if len(r.Anomalies) == 0 {
		return ""
	}
	return joinFieldErrors(r.Anomalies)
}

// ValidateResult 防御性校验适配器返回的结果形状。
// 与入参不同，结果失配区分致命（缺必填字段）与非致命（其余）。
func ValidateResult(s Schema, payload map[string]any) ResultCheck {
	var out ResultCheck
	for _, fe := range check(s, payload, false) {
		if strings.HasPrefix(fe.Reason, "required") {
			out.Fatal = append(out.Fatal, fe)
		} else {
			out.Anomalies = append(out.Anomalies, fe)
		}
	}
	return out
}

// check 遍历 schema 与数据，收集所有字段失配；strictUnknown 时未声明字段算失配
func check(s Schema, data map[string]any, strictUnknown bool) []FieldError {
	var errs []FieldError

	for name, spec := range s.Fields {
		value, present := data[name]
		if !present {
			if spec.Required {
				errs = append(errs, FieldError{Field: name, Reason: "required field missing"})
			}
			continue
		}
		if reason := checkValue(spec, value); reason != "" {
			errs = append(errs, FieldError{Field: name, Reason: reason})
		}
	}

	for name := range data {
		if _, declared := s.Fields[name]; !declared {
			reason := "field not declared in schema"
			if !strictUnknown {
				reason = "unexpected field in result"
			}
			errs = append(errs, FieldError{Field: name, Reason: reason})
		}
	}
	return errs
}

// checkValue 校验单值的动态类型与约束；合法返回空串
func checkValue(spec FieldSpec, value any) string {
	switch spec.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %T", value)
		}
		if spec.MinLength > 0 && len(str) < spec.MinLength {
			return fmt.Sprintf("shorter than min_length %d", spec.MinLength)
		}
		if spec.MaxLength > 0 && len(str) > spec.MaxLength {
			return fmt.Sprintf("longer than max_length %d", spec.MaxLength)
		}
		if len(spec.Enum) > 0 {
			for _, e := range spec.Enum {
				if str == e {
					return ""
				}
			}
			return fmt.Sprintf("value %q not in enum", str)
		}
	case TypeInteger:
		f, ok := asNumber(value)
		if !ok || f != float64(int64(f)) {
			return fmt.Sprintf("expected integer, got %T", value)
		}
		return checkRange(spec, f)
	case TypeNumber:
		f, ok := asNumber(value)
		if !ok {
			return fmt.Sprintf("expected number, got %T", value)
		}
		return checkRange(spec, f)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", value)
		}
	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			if _, okStr := value.([]string); okStr {
				if spec.Items == "" || spec.Items == TypeString {
					return ""
				}
				return fmt.Sprintf("expected array of %s, got array of string", spec.Items)
			}
			return fmt.Sprintf("expected array, got %T", value)
		}
		for i, item := range items {
			if reason := checkElement(spec.Items, item); reason != "" {
				return fmt.Sprintf("array element %d: %s", i, reason)
			}
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", value)
		}
	default:
		return fmt.Sprintf("unsupported schema type %q", spec.Type)
	}
	return ""
}

// checkElement 按 Items 声明的元素类型校验数组元素；空声明按 string 处理
func checkElement(elem FieldType, item any) string {
	switch elem {
	case "", TypeString:
		if _, ok := item.(string); !ok {
			return fmt.Sprintf("expected string, got %T", item)
		}
	case TypeObject:
		if _, ok := item.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %T", item)
		}
	case TypeInteger:
		f, ok := asNumber(item)
		if !ok || f != float64(int64(f)) {
			return fmt.Sprintf("expected integer, got %T", item)
		}
	case TypeNumber:
		if _, ok := asNumber(item); !ok {
			return fmt.Sprintf("expected number, got %T", item)
		}
	case TypeBoolean:
		if _, ok := item.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %T", item)
		}
	default:
		return fmt.Sprintf("unsupported element type %q", elem)
	}
	return ""
}

// asNumber JSON 解码出的数字可能是 float64 或 int
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func checkRange(spec FieldSpec, f float64) string {
	if spec.Minimum != nil && f < *spec.Minimum {
		return fmt.Sprintf("below minimum %v", *spec.Minimum)
	}
	if spec.Maximum != nil && f > *spec.Maximum {
		return fmt.Sprintf("above maximum %v", *spec.Maximum)
	}
	return ""
}

func joinFieldErrors(errs []FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
