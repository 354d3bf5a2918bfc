package schema

import (
	stderrors "errors"
	"strings"
	"testing"

	gwerrors "medgateway/pkg/errors"
)

func paramsSchema() Schema {
	minSlots := 1.0
	maxSlots := 10.0
	return Schema{Fields: map[string]FieldSpec{
		"patient_id": {Type: TypeString, Required: true, MinLength: 1},
		"urgency":    {Type: TypeString, Enum: []string{"routine", "urgent", "emergency"}},
		"slots":      {Type: TypeInteger, Minimum: &minSlots, Maximum: &maxSlots},
		"confirmed":  {Type: TypeBoolean},
		"icd10":      {Type: TypeArray},
	}}
}

func TestValidateParamsOK(t *testing.T) {
	err := ValidateParams(paramsSchema(), map[string]any{
		"patient_id": "pat-12345",
		"urgency":    "urgent",
		"slots":      float64(3), // JSON 解码后的数字形态
		"confirmed":  true,
		"icd10":      []any{"M54.5"},
	})
	if err != nil {
		t.Fatalf("ValidateParams: %v", err)
	}
}

func TestValidateParamsFailures(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"missing required", map[string]any{}, "required field missing"},
		{"wrong type", map[string]any{"patient_id": 42}, "expected string"},
		{"enum violation", map[string]any{"patient_id": "p", "urgency": "whenever"}, "not in enum"},
		{"below minimum", map[string]any{"patient_id": "p", "slots": float64(0)}, "below minimum"},
		{"non-integer", map[string]any{"patient_id": "p", "slots": 1.5}, "expected integer"},
		{"undeclared field", map[string]any{"patient_id": "p", "extra": "x"}, "not declared"},
		{"bad array element", map[string]any{"patient_id": "p", "icd10": []any{7}}, "expected string"},
	}
	for _, tc := range cases {
		err := ValidateParams(paramsSchema(), tc.params)
		if !stderrors.Is(err, gwerrors.ErrValidationFailed) {
			t.Errorf("%s: err = %v, want ErrValidationFailed", tc.name, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

// 数组字段可以声明元素类型；列表类工具的结果是对象数组，健康返回不得被记为异常
func TestValidateArrayElementTypes(t *testing.T) {
	listSchema := Schema{Fields: map[string]FieldSpec{
		"reports": {Type: TypeArray, Items: TypeObject, Required: true},
		"count":   {Type: TypeInteger},
	}}

	check := ValidateResult(listSchema, map[string]any{
		"reports": []any{
			map[string]any{"report_id": "r1", "status": "final"},
			map[string]any{"report_id": "r2", "status": "preliminary"},
		},
		"count": 2,
	})
	if !check.OK() {
		t.Fatalf("healthy object-array result flagged: %+v", check)
	}

	// 元素类型失配仍要报
	check = ValidateResult(listSchema, map[string]any{
		"reports": []any{"r1"},
	})
	if len(check.Anomalies) == 0 {
		t.Fatal("string element in object array must be flagged")
	}

	// 未声明 Items 保持 string 语义
	strSchema := Schema{Fields: map[string]FieldSpec{
		"icd10": {Type: TypeArray},
	}}
	if err := ValidateParams(strSchema, map[string]any{"icd10": []any{map[string]any{}}}); err == nil {
		t.Fatal("object element in default string array must be rejected")
	}
	if err := ValidateParams(strSchema, map[string]any{"icd10": []any{"M54.5"}}); err != nil {
		t.Fatalf("string element rejected: %v", err)
	}
}

func TestValidateResultFatalVsAnomaly(t *testing.T) {
	s := Schema{Fields: map[string]FieldSpec{
		"studies": {Type: TypeArray, Required: true},
		"count":   {Type: TypeInteger},
	}}

	// 缺必填字段：致命
	check := ValidateResult(s, map[string]any{"count": float64(1)})
	if check.FatalError() == nil {
		t.Fatal("missing required result field must be fatal")
	}
	if !stderrors.Is(check.FatalError(), gwerrors.ErrContractViolation) {
		t.Fatalf("fatal error = %v, want ErrContractViolation", check.FatalError())
	}

	// 多余字段 + 可选字段类型异常：非致命
	check = ValidateResult(s, map[string]any{
		"studies": []any{"s1"},
		"count":   "three",
		"debug":   "internal",
	})
	if check.FatalError() != nil {
		t.Fatalf("anomalies must not be fatal: %v", check.FatalError())
	}
	if len(check.Anomalies) != 2 {
		t.Fatalf("anomalies = %v, want 2", check.Anomalies)
	}

	// 完全符合
	check = ValidateResult(s, map[string]any{"studies": []any{"s1"}})
	if !check.OK() {
		t.Fatalf("conforming result flagged: %+v", check)
	}
}
