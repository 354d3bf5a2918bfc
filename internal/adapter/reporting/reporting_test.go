package reporting

import (
	"testing"

	"medgateway/internal/schema"
)

func resultSchema(t *testing.T, name string) schema.Schema {
	t.Helper()
	for _, tool := range Tools() {
		if tool.Name == name {
			return tool.Results
		}
	}
	t.Fatalf("tool %q not declared", name)
	return schema.Schema{}
}

// list_reports 返回对象数组；健康返回不得被结果校验记为异常
func TestListReportsResultMatchesDeclaration(t *testing.T) {
	payload := map[string]any{
		"reports": []any{
			map[string]any{
				"report_id":  "rep-1",
				"study_id":   "study-1",
				"status":     "final",
				"created_at": "2026-03-05T09:00:00Z",
			},
		},
		"count": 1,
	}
	check := schema.ValidateResult(resultSchema(t, "list_reports"), payload)
	if !check.OK() {
		t.Fatalf("healthy list result flagged: fatal=%v anomalies=%v", check.Fatal, check.Anomalies)
	}
}

func TestGetReportResultMatchesDeclaration(t *testing.T) {
	payload := map[string]any{
		"report_id":  "rep-1",
		"study_id":   "study-1",
		"status":     "final",
		"impression": "无急性异常",
		"signed_at":  "2026-03-05T10:30:00Z",
	}
	check := schema.ValidateResult(resultSchema(t, "get_report"), payload)
	if !check.OK() {
		t.Fatalf("healthy report result flagged: fatal=%v anomalies=%v", check.Fatal, check.Anomalies)
	}
}
