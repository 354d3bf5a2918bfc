package http

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"

	"medgateway/internal/adapter"
	"medgateway/internal/audit"
	"medgateway/internal/router"
	"medgateway/internal/schema"
	"medgateway/pkg/auth"
	"medgateway/pkg/log"
)

// echoAdapter 返回固定影像结果的适配器桩
type echoAdapter struct{}

func (echoAdapter) Name() string                                             { return "pacs" }
func (echoAdapter) Initialize(ctx context.Context, cfg adapter.Config) error { return nil }
func (echoAdapter) HealthCheck(ctx context.Context) error                    { return nil }
func (echoAdapter) Shutdown(ctx context.Context) error                       { return nil }
func (echoAdapter) Invoke(ctx context.Context, tool string, params map[string]any) (map[string]any, error) {
	return map[string]any{"studies": []any{"s1"}, "count": float64(1)}, nil
}

func buildTestServer(t *testing.T) (*server.Hertz, *audit.MemorySink) {
	t.Helper()

	schemas := schema.NewStore()
	err := schemas.Register(schema.ToolDescriptor{
		Name:        "lookup_patient_imaging",
		Description: "List imaging studies for a patient.",
		Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
			"patient_id": {Type: schema.TypeString, Required: true, MinLength: 1},
		}},
		Results: schema.Schema{Fields: map[string]schema.FieldSpec{
			"studies": {Type: schema.TypeArray, Required: true},
			"count":   {Type: schema.TypeInteger},
		}},
		RequiredPermission: "pacs:read",
		Idempotent:         true,
		Regulated:          true,
	})
	if err != nil {
		t.Fatal(err)
	}

	registry := adapter.NewRegistry(nil, 5, time.Minute)
	if err := registry.RegisterAdapter(echoAdapter{}, []string{"lookup_patient_imaging"}, true); err != nil {
		t.Fatal(err)
	}
	registry.Probe(context.Background())

	guard := auth.NewGuard(auth.RoleTable{
		"radiologist": {"pacs:*"},
		"auditor":     {"audit:read"},
	})
	sink := audit.NewMemorySink()
	invoker := router.New(schemas, registry, guard, sink, audit.NewRedactor(nil, 2048), log.Nop(), router.Options{})
	handler := NewHandler(schemas, registry, invoker, nil, sink, guard, log.Nop())

	srv := server.Default(server.WithHostPorts(":0"))
	RegisterRoutes(srv, handler, log.Nop(), 0, true)
	return srv, sink
}

func identityHeaders(role string) []ut.Header {
	return []ut.Header{
		{Key: "X-Subject-Id", Value: "dr-chen"},
		{Key: "X-Role", Value: role},
	}
}

func TestToolsCatalog(t *testing.T) {
	srv, _ := buildTestServer(t)
	w := ut.PerformRequest(srv.Engine, "GET", "/api/tools", nil, identityHeaders("radiologist")...)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Tools []schema.CatalogEntry `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Tools) != 1 || body.Tools[0].Name != "lookup_patient_imaging" {
		t.Fatalf("catalog: %+v", body.Tools)
	}
}

func TestToolsRequiresIdentity(t *testing.T) {
	srv, _ := buildTestServer(t)
	w := ut.PerformRequest(srv.Engine, "GET", "/api/tools", nil)

	if w.Code != 401 {
		t.Fatalf("status = %d, want 401 without identity headers", w.Code)
	}
}

func TestInvokeSuccess(t *testing.T) {
	srv, sink := buildTestServer(t)
	body, _ := json.Marshal(InvokeRequest{
		ToolName:      "lookup_patient_imaging",
		Parameters:    map[string]any{"patient_id": "P001"},
		CorrelationID: "corr-http-1",
	})
	w := ut.PerformRequest(srv.Engine, "POST", "/api/invoke",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		append(identityHeaders("radiologist"), ut.Header{Key: "Content-Type", Value: "application/json"})...)

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		CorrelationID string        `json:"correlation_id"`
		Result        router.Result `json:"result"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.Status != router.StatusSucceeded {
		t.Fatalf("result: %+v", resp.Result)
	}
	if len(sink.All()) != 1 || sink.All()[0].CorrelationID != "corr-http-1" {
		t.Fatalf("audit records: %+v", sink.All())
	}
}

func TestInvokeUnknownToolIs404(t *testing.T) {
	srv, _ := buildTestServer(t)
	body, _ := json.Marshal(InvokeRequest{ToolName: "no_such_tool"})
	w := ut.PerformRequest(srv.Engine, "POST", "/api/invoke",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		append(identityHeaders("radiologist"), ut.Header{Key: "Content-Type", Value: "application/json"})...)

	if w.Code != 404 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestInvokeUnauthorizedIs403(t *testing.T) {
	srv, _ := buildTestServer(t)
	body, _ := json.Marshal(InvokeRequest{
		ToolName:   "lookup_patient_imaging",
		Parameters: map[string]any{"patient_id": "P001"},
	})
	w := ut.PerformRequest(srv.Engine, "POST", "/api/invoke",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		append(identityHeaders("clerk"), ut.Header{Key: "Content-Type", Value: "application/json"})...)

	if w.Code != 403 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestConverseWithoutPlannerIs503(t *testing.T) {
	srv, _ := buildTestServer(t)
	body, _ := json.Marshal(ConverseRequest{Message: "show imaging for P001"})
	w := ut.PerformRequest(srv.Engine, "POST", "/api/converse",
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		append(identityHeaders("radiologist"), ut.Header{Key: "Content-Type", Value: "application/json"})...)

	if w.Code != 503 {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuditRequiresPermission(t *testing.T) {
	srv, _ := buildTestServer(t)

	w := ut.PerformRequest(srv.Engine, "GET", "/api/audit", nil, identityHeaders("radiologist")...)
	if w.Code != 403 {
		t.Fatalf("radiologist reading audit: status = %d", w.Code)
	}

	w = ut.PerformRequest(srv.Engine, "GET", "/api/audit", nil, identityHeaders("auditor")...)
	if w.Code != 200 {
		t.Fatalf("auditor reading audit: status = %d", w.Code)
	}
}

func TestAuditQueryReturnsRecords(t *testing.T) {
	srv, sink := buildTestServer(t)
	_ = sink.Append(context.Background(), &audit.Record{
		CorrelationID: "corr-q",
		SubjectID:     "dr-chen",
		Tool:          "lookup_patient_imaging",
		Status:        "succeeded",
		StartedAt:     time.Now(),
		FinishedAt:    time.Now(),
	})

	w := ut.PerformRequest(srv.Engine, "GET", "/api/audit?subject_id=dr-chen", nil, identityHeaders("auditor")...)
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Records []audit.Record `json:"records"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Records[0].CorrelationID != "corr-q" {
		t.Fatalf("audit response: %+v", resp)
	}
}

// 畸形分页参数回退默认值，不产生负数 limit 绕过分页
func TestAuditQueryMalformedPagination(t *testing.T) {
	srv, sink := buildTestServer(t)
	for i := 0; i < 3; i++ {
		_ = sink.Append(context.Background(), &audit.Record{
			CorrelationID: "corr-p",
			SubjectID:     "dr-chen",
			Tool:          "lookup_patient_imaging",
			Status:        "succeeded",
			StartedAt:     time.Now(),
			FinishedAt:    time.Now(),
		})
	}

	for _, limit := range []string{"99999999999999999999", "-5", "abc"} {
		w := ut.PerformRequest(srv.Engine, "GET", "/api/audit?limit="+limit, nil, identityHeaders("auditor")...)
		if w.Code != 200 {
			t.Fatalf("limit=%s: status = %d", limit, w.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Count != 3 {
			t.Fatalf("limit=%s: count = %d, want default limit to apply", limit, resp.Count)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := buildTestServer(t)
	w := ut.PerformRequest(srv.Engine, "GET", "/api/health", nil)

	if w.Code != 200 {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Healthy  bool             `json:"healthy"`
		Adapters []adapter.Health `json:"adapters"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Healthy || len(resp.Adapters) != 1 {
		t.Fatalf("health: %+v", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := buildTestServer(t)
	w := ut.PerformRequest(srv.Engine, "GET", "/api/metrics", nil)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("medgw")) {
		t.Fatal("prometheus exposition must contain gateway metrics")
	}
}
