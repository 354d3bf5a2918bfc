package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgateway/internal/adapter"
	"medgateway/internal/schema"
)

func newFakeRIS(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/appointments", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"appointments": []map[string]any{
					{"appointment_id": "A1", "patient_id": r.URL.Query().Get("patient_id")},
				},
			})
		case http.MethodPost:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotEmpty(t, body["patient_id"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"appointment_id": "A2", "status": "booked",
			})
		}
	})
	mux.HandleFunc("/appointments/A2", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "cancelled"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func initAdapter(t *testing.T) *Adapter {
	t.Helper()
	srv := newFakeRIS(t)
	a := New(nil)
	require.NoError(t, a.Initialize(context.Background(), adapter.Config{Endpoint: srv.URL}))
	return a
}

func TestListAppointments(t *testing.T) {
	a := initAdapter(t)
	out, err := a.Invoke(context.Background(), "list_appointments", map[string]any{
		"patient_id": "P001",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out["count"])
}

func TestScheduleAppointment(t *testing.T) {
	a := initAdapter(t)
	out, err := a.Invoke(context.Background(), "schedule_appointment", map[string]any{
		"patient_id": "P001",
		"modality":   "CT",
		"slot":       "2026-03-05T09:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "A2", out["appointment_id"])
	assert.Equal(t, "booked", out["status"])
}

func TestCancelAppointment(t *testing.T) {
	a := initAdapter(t)
	out, err := a.Invoke(context.Background(), "cancel_appointment", map[string]any{
		"appointment_id": "A2",
	})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out["status"])
}

// 适配器的真实返回必须与自己声明的结果 schema 匹配，健康调用不得产生异常记录
func TestListAppointmentsMatchesDeclaredResults(t *testing.T) {
	a := initAdapter(t)
	out, err := a.Invoke(context.Background(), "list_appointments", map[string]any{
		"patient_id": "P001",
	})
	require.NoError(t, err)

	var results schema.Schema
	for _, tool := range Tools() {
		if tool.Name == "list_appointments" {
			results = tool.Results
		}
	}
	check := schema.ValidateResult(results, out)
	assert.True(t, check.OK(), "healthy result flagged: fatal=%v anomalies=%v", check.Fatal, check.Anomalies)
}

// 新建预约不可自动重试，取消与查询可以
func TestIdempotencyDeclarations(t *testing.T) {
	byName := map[string]bool{}
	for _, tool := range Tools() {
		byName[tool.Name] = tool.Idempotent
	}
	assert.True(t, byName["list_appointments"])
	assert.False(t, byName["schedule_appointment"])
	assert.True(t, byName["cancel_appointment"])
}
