package pacs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgateway/internal/adapter"
	"medgateway/pkg/errors"
)

func newFakeOrthanc(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/system", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"Version": "1.12.0"})
	})
	mux.HandleFunc("/tools/find", func(w http.ResponseWriter, r *http.Request) {
		var query struct {
			Level string         `json:"Level"`
			Query map[string]any `json:"Query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		assert.Equal(t, "Study", query.Level)
		w.Header().Set("Content-Type", "application/json")
		if query.Query["PatientID"] == "P001" {
			_ = json.NewEncoder(w).Encode([]map[string]any{
				{"ID": "study-1"}, {"ID": "study-2"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	})
	mux.HandleFunc("/studies/study-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"MainDicomTags": map[string]any{"StudyDescription": "CT CHEST W/O CONTRAST"},
			"Series":        []any{"series-1", "series-2"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInitializeAndHealth(t *testing.T) {
	srv := newFakeOrthanc(t)
	a := New(nil)
	err := a.Initialize(context.Background(), adapter.Config{Endpoint: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	require.NoError(t, a.HealthCheck(context.Background()))
}

func TestInitializeUnreachableBackend(t *testing.T) {
	a := New(nil)
	err := a.Initialize(context.Background(), adapter.Config{
		Endpoint: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAdapterInit)
}

func TestLookupPatientImaging(t *testing.T) {
	srv := newFakeOrthanc(t)
	a := New(nil)
	require.NoError(t, a.Initialize(context.Background(), adapter.Config{Endpoint: srv.URL}))

	out, err := a.Invoke(context.Background(), "lookup_patient_imaging", map[string]any{
		"patient_id": "P001",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, out["count"])
	assert.Len(t, out["studies"], 2)
}

func TestRetrieveStudy(t *testing.T) {
	srv := newFakeOrthanc(t)
	a := New(nil)
	require.NoError(t, a.Initialize(context.Background(), adapter.Config{Endpoint: srv.URL}))

	out, err := a.Invoke(context.Background(), "retrieve_study", map[string]any{
		"study_id": "study-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "study-1", out["study_id"])
	assert.Equal(t, "CT CHEST W/O CONTRAST", out["description"])
	assert.Len(t, out["series"], 2)
}

func TestInvokeUnownedTool(t *testing.T) {
	srv := newFakeOrthanc(t)
	a := New(nil)
	require.NoError(t, a.Initialize(context.Background(), adapter.Config{Endpoint: srv.URL}))

	_, err := a.Invoke(context.Background(), "schedule_appointment", nil)
	assert.ErrorIs(t, err, errors.ErrUnknownTool)
}

func TestInvokeBeforeInitialize(t *testing.T) {
	a := New(nil)
	_, err := a.Invoke(context.Background(), "retrieve_study", map[string]any{"study_id": "s"})
	assert.ErrorIs(t, err, errors.ErrAdapterUnavailable)
}

func TestToolsDeclareOwnership(t *testing.T) {
	tools := Tools()
	require.Len(t, tools, 2)
	for _, tool := range tools {
		assert.Equal(t, "pacs:read", tool.RequiredPermission)
		assert.True(t, tool.Idempotent)
		assert.True(t, tool.Regulated)
	}
}
