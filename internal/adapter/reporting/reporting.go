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

package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medgateway/internal/adapter"
	"medgateway/internal/schema"
	"medgateway/pkg/errors"
)

// Adapter 放射报告库适配器；直接读报告数据库，不经 REST
type Adapter struct {
	pool *pgxpool.Pool
}

// New 创建报告适配器
func New() *Adapter { return &Adapter{} }

// Name 实现 adapter.Adapter
func (a *Adapter) Name() string { return "reporting" }

// Initialize 建立数据库连接池并 ping
func (a *Adapter) Initialize(ctx context.Context, cfg adapter.Config) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			"reporting dsn invalid", errors.ErrAdapterInit)
	}
	if cfg.Timeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("reporting pool: %v", err), errors.ErrAdapterInit)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("reporting database unreachable: %v", err), errors.ErrAdapterInit)
	}
	a.pool = pool
	return nil
}

// HealthCheck 实现 adapter.Adapter
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.pool == nil {
		return errors.ErrAdapterInit
	}
	return a.pool.Ping(ctx)
}

// Invoke 实现 adapter.Adapter
func (a *Adapter) Invoke(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	if a.pool == nil {
		return nil, errors.Wrap(errors.KindAdapter, "adapter_unavailable",
			"reporting adapter not initialized", errors.ErrAdapterUnavailable)
	}
	switch toolName {
	case "get_report":
		return a.getReport(ctx, params)
	case "list_reports":
		return a.listReports(ctx, params)
	default:
		return nil, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("reporting adapter does not own tool %q", toolName), errors.ErrUnknownTool)
	}
}

func (a *Adapter) getReport(ctx context.Context, params map[string]any) (map[string]any, error) {
	reportID, _ := params["report_id"].(string)

	var (
		studyID    string
		status     string
		impression string
		signedAt   *time.Time
	)
	err := a.pool.QueryRow(ctx,
		`SELECT study_id, status, impression, signed_at
		   FROM reports WHERE report_id = $1`, reportID).
		Scan(&studyID, &status, &impression, &signedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.New(errors.KindAdapter, "backend_error",
			fmt.Sprintf("report %q not found", reportID))
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindAdapter, "backend_error", "get_report query failed", err)
	}

	out := map[string]any{
		"report_id":  reportID,
		"study_id":   studyID,
		"status":     status,
		"impression": impression,
	}
	if signedAt != nil {
		out["signed_at"] = signedAt.UTC().Format(time.RFC3339)
	}
	return out, nil
}

func (a *Adapter) listReports(ctx context.Context, params map[string]any) (map[string]any, error) {
	patientID, _ := params["patient_id"].(string)
	limit := int64(20)
	if v, ok := params["limit"].(float64); ok && v > 0 {
		limit = int64(v)
	}

	rows, err := a.pool.Query(ctx,
		`SELECT report_id, study_id, status, created_at
		   FROM reports WHERE patient_id = $1
		  ORDER BY created_at DESC LIMIT $2`, patientID, limit)
	if err != nil {
		return nil, errors.Wrap(errors.KindAdapter, "backend_error", "list_reports query failed", err)
	}
	defer rows.Close()

	reports := []any{}
	for rows.Next() {
		var (
			reportID  string
			studyID   string
			status    string
			createdAt time.Time
		)
		if err := rows.Scan(&reportID, &studyID, &status, &createdAt); err != nil {
			return nil, errors.Wrap(errors.KindAdapter, "backend_error", "list_reports scan failed", err)
		}
		reports = append(reports, map[string]any{
			"report_id":  reportID,
			"study_id":   studyID,
			"status":     status,
			"created_at": createdAt.UTC().Format(time.RFC3339),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.KindAdapter, "backend_error", "list_reports rows failed", err)
	}
	return map[string]any{
		"reports": reports,
		"count":   len(reports),
	}, nil
}

// Shutdown 实现 adapter.Adapter
func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return nil
}

// Tools 本适配器持有的工具描述
func Tools() []schema.ToolDescriptor {
	return []schema.ToolDescriptor{
		{
			Name:        "get_report",
			Description: "Fetch one radiology report, including its impression text and signing state.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"report_id": {Type: schema.TypeString, Required: true, MinLength: 1},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"report_id":  {Type: schema.TypeString, Required: true},
				"study_id":   {Type: schema.TypeString, Required: true},
				"status":     {Type: schema.TypeString, Required: true, Enum: []string{"draft", "preliminary", "final", "amended"}},
				"impression": {Type: schema.TypeString},
				"signed_at":  {Type: schema.TypeString},
			}},
			RequiredPermission: "reporting:read",
			Idempotent:         true,
			Regulated:          true,
		},
		{
			Name:        "list_reports",
			Description: "List the most recent radiology reports for one patient.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id": {Type: schema.TypeString, Required: true, MinLength: 1},
				"limit":      {Type: schema.TypeInteger, Minimum: f64(1), Maximum: f64(100)},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"reports": {Type: schema.TypeArray, Items: schema.TypeObject, Required: true},
				"count":   {Type: schema.TypeInteger},
			}},
			RequiredPermission: "reporting:read",
			Idempotent:         true,
			Regulated:          true,
		},
	}
}

func f64(v float64) *float64 { return &v }
