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

package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"medgateway/internal/adapter"
	"medgateway/internal/schema"
	"medgateway/pkg/errors"
	"medgateway/pkg/secrets"
)

// Adapter 预约排程系统（RIS）REST 适配器
type Adapter struct {
	client      *resty.Client
	credentials secrets.Store
}

// New 创建排程适配器
func New(credentials secrets.Store) *Adapter {
	return &Adapter{credentials: credentials}
}

// Name 实现 adapter.Adapter
func (a *Adapter) Name() string { return "scheduling" }

// Initialize 建立排程后端连通
func (a *Adapter) Initialize(ctx context.Context, cfg adapter.Config) error {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(timeout)

	if cfg.CredentialKey != "" && a.credentials != nil {
		token, err := a.credentials.Get(ctx, cfg.CredentialKey)
		if err != nil {
			return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
				"scheduling credential unavailable", err)
		}
		client.SetHeader("Authorization", "Bearer "+token)
	}

	resp, err := client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("scheduling backend unreachable: %v", err), errors.ErrAdapterInit)
	}
	if resp.IsError() {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("scheduling backend returned %d", resp.StatusCode()), errors.ErrAdapterInit)
	}
	a.client = client
	return nil
}

// HealthCheck 实现 adapter.Adapter
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return errors.ErrAdapterInit
	}
	resp, err := a.client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("scheduling health: status %d", resp.StatusCode())
	}
	return nil
}

// Invoke 实现 adapter.Adapter
func (a *Adapter) Invoke(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	if a.client == nil {
		return nil, errors.Wrap(errors.KindAdapter, "adapter_unavailable",
			"scheduling adapter not initialized", errors.ErrAdapterUnavailable)
	}
	switch toolName {
	case "list_appointments":
		return a.listAppointments(ctx, params)
	case "schedule_appointment":
		return a.scheduleAppointment(ctx, params)
	case "cancel_appointment":
		return a.cancelAppointment(ctx, params)
	default:
		return nil, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("scheduling adapter does not own tool %q", toolName), errors.ErrUnknownTool)
	}
}

func (a *Adapter) listAppointments(ctx context.Context, params map[string]any) (map[string]any, error) {
	req := a.client.R().SetContext(ctx)
	if pid, ok := params["patient_id"].(string); ok && pid != "" {
		req.SetQueryParam("patient_id", pid)
	}
	if date, ok := params["date"].(string); ok && date != "" {
		req.SetQueryParam("date", date)
	}

	var out struct {
		Appointments []map[string]any `json:"appointments"`
	}
	resp, err := req.SetResult(&out).Get("/appointments")
	if err != nil {
		return nil, wrapBackend("list_appointments", err)
	}
	if resp.IsError() {
		return nil, backendStatus("list_appointments", resp.StatusCode())
	}

	items := make([]any, 0, len(out.Appointments))
	for _, appt := range out.Appointments {
		items = append(items, appt)
	}
	return map[string]any{
		"appointments": items,
		"count":        len(items),
	}, nil
}

// scheduleAppointment 预约排程；非幂等，调用方失败时不得自动重试
func (a *Adapter) scheduleAppointment(ctx context.Context, params map[string]any) (map[string]any, error) {
	body := map[string]any{
		"patient_id": params["patient_id"],
		"modality":   params["modality"],
		"slot":       params["slot"],
	}
	if indication, ok := params["clinical_indication"].(string); ok && indication != "" {
		body["clinical_indication"] = indication
	}

	var out map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/appointments")
	if err != nil {
		return nil, wrapBackend("schedule_appointment", err)
	}
	if resp.IsError() {
		return nil, backendStatus("schedule_appointment", resp.StatusCode())
	}

	appointmentID, _ := out["appointment_id"].(string)
	status, _ := out["status"].(string)
	if status == "" {
		status = "booked"
	}
	return map[string]any{
		"appointment_id": appointmentID,
		"status":         status,
	}, nil
}

func (a *Adapter) cancelAppointment(ctx context.Context, params map[string]any) (map[string]any, error) {
	appointmentID, _ := params["appointment_id"].(string)

	var out map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		Delete("/appointments/" + appointmentID)
	if err != nil {
		return nil, wrapBackend("cancel_appointment", err)
	}
	if resp.IsError() {
		return nil, backendStatus("cancel_appointment", resp.StatusCode())
	}

	status, _ := out["status"].(string)
	if status == "" {
		status = "cancelled"
	}
	return map[string]any{
		"appointment_id": appointmentID,
		"status":         status,
	}, nil
}

func wrapBackend(tool string, err error) error {
	return errors.Wrap(errors.KindAdapter, "backend_error",
		fmt.Sprintf("scheduling call %s failed", tool), err)
}

func backendStatus(tool string, status int) error {
	return errors.New(errors.KindAdapter, "backend_error",
		fmt.Sprintf("scheduling call %s returned status %d", tool, status))
}

// Shutdown 实现 adapter.Adapter
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.client = nil
	return nil
}

// Tools 本适配器持有的工具描述。
// 取消是幂等的（对已取消的预约重复取消结果不变），新建不是。
func Tools() []schema.ToolDescriptor {
	return []schema.ToolDescriptor{
		{
			Name:        "list_appointments",
			Description: "List imaging appointments, filtered by patient or date.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id": {Type: schema.TypeString, Description: "patient identifier"},
				"date":       {Type: schema.TypeString, Description: "ISO date YYYY-MM-DD"},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"appointments": {Type: schema.TypeArray, Items: schema.TypeObject, Required: true},
				"count":        {Type: schema.TypeInteger},
			}},
			RequiredPermission: "scheduling:read",
			Idempotent:         true,
			Regulated:          true,
		},
		{
			Name:        "schedule_appointment",
			Description: "Book an imaging appointment in a free slot for one patient.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id":          {Type: schema.TypeString, Required: true, MinLength: 1},
				"modality":            {Type: schema.TypeString, Required: true, Enum: []string{"CT", "MR", "US", "CR", "DX"}},
				"slot":                {Type: schema.TypeString, Description: "ISO datetime of the slot", Required: true, MinLength: 1},
				"clinical_indication": {Type: schema.TypeString, MaxLength: 512},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"appointment_id": {Type: schema.TypeString, Required: true},
				"status":         {Type: schema.TypeString, Enum: []string{"booked", "waitlisted"}},
			}},
			RequiredPermission: "scheduling:write",
			Idempotent:         false,
			Regulated:          true,
		},
		{
			Name:        "cancel_appointment",
			Description: "Cancel an existing imaging appointment by its identifier.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"appointment_id": {Type: schema.TypeString, Required: true, MinLength: 1},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"appointment_id": {Type: schema.TypeString, Required: true},
				"status":         {Type: schema.TypeString},
			}},
			RequiredPermission: "scheduling:write",
			Idempotent:         true,
			Regulated:          true,
		},
	}
}
