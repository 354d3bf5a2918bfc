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

package billing

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

// Adapter 计费与预授权系统 REST 适配器
type Adapter struct {
	client      *resty.Client
	credentials secrets.Store
}

// New 创建计费适配器
func New(credentials secrets.Store) *Adapter {
	return &Adapter{credentials: credentials}
}

// Name 实现 adapter.Adapter
func (a *Adapter) Name() string { return "billing" }

// Initialize 建立计费后端连通
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
				"billing credential unavailable", err)
		}
		client.SetHeader("Authorization", "Bearer "+token)
	}

	resp, err := client.R().SetContext(ctx).Get("/health")
	if err != nil {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("billing backend unreachable: %v", err), errors.ErrAdapterInit)
	}
	if resp.IsError() {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("billing backend returned %d", resp.StatusCode()), errors.ErrAdapterInit)
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
		return fmt.Errorf("billing health: status %d", resp.StatusCode())
	}
	return nil
}

// Invoke 实现 adapter.Adapter
func (a *Adapter) Invoke(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	if a.client == nil {
		return nil, errors.Wrap(errors.KindAdapter, "adapter_unavailable",
			"billing adapter not initialized", errors.ErrAdapterUnavailable)
	}
	switch toolName {
	case "estimate_patient_cost":
		return a.estimateCost(ctx, params)
	case "create_preauth_request":
		return a.createPreauth(ctx, params)
	case "check_preauth_status":
		return a.checkPreauth(ctx, params)
	default:
		return nil, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("billing adapter does not own tool %q", toolName), errors.ErrUnknownTool)
	}
}

func (a *Adapter) estimateCost(ctx context.Context, params map[string]any) (map[string]any, error) {
	var out map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"patient_id":     params["patient_id"],
			"procedure_code": params["procedure_code"],
		}).
		SetResult(&out).
		Post("/estimates")
	if err != nil {
		return nil, wrapBackend("estimate_patient_cost", err)
	}
	if resp.IsError() {
		return nil, backendStatus("estimate_patient_cost", resp.StatusCode())
	}

	amount, _ := out["estimated_amount"].(float64)
	currency, _ := out["currency"].(string)
	if currency == "" {
		currency = "USD"
	}
	covered, _ := out["covered"].(bool)
	return map[string]any{
		"estimated_amount": amount,
		"currency":         currency,
		"covered":          covered,
	}, nil
}

// createPreauth 发起预授权；非幂等，重复提交会产生重复请求单
func (a *Adapter) createPreauth(ctx context.Context, params map[string]any) (map[string]any, error) {
	body := map[string]any{
		"patient_id":     params["patient_id"],
		"procedure_code": params["procedure_code"],
		"member_number":  params["member_number"],
	}
	if notes, ok := params["notes"].(string); ok && notes != "" {
		body["notes"] = notes
	}

	var out map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/preauth")
	if err != nil {
		return nil, wrapBackend("create_preauth_request", err)
	}
	if resp.IsError() {
		return nil, backendStatus("create_preauth_request", resp.StatusCode())
	}

	requestID, _ := out["request_id"].(string)
	status, _ := out["status"].(string)
	if status == "" {
		status = "submitted"
	}
	return map[string]any{
		"request_id": requestID,
		"status":     status,
	}, nil
}

func (a *Adapter) checkPreauth(ctx context.Context, params map[string]any) (map[string]any, error) {
	requestID, _ := params["request_id"].(string)

	var out map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/preauth/" + requestID)
	if err != nil {
		return nil, wrapBackend("check_preauth_status", err)
	}
	if resp.IsError() {
		return nil, backendStatus("check_preauth_status", resp.StatusCode())
	}

	status, _ := out["status"].(string)
	decision, _ := out["decision"].(string)
	return map[string]any{
		"request_id": requestID,
		"status":     status,
		"decision":   decision,
	}, nil
}

func wrapBackend(tool string, err error) error {
	return errors.Wrap(errors.KindAdapter, "backend_error",
		fmt.Sprintf("billing call %s failed", tool), err)
}

func backendStatus(tool string, status int) error {
	return errors.New(errors.KindAdapter, "backend_error",
		fmt.Sprintf("billing call %s returned status %d", tool, status))
}

// Shutdown 实现 adapter.Adapter
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.client = nil
	return nil
}

// Tools 本适配器持有的工具描述
func Tools() []schema.ToolDescriptor {
	return []schema.ToolDescriptor{
		{
			Name:        "estimate_patient_cost",
			Description: "Estimate the out-of-pocket cost of a procedure for one patient.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id":     {Type: schema.TypeString, Required: true, MinLength: 1},
				"procedure_code": {Type: schema.TypeString, Required: true, MinLength: 1},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"estimated_amount": {Type: schema.TypeNumber, Required: true, Minimum: f64(0)},
				"currency":         {Type: schema.TypeString},
				"covered":          {Type: schema.TypeBoolean},
			}},
			RequiredPermission: "billing:read",
			Idempotent:         true,
			Regulated:          true,
		},
		{
			Name:        "create_preauth_request",
			Description: "Submit an insurance pre-authorization request for a procedure.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id":     {Type: schema.TypeString, Required: true, MinLength: 1},
				"procedure_code": {Type: schema.TypeString, Required: true, MinLength: 1},
				"member_number":  {Type: schema.TypeString, Required: true, MinLength: 1},
				"notes":          {Type: schema.TypeString, MaxLength: 1024},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"request_id": {Type: schema.TypeString, Required: true},
				"status":     {Type: schema.TypeString},
			}},
			RequiredPermission: "billing:write",
			Idempotent:         false,
			Regulated:          true,
		},
		{
			Name:        "check_preauth_status",
			Description: "Check the decision state of a pre-authorization request.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"request_id": {Type: schema.TypeString, Required: true, MinLength: 1},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"request_id": {Type: schema.TypeString, Required: true},
				"status":     {Type: schema.TypeString, Required: true, Enum: []string{"submitted", "pending", "decided"}},
				"decision":   {Type: schema.TypeString},
			}},
			RequiredPermission: "billing:read",
			Idempotent:         true,
			Regulated:          true,
		},
	}
}

func f64(v float64) *float64 { return &v }
