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

package pacs

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

// Adapter 影像归档（Orthanc 风格 REST）适配器
type Adapter struct {
	client      *resty.Client
	credentials secrets.Store
}

// New 创建 PACS 适配器；凭据在 Initialize 时解析
func New(credentials secrets.Store) *Adapter {
	return &Adapter{credentials: credentials}
}

// Name 实现 adapter.Adapter
func (a *Adapter) Name() string { return "pacs" }

// Initialize 建立后端连通；探测 /system 验证可达性
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
				"pacs credential unavailable", err)
		}
		client.SetHeader("Authorization", "Bearer "+token)
	}

	resp, err := client.R().SetContext(ctx).Get("/system")
	if err != nil {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("pacs backend unreachable: %v", err), errors.ErrAdapterInit)
	}
	if resp.IsError() {
		return errors.Wrap(errors.KindAdapter, "adapter_init_failed",
			fmt.Sprintf("pacs backend returned %d", resp.StatusCode()), errors.ErrAdapterInit)
	}
	a.client = client
	return nil
}

// HealthCheck 实现 adapter.Adapter
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return errors.ErrAdapterInit
	}
	resp, err := a.client.R().SetContext(ctx).Get("/system")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("pacs health: status %d", resp.StatusCode())
	}
	return nil
}

// Invoke 实现 adapter.Adapter
func (a *Adapter) Invoke(ctx context.Context, toolName string, params map[string]any) (map[string]any, error) {
	if a.client == nil {
		return nil, errors.Wrap(errors.KindAdapter, "adapter_unavailable",
			"pacs adapter not initialized", errors.ErrAdapterUnavailable)
	}
	switch toolName {
	case "lookup_patient_imaging":
		return a.lookupPatientImaging(ctx, params)
	case "retrieve_study":
		return a.retrieveStudy(ctx, params)
	default:
		return nil, errors.Wrap(errors.KindCaller, "unknown_tool",
			fmt.Sprintf("pacs adapter does not own tool %q", toolName), errors.ErrUnknownTool)
	}
}

// lookupPatientImaging 按患者 ID 检索影像检查列表
func (a *Adapter) lookupPatientImaging(ctx context.Context, params map[string]any) (map[string]any, error) {
	query := map[string]any{
		"Level": "Study",
		"Query": map[string]any{"PatientID": params["patient_id"]},
	}
	if modality, ok := params["modality"].(string); ok && modality != "" {
		query["Query"].(map[string]any)["ModalitiesInStudy"] = modality
	}

	var studies []map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(query).
		SetResult(&studies).
		Post("/tools/find")
	if err != nil {
		return nil, wrapBackend("lookup_patient_imaging", err)
	}
	if resp.IsError() {
		return nil, backendStatus("lookup_patient_imaging", resp.StatusCode())
	}

	ids := make([]any, 0, len(studies))
	for _, s := range studies {
		if id, ok := s["ID"].(string); ok {
			ids = append(ids, id)
		}
	}
	return map[string]any{
		"studies": ids,
		"count":   len(ids),
	}, nil
}

// retrieveStudy 获取单个检查的描述与序列清单
func (a *Adapter) retrieveStudy(ctx context.Context, params map[string]any) (map[string]any, error) {
	studyID, _ := params["study_id"].(string)

	var study map[string]any
	resp, err := a.client.R().
		SetContext(ctx).
		SetResult(&study).
		Get("/studies/" + studyID)
	if err != nil {
		return nil, wrapBackend("retrieve_study", err)
	}
	if resp.IsError() {
		return nil, backendStatus("retrieve_study", resp.StatusCode())
	}

	description := ""
	if main, ok := study["MainDicomTags"].(map[string]any); ok {
		if d, ok := main["StudyDescription"].(string); ok {
			description = d
		}
	}
	series := []any{}
	if raw, ok := study["Series"].([]any); ok {
		series = raw
	}
	return map[string]any{
		"study_id":    studyID,
		"description": description,
		"series":      series,
	}, nil
}

func wrapBackend(tool string, err error) error {
	return errors.Wrap(errors.KindAdapter, "backend_error",
		fmt.Sprintf("pacs call %s failed", tool), err)
}

func backendStatus(tool string, status int) error {
	return errors.New(errors.KindAdapter, "backend_error",
		fmt.Sprintf("pacs call %s returned status %d", tool, status))
}

// Shutdown 实现 adapter.Adapter；HTTP 客户端无持久连接状态需要释放
func (a *Adapter) Shutdown(ctx context.Context) error {
	a.client = nil
	return nil
}

// Tools 本适配器持有的工具描述
func Tools() []schema.ToolDescriptor {
	return []schema.ToolDescriptor{
		{
			Name:        "lookup_patient_imaging",
			Description: "List imaging studies stored in the PACS archive for one patient, optionally filtered by modality.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"patient_id": {Type: schema.TypeString, Description: "patient identifier", Required: true, MinLength: 1},
				"modality":   {Type: schema.TypeString, Description: "DICOM modality filter", Enum: []string{"CT", "MR", "US", "CR", "DX"}},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"studies": {Type: schema.TypeArray, Required: true},
				"count":   {Type: schema.TypeInteger},
			}},
			RequiredPermission: "pacs:read",
			Idempotent:         true,
			Regulated:          true,
		},
		{
			Name:        "retrieve_study",
			Description: "Retrieve the description and series list of a single imaging study.",
			Parameters: schema.Schema{Fields: map[string]schema.FieldSpec{
				"study_id": {Type: schema.TypeString, Description: "study identifier from lookup_patient_imaging", Required: true, MinLength: 1},
			}},
			Results: schema.Schema{Fields: map[string]schema.FieldSpec{
				"study_id":    {Type: schema.TypeString, Required: true},
				"description": {Type: schema.TypeString},
				"series":      {Type: schema.TypeArray},
			}},
			RequiredPermission: "pacs:read",
			Idempotent:         true,
			Regulated:          true,
		},
	}
}
