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

package http

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"medgateway/internal/adapter"
	"medgateway/internal/audit"
	"medgateway/internal/planner"
	"medgateway/internal/router"
	"medgateway/internal/schema"
	"medgateway/pkg/auth"
	"medgateway/pkg/log"
	"medgateway/pkg/metrics"
)

// Handler API 处理器
type Handler struct {
	schemas  *schema.Store
	registry *adapter.Registry
	invoker  *router.Router
	planner  *planner.Planner // 未配置推理端点时为 nil，/api/converse 返回 503
	sink     audit.Sink
	guard    *auth.Guard
	logger   *log.Logger
}

// NewHandler 创建 API 处理器
func NewHandler(schemas *schema.Store, registry *adapter.Registry, invoker *router.Router,
	pl *planner.Planner, sink audit.Sink, guard *auth.Guard, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Handler{
		schemas:  schemas,
		registry: registry,
		invoker:  invoker,
		planner:  pl,
		sink:     sink,
		guard:    guard,
		logger:   logger,
	}
}

// Tools 工具目录
// GET /api/tools
func (h *Handler) Tools(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]any{
		"tools": schema.Catalog(h.schemas.List()),
	})
}

// InvokeRequest 直连调用请求体
type InvokeRequest struct {
	ToolName      string         `json:"tool_name"`
	Parameters    map[string]any `json:"parameters"`
	CorrelationID string         `json:"correlation_id"`
}

// Invoke 直连工具调用
// POST /api/invoke
func (h *Handler) Invoke(c context.Context, ctx *app.RequestContext) {
	var req InvokeRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request body",
		})
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}

	identity := auth.GetIdentity(c)
	res := h.invoker.Invoke(c, identity, router.Request{
		CorrelationID: req.CorrelationID,
		Tool:          req.ToolName,
		Params:        req.Parameters,
	})
	ctx.JSON(statusOf(res), map[string]any{
		"correlation_id": req.CorrelationID,
		"result":         res,
	})
}

// statusOf 终态 → HTTP 状态码
func statusOf(res router.Result) int {
	switch res.Status {
	case router.StatusSucceeded:
		return consts.StatusOK
	case router.StatusCancelled:
		return consts.StatusRequestTimeout
	case router.StatusRejected:
		switch res.Code {
		case "unknown_tool":
			return consts.StatusNotFound
		case "unauthorized":
			return consts.StatusForbidden
		case "adapter_unavailable":
			return consts.StatusServiceUnavailable
		default:
			return consts.StatusBadRequest
		}
	default:
		return consts.StatusBadGateway
	}
}

// ConverseRequest 会话请求体
type ConverseRequest struct {
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

// Converse 自然语言入口：规划 → 逐个调用 → 汇总
// POST /api/converse
func (h *Handler) Converse(c context.Context, ctx *app.RequestContext) {
	if h.planner == nil {
		ctx.JSON(consts.StatusServiceUnavailable, map[string]string{
			"error": "no inference endpoint configured",
		})
		return
	}

	var req ConverseRequest
	if err := ctx.BindJSON(&req); err != nil || req.Message == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "message is required",
		})
		return
	}
	if req.CorrelationID == "" {
		req.CorrelationID = uuid.New().String()
	}

	plan, err := h.planner.Plan(c, req.CorrelationID, req.Message)
	if err != nil {
		// 规划失败不触达 Router；兜底回复对外是 200
		ctx.JSON(consts.StatusOK, map[string]any{
			"correlation_id":  req.CorrelationID,
			"response":        plan.Summary,
			"tool_calls_made": []any{},
		})
		return
	}

	identity := auth.GetIdentity(c)
	made := make([]map[string]any, 0, len(plan.ToolCalls))
	for _, call := range plan.ToolCalls {
		res := h.invoker.Invoke(c, identity, router.Request{
			CorrelationID: req.CorrelationID,
			Tool:          call.Tool,
			Params:        call.Parameters,
		})
		made = append(made, map[string]any{
			"tool":   call.Tool,
			"status": res.Status,
			"code":   res.Code,
		})
	}

	if err := h.planner.RecordExchange(c, req.CorrelationID,
		planner.Turn{Role: "user", Text: req.Message},
		planner.Turn{Role: "assistant", Text: plan.Summary},
	); err != nil {
		h.logger.Warn("会话上下文追加失败", "correlation_id", req.CorrelationID, "error", err)
	}

	ctx.JSON(consts.StatusOK, map[string]any{
		"correlation_id":  req.CorrelationID,
		"response":        plan.Summary,
		"tool_calls_made": made,
	})
}

// Audit 审计导出查询；需要 audit:read 权限
// GET /api/audit
func (h *Handler) Audit(c context.Context, ctx *app.RequestContext) {
	identity := auth.GetIdentity(c)
	if !h.guard.Authorize(identity, "audit:read") {
		ctx.JSON(consts.StatusForbidden, map[string]string{
			"error": "permission denied",
		})
		return
	}

	filter := audit.Filter{
		SubjectID:     ctx.Query("subject_id"),
		Tool:          ctx.Query("tool"),
		CorrelationID: ctx.Query("correlation_id"),
		Limit:         intQuery(ctx, "limit", 100),
		Offset:        intQuery(ctx, "offset", 0),
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	if v := ctx.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = t
		}
	}
	if v := ctx.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = t
		}
	}
	if v := ctx.Query("regulated"); v == "true" || v == "false" {
		regulated := v == "true"
		filter.Regulated = &regulated
	}

	records, err := h.sink.Query(c, filter)
	if err != nil {
		h.logger.Error("审计查询失败", "error", err)
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "audit query failed",
		})
		return
	}
	ctx.JSON(consts.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func intQuery(ctx *app.RequestContext, key string, fallback int) int {
	v := ctx.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// Health 适配器健康快照（就绪探针）
// GET /api/health
func (h *Handler) Health(c context.Context, ctx *app.RequestContext) {
	snapshot := h.registry.HealthSnapshot()
	healthy := true
	for _, item := range snapshot {
		if !item.Available || !item.Alive {
			healthy = false
			break
		}
	}
	code := consts.StatusOK
	if !healthy {
		code = consts.StatusServiceUnavailable
	}
	ctx.JSON(code, map[string]any{
		"healthy":  healthy,
		"adapters": snapshot,
	})
}

// Metrics Prometheus 文本导出
// GET /api/metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		ctx.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "metrics gather failed",
		})
		return
	}
	ctx.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
