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

// Package router 实现单次工具调用的完整生命周期：
// 校验 → 鉴权 → 熔断检查 → 分发（重试）→ 结果校验 → 审计 → 返回。
// 这是网关触达后端适配器的唯一路径。
package router

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"medgateway/internal/adapter"
	"medgateway/internal/audit"
	"medgateway/internal/schema"
	"medgateway/pkg/auth"
	"medgateway/pkg/errors"
	"medgateway/pkg/log"
	"medgateway/pkg/metrics"
)

// 调用终态
const (
	StatusSucceeded = "succeeded"
	StatusRejected  = "rejected"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Request 一次工具调用请求
type Request struct {
	CorrelationID string
	Tool          string
	Params        map[string]any
}

// Result 调用结果；ErrorDetail 不含后端内部细节
type Result struct {
	Status      string         `json:"status"`
	Code        string         `json:"code,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
	Anomaly     string         `json:"anomaly,omitempty"`
	Attempts    int            `json:"attempts"`
	LatencyMS   int64          `json:"latency_ms"`
}

// Authorizer 鉴权裁决接口；*auth.Guard 实现之
type Authorizer interface {
	Authorize(identity auth.Identity, required string) bool
}

// Options 调用策略
type Options struct {
	DefaultTimeout time.Duration            // 单次调用总超时
	ToolTimeouts   map[string]time.Duration // 按工具覆盖
	RetryMax       int                      // 最大重试次数（不含首次）
	RetryBackoff   time.Duration            // 退避基数；第 n 次重试等待 base*2^(n-1)
}

// Router 调用路由器
type Router struct {
	schemas  *schema.Store
	registry *adapter.Registry
	guard    Authorizer
	sink     audit.Sink
	redactor *audit.Redactor
	logger   *log.Logger
	opts     Options

	sleep func(ctx context.Context, d time.Duration) error // 测试可替换
}

// New 创建路由器
func New(schemas *schema.Store, registry *adapter.Registry, guard Authorizer,
	sink audit.Sink, redactor *audit.Redactor, logger *log.Logger, opts Options) *Router {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Router{
		schemas:  schemas,
		registry: registry,
		guard:    guard,
		sink:     sink,
		redactor: redactor,
		logger:   logger,
		opts:     opts,
		sleep:    ctxSleep,
	}
}

// Invoke 执行一次工具调用。每个分支（含拒绝与取消）都会同步写一条审计记录；
// 审计写入失败时结果被降级为 failed/audit_write_failed。
func (r *Router) Invoke(ctx context.Context, identity auth.Identity, req Request) Result {
	started := time.Now()

	// 未知工具最先判定：不做权限查询，不泄露目录之外的信息
	desc, err := r.schemas.Get(req.Tool)
	if err != nil {
		return r.finish(ctx, identity, req, desc, started, Result{
			Status: StatusRejected, Code: "unknown_tool",
			ErrorDetail: fmt.Sprintf("tool %q is not registered", req.Tool),
		}, nil)
	}

	if err := schema.ValidateParams(desc.Parameters, req.Params); err != nil {
		return r.finish(ctx, identity, req, desc, started, Result{
			Status: StatusRejected, Code: "validation_failed",
			ErrorDetail: errDetail(err),
		}, nil)
	}

	if !r.guard.Authorize(identity, desc.RequiredPermission) {
		return r.finish(ctx, identity, req, desc, started, Result{
			Status: StatusRejected, Code: "unauthorized",
			ErrorDetail: fmt.Sprintf("permission %q required", desc.RequiredPermission),
		}, nil)
	}

	backend, breaker, err := r.registry.Resolve(req.Tool)
	if err != nil {
		return r.finish(ctx, identity, req, desc, started, Result{
			Status: StatusRejected, Code: "adapter_unavailable",
			ErrorDetail: errDetail(err),
		}, nil)
	}

	if !breaker.Allow(time.Now()) {
		return r.finish(ctx, identity, req, desc, started, Result{
			Status: StatusRejected, Code: "adapter_unavailable",
			ErrorDetail: fmt.Sprintf("adapter %q circuit open, failing fast", backend.Name()),
		}, nil)
	}

	res := r.dispatch(ctx, desc, backend, breaker, req)
	return r.finish(ctx, identity, req, desc, started, res, backend)
}

// dispatch 在调用超时内执行适配器，幂等工具失败后按严格递增退避重试
func (r *Router) dispatch(ctx context.Context, desc schema.ToolDescriptor,
	backend adapter.Adapter, breaker *adapter.Breaker, req Request) Result {

	timeout := r.opts.DefaultTimeout
	if desc.TimeoutOverride > 0 {
		timeout = desc.TimeoutOverride
	}
	if t, ok := r.opts.ToolTimeouts[desc.Name]; ok && t > 0 {
		timeout = t
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	maxAttempts := 1
	if desc.Idempotent && r.opts.RetryMax > 0 {
		maxAttempts = 1 + r.opts.RetryMax
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			if err := r.sleep(callCtx, backoff); err != nil {
				break // 超时或取消：不再尝试
			}
			metrics.RetryTotal.WithLabelValues(desc.Name).Inc()
		}
		attempts++

		payload, err := backend.Invoke(callCtx, req.Tool, req.Params)
		if err == nil {
			breaker.RecordSuccess()
			return r.checkResult(desc, backend, payload, attempts)
		}
		lastErr = err
		// 调用方主动取消不算适配器失败，不计入熔断
		if !stderrors.Is(ctx.Err(), context.Canceled) {
			breaker.RecordFailure(time.Now())
		}
		r.logger.Warn("适配器调用失败",
			"tool", desc.Name, "adapter", backend.Name(), "attempt", attempts, "error", err)

		// 调用方错误不重试；上下文结束不重试
		if errors.KindOf(err) == errors.KindCaller || callCtx.Err() != nil {
			break
		}
	}

	// 区分取消与超时：取消是调用方行为，超时是适配器失败
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return Result{Status: StatusCancelled, Code: "cancelled",
			ErrorDetail: "caller cancelled the invocation", Attempts: attempts}
	}
	if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return Result{Status: StatusFailed, Code: "timeout",
			ErrorDetail: fmt.Sprintf("invocation exceeded %s", timeout), Attempts: attempts}
	}
	return Result{Status: StatusFailed, Code: errCode(lastErr, "backend_error"),
		ErrorDetail: errDetail(lastErr), Attempts: attempts}
}

// checkResult 防御性校验适配器返回的结果。
// 致命失配（缺必填字段）归为 contract_violation；其余偏差记为 anomaly，
// 调用仍算成功且不计入熔断。
func (r *Router) checkResult(desc schema.ToolDescriptor, backend adapter.Adapter,
	payload map[string]any, attempts int) Result {

	check := schema.ValidateResult(desc.Results, payload)
	if err := check.FatalError(); err != nil {
		return Result{Status: StatusFailed, Code: "contract_violation",
			ErrorDetail: errDetail(err), Attempts: attempts}
	}
	res := Result{Status: StatusSucceeded, Payload: payload, Attempts: attempts}
	if detail := check.AnomalyDetail(); detail != "" {
		res.Anomaly = detail
		metrics.ResultAnomalyTotal.WithLabelValues(backend.Name(), desc.Name).Inc()
	}
	return res
}

// finish 补全延迟、写审计、上报指标。所有返回路径汇聚于此。
func (r *Router) finish(ctx context.Context, identity auth.Identity, req Request,
	desc schema.ToolDescriptor, started time.Time, res Result, backend adapter.Adapter) Result {

	finished := time.Now()
	res.LatencyMS = finished.Sub(started).Milliseconds()

	adapterName := ""
	if backend != nil {
		adapterName = backend.Name()
	}
	record := &audit.Record{
		CorrelationID: req.CorrelationID,
		SubjectID:     identity.SubjectID,
		Role:          identity.Role,
		Tool:          req.Tool,
		Adapter:       adapterName,
		Status:        res.Status,
		Code:          res.Code,
		ErrorDetail:   res.ErrorDetail,
		Anomaly:       res.Anomaly,
		Params:        r.redactor.Redact(req.Params),
		Attempts:      res.Attempts,
		LatencyMS:     res.LatencyMS,
		Regulated:     desc.Regulated,
		StartedAt:     started,
		FinishedAt:    finished,
	}
	if res.Status == StatusSucceeded {
		record.Result = r.redactor.Redact(res.Payload)
	}

	// 审计在返回前同步落盘；落盘失败则这次调用不能对外报告成功
	if err := r.sink.Append(context.WithoutCancel(ctx), record); err != nil {
		metrics.AuditWriteFailTotal.Inc()
		r.logger.Error("审计写入失败", "tool", req.Tool, "correlation_id", req.CorrelationID, "error", err)
		res = Result{
			Status:      StatusFailed,
			Code:        "audit_write_failed",
			ErrorDetail: "audit record could not be persisted",
			Attempts:    res.Attempts,
			LatencyMS:   res.LatencyMS,
		}
	}

	metrics.InvocationTotal.WithLabelValues(req.Tool, res.Status).Inc()
	metrics.InvocationDuration.WithLabelValues(req.Tool).Observe(finished.Sub(started).Seconds())
	return res
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func errDetail(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.Detail()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func errCode(err error, fallback string) string {
	if code := errors.CodeOf(err); code != "" {
		return code
	}
	return fallback
}
