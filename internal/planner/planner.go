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

// Package planner 把自然语言请求翻译成结构化工具调用提案。
// 规划器只产出提案：每个提案都要重新过 Schema Store 校验，
// 并以调用方自己的身份交给 Router，规划器不带来任何额外权限。
package planner

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"medgateway/internal/model/llm"
	"medgateway/internal/schema"
	"medgateway/pkg/errors"
	"medgateway/pkg/log"
	"medgateway/pkg/metrics"
)

// FallbackSummary 规划失败时对外的兜底回复
const FallbackSummary = "unable to determine an action"

const systemInstructions = `You are a tool-call planner for a medical integration gateway.
Given the tool catalog and the user request, respond with exactly one JSON object:
{"tool_calls":[{"tool":"<name>","parameters":{...}}],"summary":"<one sentence>"}
Only reference tools from the catalog. If no tool applies, return an empty tool_calls list.
Output nothing but the JSON object.`

// ToolCall 单个工具调用提案
type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// Plan 模型产出的结构化规划
type Plan struct {
	ToolCalls []ToolCall `json:"tool_calls"`
	Summary   string     `json:"summary"`
}

// Options 规划策略
type Options struct {
	Timeout         time.Duration // 模型调用超时
	MaxContextTurns int           // 提示词带入的历史轮数上限
	MaxStringLength int           // 参数字符串清洗上限
}

// Planner 调用规划器
type Planner struct {
	client  llm.Client
	schemas *schema.Store
	store   ContextStore
	logger  *log.Logger
	opts    Options
}

// New 创建规划器
func New(client llm.Client, schemas *schema.Store, store ContextStore, logger *log.Logger, opts Options) *Planner {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxContextTurns <= 0 {
		opts.MaxContextTurns = 10
	}
	if opts.MaxStringLength <= 0 {
		opts.MaxStringLength = 4096
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Planner{client: client, schemas: schemas, store: store, logger: logger, opts: opts}
}

// Plan 为一条用户消息产出工具调用提案。
// 任何失败（模型超时、输出不可解析、引用未知工具、参数不过校验）
// 都返回 KindPlanning 错误与兜底 Plan，Router 不会被触达。
func (p *Planner) Plan(ctx context.Context, correlationID, message string) (Plan, error) {
	prompt, err := p.buildMessages(ctx, correlationID, message)
	if err != nil {
		return p.fail("fallback", "planning_failed", "conversation context unavailable", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	output, err := p.client.Chat(callCtx, prompt, llm.GenerateOptions{Temperature: 0.1})
	if err != nil {
		outcome := "fallback"
		if stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		return p.fail(outcome, "planning_failed", "inference call failed", err)
	}

	plan, err := parsePlan(output)
	if err != nil {
		return p.fail("fallback", "planning_unparseable", "model output is not a single JSON plan", err)
	}

	// 每个提案重新过目录校验；规划器永远不能绕过 schema
	for i, call := range plan.ToolCalls {
		desc, err := p.schemas.Get(call.Tool)
		if err != nil {
			return p.fail("fallback", "planning_unknown_tool",
				fmt.Sprintf("plan references unknown tool %q", call.Tool), err)
		}
		clean := sanitizeParams(call.Parameters, p.opts.MaxStringLength)
		if err := schema.ValidateParams(desc.Parameters, clean); err != nil {
			return p.fail("fallback", "planning_invalid_params",
				fmt.Sprintf("plan for tool %q fails validation", call.Tool), err)
		}
		plan.ToolCalls[i].Parameters = clean
	}

	metrics.PlannerTotal.WithLabelValues("planned").Inc()
	return plan, nil
}

// RecordExchange 在一轮会话完整结束后追加上下文
func (p *Planner) RecordExchange(ctx context.Context, correlationID string, turns ...Turn) error {
	return p.store.Append(ctx, correlationID, turns...)
}

// Close 释放会话存储
func (p *Planner) Close(ctx context.Context) error {
	return p.store.Close(ctx)
}

func (p *Planner) fail(outcome, code, message string, cause error) (Plan, error) {
	metrics.PlannerTotal.WithLabelValues(outcome).Inc()
	p.logger.Warn("规划失败", "code", code, "error", cause)
	return Plan{Summary: FallbackSummary},
		errors.Wrap(errors.KindPlanning, code, message, errors.ErrPlanning)
}

// buildMessages 组装有界提示词：固定指令 + 工具目录 + 最近历史 + 当前消息
func (p *Planner) buildMessages(ctx context.Context, correlationID, message string) ([]llm.Message, error) {
	catalog, err := p.catalogJSON()
	if err != nil {
		return nil, err
	}

	msgs := []llm.Message{
		{Role: "system", Content: systemInstructions + "\n\nTool catalog:\n" + catalog},
	}

	history, err := p.store.History(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if len(history) > p.opts.MaxContextTurns {
		history = history[len(history)-p.opts.MaxContextTurns:]
	}
	for _, turn := range history {
		msgs = append(msgs, llm.Message{Role: turn.Role, Content: turn.Text})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: message})
	return msgs, nil
}

// catalogJSON 目录只暴露 name/description/parameters，不含权限与超时配置
func (p *Planner) catalogJSON() (string, error) {
	type promptTool struct {
		Name        string                      `json:"name"`
		Description string                      `json:"description"`
		Parameters  map[string]schema.FieldSpec `json:"parameters"`
	}
	tools := make([]promptTool, 0)
	for _, desc := range p.schemas.List() {
		tools = append(tools, promptTool{
			Name:        desc.Name,
			Description: desc.Description,
			Parameters:  desc.Parameters.Fields,
		})
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parsePlan 严格解析：输出必须恰好包含一个 JSON 对象，未知字段拒绝
func parsePlan(output string) (Plan, error) {
	start := strings.Index(output, "{")
	if start < 0 {
		return Plan{}, fmt.Errorf("no JSON object in model output")
	}
	dec := json.NewDecoder(strings.NewReader(output[start:]))
	dec.DisallowUnknownFields()

	var plan Plan
	if err := dec.Decode(&plan); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	rest := output[start+int(dec.InputOffset()):]
	if strings.Contains(rest, "{") {
		return Plan{}, fmt.Errorf("model output contains more than one JSON block")
	}
	return plan, nil
}
