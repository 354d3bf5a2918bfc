package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		InvocationDuration, InvocationTotal, RetryTotal,
		BreakerState, ResultAnomalyTotal,
		PlannerTotal, AuditWriteFailTotal,
	)
}

// InvocationDuration 工具调用耗时（秒），含校验与审计
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "medgw_invocation_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// InvocationTotal 调用总数（按工具与终态）
var InvocationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medgw_invocation_total",
		Help: "工具调用总数（按终态）",
	},
	[]string{"tool", "status"},
)

// RetryTotal 幂等工具自动重试次数
var RetryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medgw_retry_total",
		Help: "幂等工具自动重试次数",
	},
	[]string{"tool"},
)

// BreakerState 每适配器熔断状态（0=closed, 1=open）
var BreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "medgw_breaker_open",
		Help: "适配器熔断状态（0=closed, 1=open）",
	},
	[]string{"adapter"},
)

// ResultAnomalyTotal 结果 schema 非致命失配次数（不计入熔断）
var ResultAnomalyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medgw_result_anomaly_total",
		Help: "适配器结果 schema 非致命失配次数",
	},
	[]string{"adapter", "tool"},
)

// PlannerTotal 规划结果总数
var PlannerTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "medgw_planner_total",
		Help: "Call Planner 规划结果总数",
	},
	[]string{"outcome"}, // planned | fallback | timeout
)

// AuditWriteFailTotal 审计写入失败次数
var AuditWriteFailTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "medgw_audit_write_fail_total",
		Help: "审计记录写入失败次数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
