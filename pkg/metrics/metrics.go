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
		TaskSubmitTotal, TaskTerminalTotal, TaskDuration,
		PlatformCallDuration, PlatformCallErrors,
		CreditDebitTotal, CreditRefundTotal, RefundFailTotal,
	)
}

// TaskSubmitTotal 提交总数（按平台）
var TaskSubmitTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigc_task_submit_total",
		Help: "任务提交总数（按平台）",
	},
	[]string{"platform"},
)

// TaskTerminalTotal 到达终态的任务总数（按终态）
var TaskTerminalTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigc_task_terminal_total",
		Help: "任务终态总数",
	},
	[]string{"status"}, // completed | failed | cancelled
)

// TaskDuration 任务执行耗时（秒，提交到终态）
var TaskDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "aigc_task_duration_seconds",
		Help:    "任务执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"platform"},
)

// PlatformCallDuration 平台调用耗时（秒）
var PlatformCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "aigc_platform_call_duration_seconds",
		Help:    "平台调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"platform", "op"}, // submit | status | result | cancel
)

// PlatformCallErrors 平台调用失败总数
var PlatformCallErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigc_platform_call_errors_total",
		Help: "平台调用失败总数",
	},
	[]string{"platform", "op", "kind"}, // kind: unreachable | rejected
)

// CreditDebitTotal 扣费总额
var CreditDebitTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigc_credit_debit_total",
		Help: "扣费总额（credits）",
	},
	[]string{"application"},
)

// CreditRefundTotal 退款总额
var CreditRefundTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "aigc_credit_refund_total",
		Help: "退款总额（credits）",
	},
	[]string{"application"},
)

// RefundFailTotal 退款失败（账本不一致）总数；非零即需人工对账
var RefundFailTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "aigc_refund_fail_total",
		Help: "退款失败总数（账本不一致，需人工对账）",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
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
