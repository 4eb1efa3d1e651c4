// Package metrics 定义推荐链路的 Prometheus 指标：各阶段耗时、降级、空结果、重试与反馈写入。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rushteam/careerkit/core"
)

var (
	// StageDuration 各阶段耗时
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careerkit_stage_duration_seconds",
			Help:    "Duration of each recommendation stage in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"stage", "outcome"}, // outcome: ok / error
	)

	// RequestsTotal 请求数，按最终 reason 与错误类别区分
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerkit_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"reason", "error_kind"},
	)

	// DegradedTotal 打分器不可用降级到 hybrid 排序的次数
	DegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerkit_degraded_total",
			Help: "Total number of requests served by the hybrid-score fallback",
		},
		[]string{"cause"}, // scorer_unavailable / timeout
	)

	// EmptyResultsTotal 空结果次数
	EmptyResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerkit_empty_results_total",
			Help: "Total number of requests returning no items",
		},
		[]string{"reason"},
	)

	// RetrievalRetries 检索重试次数
	RetrievalRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "careerkit_retrieval_retries_total",
			Help: "Total number of retrieval retries after a transient failure",
		},
	)

	// OutcomesRecorded 反馈写入，duplicate 表示幂等去重
	OutcomesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerkit_outcomes_recorded_total",
			Help: "Total number of outcome events received",
		},
		[]string{"result"}, // recorded / duplicate / error
	)

	// OutcomesPublished 反馈事件投递到消息队列的结果
	OutcomesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careerkit_outcomes_published_total",
			Help: "Total number of outcome events published to the event log",
		},
		[]string{"result"}, // ok / error
	)
)

// RecordStage 记录一个阶段的耗时。
func RecordStage(stage core.Stage, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StageDuration.WithLabelValues(string(stage), outcome).Observe(duration.Seconds())
}

// RecordRequest 记录一次请求的结果。err 不为 nil 时 reason 记为 "error"。
func RecordRequest(reason core.ReasonCode, err error) {
	if err != nil {
		RequestsTotal.WithLabelValues("error", errorKind(err)).Inc()
		return
	}
	RequestsTotal.WithLabelValues(string(reason), "").Inc()
}

// RecordDegraded 记录一次降级。
func RecordDegraded(cause error) {
	DegradedTotal.WithLabelValues(errorKind(cause)).Inc()
}

// RecordEmpty 记录一次空结果。
func RecordEmpty(reason core.ReasonCode) {
	EmptyResultsTotal.WithLabelValues(string(reason)).Inc()
}

// RecordRetrievalRetry 记录一次检索重试。
func RecordRetrievalRetry() {
	RetrievalRetries.Inc()
}

// RecordOutcome 记录一次反馈写入。
func RecordOutcome(recorded bool, err error) {
	switch {
	case err != nil:
		OutcomesRecorded.WithLabelValues("error").Inc()
	case recorded:
		OutcomesRecorded.WithLabelValues("recorded").Inc()
	default:
		OutcomesRecorded.WithLabelValues("duplicate").Inc()
	}
}

// RecordPublish 记录一次反馈事件投递。
func RecordPublish(err error) {
	if err != nil {
		OutcomesPublished.WithLabelValues("error").Inc()
		return
	}
	OutcomesPublished.WithLabelValues("ok").Inc()
}

func errorKind(err error) string {
	if de := core.GetDomainError(err); de != nil {
		return string(de.Kind)
	}
	return string(core.KindInternal)
}
