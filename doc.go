// Package careerkit 根据心理测评画像（单位 embedding + RIASEC / Big5 特质）推荐职业。
//
// 设计要点：
// - 三阶段链路：Retrieval（向量召回 + 符号过滤 + 混合分）→ Ranking（冻结模型批量打分）→ Selection（确定性或 Bandit 策略）
// - 显式依赖：画像、目录、打分器、反馈存储都放在 core.PipelineContext 中，没有全局状态
// - 类型化错误：不可用、超时、校验失败分别对应重试、降级、快速失败
// - Labels 全链路透传：每个结果都保留 sim / hybrid / rank / cf / trait 分数来源
package careerkit

import (
	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pipeline"
)

// 轻量 facade：便于直接 import "careerkit" 使用核心抽象。
type (
	Orchestrator     = pipeline.Orchestrator
	Response         = pipeline.Response
	FinalItem        = core.FinalItem
	RetrievalFilters = core.RetrievalFilters
	Outcome          = core.Outcome
	PipelineContext  = core.PipelineContext
)

// New 创建编排器，见 pipeline.New。
func New(pctx *PipelineContext, cfg pipeline.Config, opts ...pipeline.Option) (*Orchestrator, error) {
	return pipeline.New(pctx, cfg, opts...)
}
