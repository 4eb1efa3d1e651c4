package rank

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feature"
	"github.com/rushteam/careerkit/pkg/logging"
	"github.com/rushteam/careerkit/pkg/utils"
	"github.com/rushteam/careerkit/pkg/vecmath"
)

// Engine 是排序阶段：为检索候选拼接特征，一次批量调用打分器，写入 rank_score。
//
//   - 写入 labels：rank_model
//   - 输出顺序与输入一致，排序交给选择阶段
//   - 打分器实现 core.DecomposingScorer 时额外写入 cf_score、trait_score
type Engine struct {
	scorer core.Scorer
	layout *feature.Layout
	logger *zap.Logger
}

// NewEngine 创建排序引擎。layout 决定特征拼接方式，维度必须与打分器一致。
func NewEngine(scorer core.Scorer, layout *feature.Layout, logger *zap.Logger) *Engine {
	return &Engine{
		scorer: scorer,
		layout: layout,
		logger: logging.WithFields(logger,
			zap.String(logging.FieldStage, string(core.StageRanking)),
			zap.String(logging.FieldScorer, scorer.Name()),
		),
	}
}

func (e *Engine) Name() string { return "rank.model" }

// Rank 对候选打分。
//
// 错误：
//   - 特征维度或返回行数不符：ValidationError（不会重试，也不降级）
//   - 打分器失败：ScorerUnavailable
//   - 截止时间到达：Timeout(ranking)
//
// 出错时候选不会被部分修改。
func (e *Engine) Rank(
	ctx context.Context,
	profile *core.UserProfile,
	candidates []*core.ScoredCandidate,
) ([]*core.ScoredCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	if want := e.scorer.InputDim(); want > 0 && want != e.layout.Dim() {
		return nil, core.NewValidationError(core.ModuleRank,
			"scorer %s expects %d features, layout produces %d", e.scorer.Name(), want, e.layout.Dim())
	}
	features, err := e.layout.BuildBatch(profile, candidates)
	if err != nil {
		return nil, err
	}

	parts, err := e.score(ctx, features)
	if err != nil {
		return nil, core.WrapStageError(core.StageRanking, err, core.NewScorerUnavailable)
	}
	if len(parts) != len(candidates) {
		return nil, core.NewValidationError(core.ModuleRank,
			"scorer %s returned %d scores for %d candidates", e.scorer.Name(), len(parts), len(candidates))
	}
	for i, p := range parts {
		if math.IsNaN(p.Logit) {
			return nil, core.NewScorerUnavailable(fmt.Errorf("scorer %s returned NaN for %s", e.scorer.Name(), candidates[i].JobID))
		}
	}

	_, decomposed := e.scorer.(core.DecomposingScorer)
	for i, sc := range candidates {
		sc.RankScore = core.Float(vecmath.Sigmoid(parts[i].Logit))
		if decomposed {
			sc.CFScore = core.Float(vecmath.Sigmoid(parts[i].CFLogit))
			sc.TraitScore = core.Float(vecmath.Sigmoid(parts[i].TraitLogit))
		}
		sc.PutLabel("rank_model", utils.Label{Value: e.scorer.Name(), Source: utils.SourceRank})
	}
	e.logger.Debug("ranked candidates", zap.Int("count", len(candidates)), zap.Bool("decomposed", decomposed))
	return candidates, nil
}

// score 一次批量调用打分器；非分解打分器只填充 Logit。
func (e *Engine) score(ctx context.Context, features [][]float64) ([]core.ScoreParts, error) {
	if ds, ok := e.scorer.(core.DecomposingScorer); ok {
		return ds.ScoreBatchParts(ctx, features)
	}
	logits, err := e.scorer.ScoreBatch(ctx, features)
	if err != nil {
		return nil, err
	}
	parts := make([]core.ScoreParts, len(logits))
	for i, l := range logits {
		parts[i].Logit = l
	}
	return parts, nil
}

// ByHybrid 是打分器不可用时的显式降级：不写 rank_score，选择阶段按 hybrid_score 排序。
// 只打上降级来源标记，候选的已有分数保持不变。
func ByHybrid(candidates []*core.ScoredCandidate) []*core.ScoredCandidate {
	for _, sc := range candidates {
		sc.PutLabel("rank_model", utils.Label{Value: "hybrid_fallback", Source: utils.SourceFallback})
	}
	return candidates
}
