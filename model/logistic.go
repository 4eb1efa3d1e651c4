package model

import (
	"context"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feature"
)

// LogisticScorer 是逻辑回归打分器，输出 logit，由排序阶段做 sigmoid。
//
// 预测原理：
//
//	z = Bias + Σ Weights_i·x_i + Σ Cross_j·(user_emb_j · cand_emb_j)
//
// 其中 Cross 是 user/cand embedding 逐维乘积的权重（可选），用来表达两者的匹配程度。
//
// 分解：
//   - CFLogit    = Bias + embedding 两个 Block 的线性项 + Cross 项
//   - TraitLogit = 三个特质 Block 的线性项
//
// 两者之和恰为 Logit。
type LogisticScorer struct {
	name    string
	layout  *feature.Layout
	bias    float64
	weights []float64
	cross   []float64
}

// NewLogisticScorer 创建打分器。weights 长度必须等于 layout.Dim()，cross 为 nil 或长度等于 embedding 维度。
func NewLogisticScorer(name string, layout *feature.Layout, bias float64, weights, cross []float64) (*LogisticScorer, error) {
	if layout == nil {
		return nil, core.NewValidationError(core.ModuleRank, "logistic scorer: layout is required")
	}
	if len(weights) != layout.Dim() {
		return nil, core.NewValidationError(core.ModuleRank, "logistic scorer: got %d weights, want %d", len(weights), layout.Dim())
	}
	if cross != nil && len(cross) != layout.EmbeddingDim {
		return nil, core.NewValidationError(core.ModuleRank, "logistic scorer: got %d cross weights, want %d", len(cross), layout.EmbeddingDim)
	}
	if name == "" {
		name = "logistic"
	}
	return &LogisticScorer{
		name:    name,
		layout:  layout,
		bias:    bias,
		weights: append([]float64(nil), weights...),
		cross:   append([]float64(nil), cross...),
	}, nil
}

func (m *LogisticScorer) Name() string  { return m.name }
func (m *LogisticScorer) InputDim() int { return m.layout.Dim() }
func (m *LogisticScorer) Close() error  { return nil }

// ScoreBatch 实现 core.Scorer 接口
func (m *LogisticScorer) ScoreBatch(ctx context.Context, features [][]float64) ([]float64, error) {
	parts, err := m.ScoreBatchParts(ctx, features)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(parts))
	for i, p := range parts {
		out[i] = p.Logit
	}
	return out, nil
}

// ScoreBatchParts 实现 core.DecomposingScorer 接口
func (m *LogisticScorer) ScoreBatchParts(ctx context.Context, features [][]float64) ([]core.ScoreParts, error) {
	if err := checkBatch(features, m.layout.Dim()); err != nil {
		return nil, err
	}
	out := make([]core.ScoreParts, len(features))
	for i, x := range features {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = m.parts(x)
	}
	return out, nil
}

func (m *LogisticScorer) parts(x []float64) core.ScoreParts {
	u := m.layout.Span(feature.BlockUserEmbedding)
	c := m.layout.Span(feature.BlockCandidateEmbedding)

	cf := m.bias + dotSpan(m.weights, x, u) + dotSpan(m.weights, x, c)
	for j, w := range m.cross {
		cf += w * x[u.Start+j] * x[c.Start+j]
	}

	var trait float64
	for _, b := range []feature.Block{feature.BlockUserRIASEC, feature.BlockUserBig5, feature.BlockCandidateCentroid} {
		trait += dotSpan(m.weights, x, m.layout.Span(b))
	}
	return core.ScoreParts{Logit: cf + trait, CFLogit: cf, TraitLogit: trait}
}

func dotSpan(w, x []float64, s feature.Span) float64 {
	var sum float64
	for i := s.Start; i < s.End; i++ {
		sum += w[i] * x[i]
	}
	return sum
}

var _ core.DecomposingScorer = (*LogisticScorer)(nil)
