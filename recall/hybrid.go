package recall

import (
	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/vecmath"
)

// Weights 是混合打分的权重：
//
//	hybrid = Alpha·sim + Beta·(tag_hits / max_tag_hits) + Gamma·trait_sim
type Weights struct {
	Alpha float64 `yaml:"alpha" json:"alpha" validate:"gte=0"`
	Beta  float64 `yaml:"beta" json:"beta" validate:"gte=0"`
	Gamma float64 `yaml:"gamma" json:"gamma" validate:"gte=0"`
}

// DefaultWeights 返回默认权重 (0.75, 0.15, 0.10)。
func DefaultWeights() Weights {
	return Weights{Alpha: 0.75, Beta: 0.15, Gamma: 0.10}
}

// HybridInput 是单个候选的混合打分输入。
type HybridInput struct {
	Sim        float64
	TagHits    int
	MaxTagHits int      // 过滤后 slate 中的最大 tag_hits
	TraitSim   *float64 // nil 表示无法计算（任一侧缺少特质向量）
}

// Score 计算混合分。
//
//   - MaxTagHits 为 0 时标签项视为 0，避免除零
//   - TraitSim 为 nil 时该候选的 Gamma 视为 0；默认不对 Alpha、Beta 重新归一化，
//     renormalize 为 true 时按 (α+β+γ)/(α+β) 放大 Alpha 与 Beta
//
// 权重固定时，结果对 Sim、TagHits、TraitSim 单调不减。
func (w Weights) Score(in HybridInput, renormalize bool) float64 {
	alpha, beta := w.Alpha, w.Beta
	var traitTerm float64
	if in.TraitSim != nil {
		traitTerm = w.Gamma * *in.TraitSim
	} else if renormalize && alpha+beta > 0 {
		scale := (w.Alpha + w.Beta + w.Gamma) / (w.Alpha + w.Beta)
		alpha *= scale
		beta *= scale
	}

	var tagTerm float64
	if in.MaxTagHits > 0 {
		tagTerm = float64(in.TagHits) / float64(in.MaxTagHits)
	}
	return alpha*in.Sim + beta*tagTerm + traitTerm
}

// TraitSimilarity 计算用户 RIASEC 与候选特质中心的余弦相似度；任一侧缺失或维度不符返回 nil。
func TraitSimilarity(user, centroid core.TraitVector) *float64 {
	if user == nil || centroid == nil || len(user) != len(centroid) {
		return nil
	}
	return core.Float(vecmath.Cosine(user, centroid))
}
