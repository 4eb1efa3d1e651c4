package core

import "github.com/rushteam/careerkit/pkg/textnorm"

// RetrievalFilters 是检索阶段的符号过滤条件。
type RetrievalFilters struct {
	// AllowedTokens 允许的标签；为 nil 时不计算 tag_hits，也不做标签过滤
	AllowedTokens []string `json:"allowed_tokens,omitempty" yaml:"allowed_tokens"`

	// IDPrefix 只保留 job_id 以此开头的候选，例如 "15-" 表示计算机与数学类
	IDPrefix string `json:"id_prefix,omitempty" yaml:"id_prefix"`

	// MinTagMatch 最少标签命中数，仅在设置了 AllowedTokens 时生效
	MinTagMatch int `json:"min_tag_match,omitempty" yaml:"min_tag_match"`

	// Expr 可选的 CEL 表达式，例如 `candidate.sim_score > 0.5 && "python" in candidate.tags`
	Expr string `json:"expr,omitempty" yaml:"expr"`

	// ExcludeSeen 剔除该用户已经曝光过的职业，需要编排层配置 SeenTracker
	ExcludeSeen bool `json:"exclude_seen,omitempty" yaml:"exclude_seen"`
}

// HasTokens 报告是否设置了标签过滤。
func (f RetrievalFilters) HasTokens() bool { return f.AllowedTokens != nil }

// NormalizedTokens 返回归一化后的允许 token 集合，每个条目对应一个 token。
func (f RetrievalFilters) NormalizedTokens() map[string]struct{} {
	if f.AllowedTokens == nil {
		return nil
	}
	return textnorm.TokenSet(f.AllowedTokens...)
}

// Validate 校验过滤条件本身。
func (f RetrievalFilters) Validate() error {
	if f.MinTagMatch < 0 {
		return NewValidationError(ModuleRecall, "min_tag_match must be >= 0, got %d", f.MinTagMatch)
	}
	return nil
}

// ReasonCode 描述结果为空或降级的原因，供调用方区分"没有匹配"和"系统降级"。
type ReasonCode string

const (
	ReasonOK                ReasonCode = "ok"
	ReasonNoMatchesInWindow ReasonCode = "no_matches_in_fetch_window"
	ReasonFiltersTooStrict  ReasonCode = "filters_too_strict"
	ReasonScorerFallback    ReasonCode = "scorer_unavailable_fallback"
)
