package filter

import (
	"context"

	"github.com/rushteam/careerkit/core"
)

// Filter 是检索阶段的过滤器抽象，判断一个候选是否应该被过滤掉。
// 返回 true 表示应该过滤（移除），false 表示保留。
// 过滤器可以在候选上写入中间结果（例如 TagFilter 写入 TagHits），候选是请求级对象。
type Filter interface {
	// Name 返回过滤器名称
	Name() string

	// ShouldFilter 判断候选是否应该被过滤
	ShouldFilter(ctx context.Context, profile *core.UserProfile, sc *core.ScoredCandidate) (bool, error)
}

// Build 根据检索条件构造过滤器链，顺序为：已看过 → 前缀 → 标签 → 表达式。
// 设置了 ExcludeSeen 时 seen 不能为 nil。
func Build(f core.RetrievalFilters, seen SeenTracker) ([]Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []Filter
	if f.ExcludeSeen {
		if seen == nil {
			return nil, core.NewValidationError(core.ModuleRecall, "exclude_seen requires a seen tracker")
		}
		out = append(out, &SeenFilter{Tracker: seen})
	}
	if f.IDPrefix != "" {
		out = append(out, &PrefixFilter{Prefix: f.IDPrefix})
	}
	if f.HasTokens() {
		out = append(out, &TagFilter{Allowed: f.NormalizedTokens(), MinMatch: f.MinTagMatch})
	}
	if f.Expr != "" {
		ef, err := NewExprFilter(f.Expr)
		if err != nil {
			return nil, err
		}
		out = append(out, ef)
	}
	return out, nil
}
