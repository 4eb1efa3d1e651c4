package filter

import (
	"context"
	"strings"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/utils"
)

// Result 是一次过滤的结果与各过滤器的剔除计数。
type Result struct {
	Kept    []*core.ScoredCandidate
	Removed map[string]int // 过滤器名 -> 剔除数
}

// Apply 依次用每个过滤器检查候选，任何一个返回 true 即剔除。
// 过滤器报错时整体返回错误，不会静默放行或静默丢弃。
func Apply(
	ctx context.Context,
	profile *core.UserProfile,
	filters []Filter,
	candidates []*core.ScoredCandidate,
) (*Result, error) {
	res := &Result{Removed: make(map[string]int, len(filters))}
	if len(filters) == 0 {
		res.Kept = candidates
		return res, nil
	}

	passed := filterNames(filters)
	res.Kept = make([]*core.ScoredCandidate, 0, len(candidates))
	for _, sc := range candidates {
		if sc == nil {
			continue
		}
		removedBy := ""
		for _, f := range filters {
			drop, err := f.ShouldFilter(ctx, profile, sc)
			if err != nil {
				return nil, err
			}
			if drop {
				removedBy = f.Name()
				break
			}
		}
		if removedBy != "" {
			res.Removed[removedBy]++
			continue
		}
		sc.PutLabel("filters_passed", utils.Label{Value: passed, Source: utils.SourceRetrieval})
		res.Kept = append(res.Kept, sc)
	}
	return res, nil
}

func filterNames(filters []Filter) string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = f.Name()
	}
	return strings.Join(names, ",")
}
