package filter

import (
	"context"
	"strconv"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/textnorm"
	"github.com/rushteam/careerkit/pkg/utils"
)

// TagFilter 计算候选标签与允许 token 的交集大小（tag_hits），并剔除命中数不足 MinMatch 的候选。
// Allowed 必须已经归一化（core.RetrievalFilters.NormalizedTokens）。
type TagFilter struct {
	Allowed  map[string]struct{}
	MinMatch int
}

func (f *TagFilter) Name() string { return "filter.tags" }

func (f *TagFilter) ShouldFilter(_ context.Context, _ *core.UserProfile, sc *core.ScoredCandidate) (bool, error) {
	sc.TagHits = textnorm.Intersect(sc.TagTokens, f.Allowed)
	sc.PutLabel("tag_hits", utils.Label{Value: strconv.Itoa(sc.TagHits), Source: utils.SourceRetrieval})
	return sc.TagHits < f.MinMatch, nil
}
