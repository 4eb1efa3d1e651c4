package filter

import (
	"context"
	"strings"

	"github.com/rushteam/careerkit/core"
)

// PrefixFilter 只保留 job_id 以 Prefix 开头的候选，例如 "15-" 表示计算机与数学类职业。
type PrefixFilter struct {
	Prefix string
}

func (f *PrefixFilter) Name() string { return "filter.id_prefix" }

func (f *PrefixFilter) ShouldFilter(_ context.Context, _ *core.UserProfile, sc *core.ScoredCandidate) (bool, error) {
	return !strings.HasPrefix(sc.JobID, f.Prefix), nil
}
