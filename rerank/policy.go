package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/utils"
)

// 内置策略名。
const (
	PolicyDeterministic = "deterministic"
	PolicyThompson      = "thompson"
	PolicyUCB           = "ucb"
)

// SelectionPolicy 是选择阶段的策略抽象：从排序后的候选里选出最终的 top_k，并给出 final_score。
//
// 约定：
//   - 返回长度为 min(topK, len(candidates))
//   - 每个 FinalItem 保留 rank/sim/hybrid/cf/trait 全部分数来源，final_score 可以与 rank_score 不同
//   - 不修改 candidates 的顺序
type SelectionPolicy interface {
	Name() string
	Select(ctx context.Context, candidates []*core.ScoredCandidate, topK int) ([]core.FinalItem, error)
}

// Select 是选择阶段入口：校验参数，policy 为 nil 时使用 Deterministic。
func Select(ctx context.Context, candidates []*core.ScoredCandidate, topK int, policy SelectionPolicy) ([]core.FinalItem, error) {
	if topK < 0 {
		return nil, core.NewValidationError(core.ModuleRerank, "top_k must be >= 0, got %d", topK)
	}
	if policy == nil {
		policy = Deterministic{}
	}
	live := make([]*core.ScoredCandidate, 0, len(candidates))
	for _, sc := range candidates {
		if sc != nil && sc.Candidate != nil {
			live = append(live, sc)
		}
	}
	if topK == 0 || len(live) == 0 {
		return []core.FinalItem{}, nil
	}
	items, err := policy.Select(ctx, live, topK)
	if err != nil {
		return nil, core.WrapStageError(core.StageSelection, err, func(cause error) *core.DomainError {
			return core.NewInternalError(core.StageSelection, core.ModuleRerank, "selection policy "+policy.Name()+" failed", cause)
		})
	}
	for _, sc := range live {
		sc.PutLabel("select_policy", utils.Label{Value: policy.Name(), Source: utils.SourceSelect})
	}
	return items, nil
}

// scored 是策略内部排序用的 (候选, final_score) 对。
type scored struct {
	sc    *core.ScoredCandidate
	final float64
}

// sortScored 按 final 降序排序；相同时依次按基准分降序、sim_score 降序、job_id 升序，保证全序。
func sortScored(list []scored) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.final != b.final {
			return a.final > b.final
		}
		if ab, bb := a.sc.BaseScore(), b.sc.BaseScore(); ab != bb {
			return ab > bb
		}
		if a.sc.SimScore != b.sc.SimScore {
			return a.sc.SimScore > b.sc.SimScore
		}
		return a.sc.JobID < b.sc.JobID
	})
}

// finalize 排序、截断并转换为 FinalItem。
func finalize(list []scored, topK int, policy string) []core.FinalItem {
	sortScored(list)
	if len(list) > topK {
		list = list[:topK]
	}
	out := make([]core.FinalItem, len(list))
	for i, s := range list {
		out[i] = core.NewFinalItem(s.sc, s.final, policy)
	}
	return out
}

// Deterministic 是默认策略：按 rank_score 降序（缺失时用 hybrid_score），final_score 即该基准分。
type Deterministic struct{}

func (Deterministic) Name() string { return PolicyDeterministic }

func (Deterministic) Select(_ context.Context, candidates []*core.ScoredCandidate, topK int) ([]core.FinalItem, error) {
	list := make([]scored, len(candidates))
	for i, sc := range candidates {
		list[i] = scored{sc: sc, final: sc.BaseScore()}
	}
	return finalize(list, topK, PolicyDeterministic), nil
}
