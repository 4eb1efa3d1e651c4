package rerank

import (
	"context"

	"github.com/rushteam/careerkit/core"
)

// Diversity 包装另一个选择策略，限制同一职业大类在结果中的条数。
//
// 大类取 job_id 的前两位（O*NET-SOC 的 major group，如 "15-1252.00" → "15"）。
// 先按内层策略给出完整顺序，再逐个放入未超额的条目；不足 topK 时按原顺序回填被跳过的条目，
// 因此返回长度仍为 min(topK, len(candidates))。
type Diversity struct {
	Inner SelectionPolicy
	// MaxPerGroup <= 0 时不做限制
	MaxPerGroup int
}

// NewDiversity 创建多样性包装；inner 为 nil 时使用 Deterministic。
func NewDiversity(inner SelectionPolicy, maxPerGroup int) *Diversity {
	if inner == nil {
		inner = Deterministic{}
	}
	return &Diversity{Inner: inner, MaxPerGroup: maxPerGroup}
}

// Name 返回内层策略名，final_score 的语义由内层决定。
func (d *Diversity) Name() string { return d.Inner.Name() }

func (d *Diversity) Select(ctx context.Context, candidates []*core.ScoredCandidate, topK int) ([]core.FinalItem, error) {
	if d.MaxPerGroup <= 0 {
		return d.Inner.Select(ctx, candidates, topK)
	}
	ordered, err := d.Inner.Select(ctx, candidates, len(candidates))
	if err != nil {
		return nil, err
	}
	if topK > len(ordered) {
		topK = len(ordered)
	}

	counts := make(map[string]int, 16)
	out := make([]core.FinalItem, 0, topK)
	var skipped []core.FinalItem
	for _, it := range ordered {
		if len(out) == topK {
			break
		}
		g := majorGroup(it.JobID)
		if counts[g] >= d.MaxPerGroup {
			skipped = append(skipped, it)
			continue
		}
		counts[g]++
		out = append(out, it)
	}
	for _, it := range skipped {
		if len(out) == topK {
			break
		}
		out = append(out, it)
	}
	return out, nil
}

func majorGroup(jobID string) string {
	if len(jobID) < 2 {
		return jobID
	}
	return jobID[:2]
}
