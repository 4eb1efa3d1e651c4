package core

import (
	"regexp"
	"strings"

	"github.com/rushteam/careerkit/pkg/textnorm"
	"github.com/rushteam/careerkit/pkg/utils"
)

// jobIDPattern 匹配 SOC / O*NET 职业代码的常见写法：
// "15-1252.00"、"15-1252"、"151252"、"15.1252"、"15_1252_01"。
var jobIDPattern = regexp.MustCompile(`^(\d{2})[-._ ]?(\d{4})(?:[-._ ]?(\d{2}))?$`)

// NormalizeJobID 把外部 ID 规范为 "NN-NNNN.NN"，缺省后缀为 ".00"。
// 这是唯一的 ID 规范化入口，在数据进入系统的边界调用。
func NormalizeJobID(raw string) (string, error) {
	m := jobIDPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return "", NewValidationError(ModuleStore, "invalid job id %q", raw)
	}
	suffix := m[3]
	if suffix == "" {
		suffix = "00"
	}
	return m[1] + "-" + m[2] + "." + suffix, nil
}

// Candidate 是职业目录中的一条记录，身份键为 JobID。
type Candidate struct {
	JobID         string
	Title         string
	Embedding     Embedding
	TagTokens     map[string]struct{} // 已归一化
	TraitCentroid TraitVector         // 可为 nil
}

// NewCandidate 在边界处构造候选：规范化 JobID，并把原始标签归一化为 token 集合。
func NewCandidate(rawID, title string, emb Embedding, tags []string, centroid TraitVector) (*Candidate, error) {
	id, err := NormalizeJobID(rawID)
	if err != nil {
		return nil, err
	}
	return &Candidate{
		JobID:         id,
		Title:         title,
		Embedding:     emb,
		TagTokens:     textnorm.Set(tags...),
		TraitCentroid: centroid,
	}, nil
}

// Equal 按 JobID 判断身份。
func (c *Candidate) Equal(o *Candidate) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.JobID == o.JobID
}

// ScoredCandidate 是检索、排序、选择三阶段之间传递的候选。
// 指针字段为 nil 表示该分数未计算，与 0 区分。
type ScoredCandidate struct {
	*Candidate

	SimScore    float64  // 余弦相似度
	TagHits     int      // 与 allowed_tokens 的交集大小
	TraitSim    *float64 // 特质相似度（两侧都有特质向量时）
	HybridScore float64

	RankScore  *float64 // 排序阶段填充，(0,1)
	CFScore    *float64 // 打分器可分解时填充
	TraitScore *float64 // 打分器可分解时填充

	// Labels 记录各阶段的来源与解释信息
	Labels map[string]utils.Label
}

// NewScoredCandidate 以检索相似度初始化。
func NewScoredCandidate(c *Candidate, sim float64) *ScoredCandidate {
	return &ScoredCandidate{
		Candidate: c,
		SimScore:  sim,
		Labels:    make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (sc *ScoredCandidate) PutLabel(key string, lbl utils.Label) {
	if sc.Labels == nil {
		sc.Labels = make(map[string]utils.Label)
	}
	if old, ok := sc.Labels[key]; ok {
		sc.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	sc.Labels[key] = lbl
}

// BaseScore 返回选择阶段的基准分：有 RankScore 用 RankScore，否则回退到 HybridScore。
func (sc *ScoredCandidate) BaseScore() float64 {
	if sc.RankScore != nil {
		return *sc.RankScore
	}
	return sc.HybridScore
}

// FinalItem 是 Pipeline 的最终输出项。
// 可选的分数来源字段在未计算时为 nil（JSON 中省略），不会被写成 0。
type FinalItem struct {
	JobID       string   `json:"job_id"`
	Title       string   `json:"title,omitempty"`
	FinalScore  float64  `json:"final_score"`
	RankScore   *float64 `json:"rank_score,omitempty"`
	SimScore    float64  `json:"sim_score"`
	HybridScore float64  `json:"hybrid_score"`
	CFScore     *float64 `json:"cf_score,omitempty"`
	TraitScore  *float64 `json:"trait_score,omitempty"`
	Policy      string   `json:"policy"`
}

// NewFinalItem 从候选复制全部分数来源，final_score 由调用方给出。
func NewFinalItem(sc *ScoredCandidate, finalScore float64, policy string) FinalItem {
	return FinalItem{
		JobID:       sc.JobID,
		Title:       sc.Title,
		FinalScore:  finalScore,
		RankScore:   copyFloat(sc.RankScore),
		SimScore:    sc.SimScore,
		HybridScore: sc.HybridScore,
		CFScore:     copyFloat(sc.CFScore),
		TraitScore:  copyFloat(sc.TraitScore),
		Policy:      policy,
	}
}

// Float 返回指向 v 的指针，用于填充可选分数。
func Float(v float64) *float64 { return &v }

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
