package feature

import (
	"fmt"

	"github.com/rushteam/careerkit/core"
)

// Block 是特征向量中的一个连续片段。
type Block string

const (
	BlockUserEmbedding      Block = "user_emb"
	BlockCandidateEmbedding Block = "cand_emb"
	BlockUserRIASEC         Block = "user_riasec"
	BlockUserBig5           Block = "user_big5"
	BlockCandidateCentroid  Block = "cand_centroid"
)

// blockOrder 是拼接顺序，必须与打分模型训练时一致。
var blockOrder = []Block{
	BlockUserEmbedding,
	BlockCandidateEmbedding,
	BlockUserRIASEC,
	BlockUserBig5,
	BlockCandidateCentroid,
}

// Span 是某个 Block 在特征向量中的半开区间 [Start, End)。
type Span struct {
	Start int
	End   int
}

// Layout 描述排序特征的拼接规则：
//
//	x = concat(user.embedding, cand.embedding,
//	           user.riasec ?? zeros(6), user.big5 ?? zeros(5), cand.trait_centroid ?? zeros(6))
//
// 只有可选的特质向量允许补零；embedding 维度不符一律返回 ValidationError，不截断也不补齐。
type Layout struct {
	EmbeddingDim int
	spans        map[Block]Span
	dim          int
}

// NewLayout 按 embedding 维度创建布局。
func NewLayout(embeddingDim int) *Layout {
	l := &Layout{EmbeddingDim: embeddingDim, spans: make(map[Block]Span, len(blockOrder))}
	off := 0
	for _, b := range blockOrder {
		n := l.blockDim(b)
		l.spans[b] = Span{Start: off, End: off + n}
		off += n
	}
	l.dim = off
	return l
}

func (l *Layout) blockDim(b Block) int {
	switch b {
	case BlockUserEmbedding, BlockCandidateEmbedding:
		return l.EmbeddingDim
	case BlockUserRIASEC, BlockCandidateCentroid:
		return core.RIASECDim
	case BlockUserBig5:
		return core.Big5Dim
	}
	return 0
}

// Dim 返回特征向量总维度 = 2·D + 17。
func (l *Layout) Dim() int { return l.dim }

// Span 返回某个 Block 的区间。
func (l *Layout) Span(b Block) Span { return l.spans[b] }

// Blocks 返回拼接顺序。
func (l *Layout) Blocks() []Block {
	out := make([]Block, len(blockOrder))
	copy(out, blockOrder)
	return out
}

// FeatureNames 返回每一维的名称（例如 user_emb_0、cand_centroid_5），用于模型元数据核对。
func (l *Layout) FeatureNames() []string {
	names := make([]string, 0, l.dim)
	for _, b := range blockOrder {
		for i := 0; i < l.blockDim(b); i++ {
			names = append(names, fmt.Sprintf("%s_%d", b, i))
		}
	}
	return names
}

// Build 拼接单个 (user, candidate) 的特征向量。
func (l *Layout) Build(p *core.UserProfile, c *core.Candidate) ([]float64, error) {
	x := make([]float64, l.dim)
	if err := l.fill(x, p, c); err != nil {
		return nil, err
	}
	return x, nil
}

// BuildBatch 为同一用户的全部候选构建特征矩阵，行序与 candidates 一致。
// 所有行共享一块底层数组，减少分配。
func (l *Layout) BuildBatch(p *core.UserProfile, candidates []*core.ScoredCandidate) ([][]float64, error) {
	if p == nil {
		return nil, core.NewValidationError(core.ModuleFeature, "profile is nil")
	}
	buf := make([]float64, l.dim*len(candidates))
	rows := make([][]float64, len(candidates))
	for i, sc := range candidates {
		if sc == nil || sc.Candidate == nil {
			return nil, core.NewValidationError(core.ModuleFeature, "candidate %d is nil", i)
		}
		row := buf[i*l.dim : (i+1)*l.dim : (i+1)*l.dim]
		if err := l.fill(row, p, sc.Candidate); err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func (l *Layout) fill(x []float64, p *core.UserProfile, c *core.Candidate) error {
	if p == nil || c == nil {
		return core.NewValidationError(core.ModuleFeature, "profile and candidate are required")
	}
	if err := l.put(x, BlockUserEmbedding, p.Embedding, false); err != nil {
		return err
	}
	if err := l.put(x, BlockCandidateEmbedding, c.Embedding, false); err != nil {
		return fmt.Errorf("candidate %s: %w", c.JobID, err)
	}
	if err := l.put(x, BlockUserRIASEC, p.RIASEC, true); err != nil {
		return err
	}
	if err := l.put(x, BlockUserBig5, p.Big5, true); err != nil {
		return err
	}
	if err := l.put(x, BlockCandidateCentroid, c.TraitCentroid, true); err != nil {
		return fmt.Errorf("candidate %s: %w", c.JobID, err)
	}
	return nil
}

// put 写入一个 Block；optional 的 Block 为 nil 时保持零值。
func (l *Layout) put(x []float64, b Block, v []float64, optional bool) error {
	span := l.spans[b]
	want := span.End - span.Start
	if v == nil && optional {
		return nil
	}
	if len(v) != want {
		return core.NewValidationError(core.ModuleFeature, "%s dimension mismatch: got %d, want %d", b, len(v), want)
	}
	copy(x[span.Start:span.End], v)
	return nil
}
