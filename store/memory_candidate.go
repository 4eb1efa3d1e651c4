package store

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/textnorm"
	"github.com/rushteam/careerkit/pkg/vecmath"
)

// MemoryCandidateStore 是内存实现的职业向量索引（精确暴力检索）。
//
// 特点：
//   - 构造时一次性加载并校验，之后只读，可被任意多个请求并发读取
//   - 余弦距离升序返回，距离相同按 job_id 升序，结果稳定
//   - 支持 job_id 前缀与 token 集合预过滤
//   - 适用于目录规模在十万以内的场景；更大规模可替换为 ANN 实现
type MemoryCandidateStore struct {
	dim        int
	candidates []*core.Candidate
	byID       map[string]*core.Candidate
	closed     atomic.Bool
}

// NewMemoryCandidateStore 校验并加载候选。dim 为 embedding 维度，<=0 时取第一条记录的维度。
// 重复 job_id、维度不一致或非单位向量都会返回 ValidationError。
func NewMemoryCandidateStore(dim int, candidates []*core.Candidate) (*MemoryCandidateStore, error) {
	if dim <= 0 && len(candidates) > 0 {
		dim = len(candidates[0].Embedding)
	}
	s := &MemoryCandidateStore{
		dim:        dim,
		candidates: make([]*core.Candidate, 0, len(candidates)),
		byID:       make(map[string]*core.Candidate, len(candidates)),
	}
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if _, dup := s.byID[c.JobID]; dup {
			return nil, core.NewValidationError(core.ModuleStore, "duplicate job id %s", c.JobID)
		}
		if err := c.Embedding.Validate(dim); err != nil {
			return nil, core.NewValidationError(core.ModuleStore, "candidate %s: %v", c.JobID, err)
		}
		if c.TraitCentroid != nil {
			if err := c.TraitCentroid.Validate(core.RIASECDim); err != nil {
				return nil, core.NewValidationError(core.ModuleStore, "candidate %s: %v", c.JobID, err)
			}
		}
		s.candidates = append(s.candidates, c)
		s.byID[c.JobID] = c
	}
	return s, nil
}

func (s *MemoryCandidateStore) Name() string { return "memory_candidate" }

// Dim 返回索引的 embedding 维度。
func (s *MemoryCandidateStore) Dim() int { return s.dim }

func (s *MemoryCandidateStore) Size(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.candidates), nil
}

func (s *MemoryCandidateStore) Get(ctx context.Context, jobID string) (*core.Candidate, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	c, ok := s.byID[jobID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound, "candidate not found: "+jobID)
	}
	return c, nil
}

// Query 实现 core.CandidateStore 接口
func (s *MemoryCandidateStore) Query(ctx context.Context, req *core.CandidateQuery) ([]core.CandidateHit, error) {
	if req == nil {
		return nil, core.NewValidationError(core.ModuleStore, "candidate query is nil")
	}
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	if len(req.Vector) != s.dim {
		return nil, core.NewValidationError(core.ModuleStore, "query dimension mismatch: got %d, want %d", len(req.Vector), s.dim)
	}
	if req.K <= 0 {
		return []core.CandidateHit{}, nil
	}

	hits := make([]core.CandidateHit, 0, len(s.candidates))
	for _, c := range s.candidates {
		if req.IDPrefix != "" && !strings.HasPrefix(c.JobID, req.IDPrefix) {
			continue
		}
		if req.AnyTokens != nil && textnorm.Intersect(c.TagTokens, req.AnyTokens) == 0 {
			continue
		}
		hits = append(hits, core.CandidateHit{
			Candidate: c,
			Distance:  vecmath.CosineDistance(req.Vector, c.Embedding),
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Candidate.JobID < hits[j].Candidate.JobID
	})
	if len(hits) > req.K {
		hits = hits[:req.K]
	}
	return hits, nil
}

// Close 实现 core.CandidateStore 接口；关闭后的查询返回 UNAVAILABLE。
func (s *MemoryCandidateStore) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *MemoryCandidateStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "candidate store is closed")
	}
	return ctx.Err()
}

var _ core.CandidateStore = (*MemoryCandidateStore)(nil)
