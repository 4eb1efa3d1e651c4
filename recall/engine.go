package recall

import (
	"context"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/filter"
	"github.com/rushteam/careerkit/pkg/logging"
	"github.com/rushteam/careerkit/pkg/utils"
)

// Config 是检索阶段的配置。
type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`

	// RenormalizeMissingTrait 为 true 时，缺少特质项的候选按比例放大 Alpha、Beta。
	// 默认 false：缺失的特质项直接记 0。
	RenormalizeMissingTrait bool `yaml:"renormalize_missing_trait" json:"renormalize_missing_trait"`

	// OverfetchFactor 与 MinFetch 决定 fetch_k = max(top_k·OverfetchFactor, MinFetch)
	OverfetchFactor int `yaml:"overfetch_factor" json:"overfetch_factor" validate:"gte=1"`
	MinFetch        int `yaml:"min_fetch" json:"min_fetch" validate:"gte=1"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		OverfetchFactor: 5,
		MinFetch:        100,
	}
}

// Result 是一次检索的输出。
type Result struct {
	Candidates []*core.ScoredCandidate
	Reason     core.ReasonCode
	Fetched    int            // 从索引取回的候选数
	Removed    map[string]int // 各过滤器剔除数
}

// Engine 是检索阶段：向量召回 → 符号过滤 → 混合打分 → 排序截断。
// 只读访问 CandidateStore，可被并发调用。
type Engine struct {
	store  core.CandidateStore
	cfg    Config
	seen   filter.SeenTracker
	logger *zap.Logger
}

// NewEngine 创建检索引擎；logger 为 nil 时使用 no-op。
func NewEngine(store core.CandidateStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.OverfetchFactor <= 0 {
		cfg.OverfetchFactor = 5
	}
	if cfg.MinFetch <= 0 {
		cfg.MinFetch = 100
	}
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logging.WithFields(logger, zap.String(logging.FieldStage, string(core.StageRetrieval))),
	}
}

func (e *Engine) Name() string { return "recall.hybrid" }

// SetSeenTracker 启用 RetrievalFilters.ExcludeSeen；需在开始服务前调用。
func (e *Engine) SetSeenTracker(t filter.SeenTracker) { e.seen = t }

// FetchK 计算过取数量：max(topK·factor, minFetch)，并以目录大小为上限。
func (e *Engine) FetchK(topK, storeSize int) int {
	k := topK * e.cfg.OverfetchFactor
	if k < e.cfg.MinFetch {
		k = e.cfg.MinFetch
	}
	if k > storeSize {
		k = storeSize
	}
	return k
}

// Retrieve 为用户画像返回过滤、打分、排序后的前 topK 个候选。
//
// 结果为空不是错误：Reason 为 no_matches_in_fetch_window（索引没有返回任何候选）
// 或 filters_too_strict（过滤条件剔除了全部候选）。
// 索引不可用返回 RetrievalUnavailable，截止时间到达返回 Timeout(retrieval)。
func (e *Engine) Retrieve(
	ctx context.Context,
	profile *core.UserProfile,
	topK int,
	filters core.RetrievalFilters,
) (*Result, error) {
	if topK < 0 {
		return nil, core.NewValidationError(core.ModuleRecall, "top_k must be >= 0, got %d", topK)
	}
	if profile == nil || len(profile.Embedding) == 0 {
		return nil, core.NewValidationError(core.ModuleRecall, "profile embedding is required")
	}
	chain, err := filter.Build(filters, e.seen)
	if err != nil {
		return nil, err
	}
	if topK == 0 {
		return &Result{Candidates: []*core.ScoredCandidate{}, Reason: core.ReasonOK}, nil
	}

	size, err := e.store.Size(ctx)
	if err != nil {
		return nil, core.WrapStageError(core.StageRetrieval, err, core.NewRetrievalUnavailable)
	}
	fetchK := e.FetchK(topK, size)
	if fetchK == 0 {
		return e.empty(core.ReasonNoMatchesInWindow, 0, nil), nil
	}

	query := PreFilter(filters)
	query.Vector, query.K = profile.Embedding, fetchK
	hits, err := e.store.Query(ctx, query)
	if err != nil {
		return nil, core.WrapStageError(core.StageRetrieval, err, core.NewRetrievalUnavailable)
	}

	slate := make([]*core.ScoredCandidate, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if h.Candidate == nil {
			continue
		}
		if _, dup := seen[h.Candidate.JobID]; dup {
			continue
		}
		seen[h.Candidate.JobID] = struct{}{}
		sc := core.NewScoredCandidate(h.Candidate, 1-h.Distance)
		sc.PutLabel("recall_source", utils.Label{Value: e.store.Name(), Source: utils.SourceRetrieval})
		slate = append(slate, sc)
	}
	if len(slate) == 0 {
		if query.IDPrefix != "" || query.AnyTokens != nil {
			return e.empty(core.ReasonFiltersTooStrict, 0, nil), nil
		}
		return e.empty(core.ReasonNoMatchesInWindow, 0, nil), nil
	}

	filtered, err := filter.Apply(ctx, profile, chain, slate)
	if err != nil {
		return nil, err
	}
	if len(filtered.Kept) == 0 {
		return e.empty(core.ReasonFiltersTooStrict, len(slate), filtered.Removed), nil
	}
	// 指定了允许标签却没有任何候选命中，视为过滤过严
	if filters.HasTokens() && maxTagHits(filtered.Kept) == 0 {
		return e.empty(core.ReasonFiltersTooStrict, len(slate), filtered.Removed), nil
	}

	e.score(profile, filtered.Kept)
	Sort(filtered.Kept)

	out := filtered.Kept
	if len(out) > topK {
		out = out[:topK]
	}
	return &Result{
		Candidates: out,
		Reason:     core.ReasonOK,
		Fetched:    len(slate),
		Removed:    filtered.Removed,
	}, nil
}

// PreFilter 把可以下推到索引的过滤条件转换为 CandidateQuery。
// 下推只缩小检索范围，最终以检索后的过滤链为准；token 仅在 MinTagMatch > 0 时下推，
// 否则未命中标签的候选仍然有效。
func PreFilter(filters core.RetrievalFilters) *core.CandidateQuery {
	q := &core.CandidateQuery{IDPrefix: filters.IDPrefix}
	if filters.HasTokens() && filters.MinTagMatch > 0 {
		q.AnyTokens = filters.NormalizedTokens()
	}
	return q
}

func maxTagHits(slate []*core.ScoredCandidate) int {
	n := 0
	for _, sc := range slate {
		if sc.TagHits > n {
			n = sc.TagHits
		}
	}
	return n
}

// score 计算 slate 内每个候选的 trait_sim 与 hybrid_score。
func (e *Engine) score(profile *core.UserProfile, slate []*core.ScoredCandidate) {
	maxHits := maxTagHits(slate)
	for _, sc := range slate {
		sc.TraitSim = TraitSimilarity(profile.RIASEC, sc.TraitCentroid)
		sc.HybridScore = e.cfg.Weights.Score(HybridInput{
			Sim:        sc.SimScore,
			TagHits:    sc.TagHits,
			MaxTagHits: maxHits,
			TraitSim:   sc.TraitSim,
		}, e.cfg.RenormalizeMissingTrait)
		sc.PutLabel("hybrid_score", utils.Label{
			Value:  strconv.FormatFloat(sc.HybridScore, 'f', 4, 64),
			Source: utils.SourceRetrieval,
		})
	}
}

func (e *Engine) empty(reason core.ReasonCode, fetched int, removed map[string]int) *Result {
	e.logger.Debug("empty retrieval slate",
		zap.String(logging.FieldReason, string(reason)),
		zap.Int("fetched", fetched),
		zap.Any("removed", removed),
	)
	return &Result{
		Candidates: []*core.ScoredCandidate{},
		Reason:     reason,
		Fetched:    fetched,
		Removed:    removed,
	}
}

// Sort 按 hybrid_score 降序、sim_score 降序、job_id 升序排序，保证全序。
func Sort(cands []*core.ScoredCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.HybridScore != b.HybridScore {
			return a.HybridScore > b.HybridScore
		}
		if a.SimScore != b.SimScore {
			return a.SimScore > b.SimScore
		}
		return a.JobID < b.JobID
	})
}
