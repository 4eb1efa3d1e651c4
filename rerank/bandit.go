package rerank

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/logging"
)

// Thompson 是 Beta-Bernoulli Thompson Sampling 策略。
//
// 每个职业的点击率后验为 Beta(PriorAlpha + clicks, PriorBeta + shown - clicks)，
// 从后验抽样得到 θ，最终分数：
//
//	final = (1 - Weight)·base + Weight·θ
//
// base 为 rank_score（缺失时为 hybrid_score）。Weight 为 0 时退化为 Deterministic 的排序。
//
// 随机数：Seed 非 0 时，由 Seed 与请求 ID（logging.ContextWithRequestID）派生，
// 同一 Seed 同一请求的结果可复现；Seed 为 0 时每次调用使用新的随机种子。
type Thompson struct {
	Outcomes   core.OutcomeStore
	PriorAlpha float64
	PriorBeta  float64
	Weight     float64
	Seed       uint64
	Logger     *zap.Logger
}

// NewThompson 使用默认参数：Beta(1,1) 先验，探索权重 0.3。
func NewThompson(outcomes core.OutcomeStore, seed uint64, logger *zap.Logger) *Thompson {
	return &Thompson{
		Outcomes:   outcomes,
		PriorAlpha: 1,
		PriorBeta:  1,
		Weight:     0.3,
		Seed:       seed,
		Logger:     logger,
	}
}

func (p *Thompson) Name() string { return PolicyThompson }

func (p *Thompson) Select(ctx context.Context, candidates []*core.ScoredCandidate, topK int) ([]core.FinalItem, error) {
	stats := loadStats(ctx, p.Outcomes, candidates, p.Logger)
	rng := newRand(ctx, p.Seed)
	a0, b0 := positive(p.PriorAlpha, 1), positive(p.PriorBeta, 1)
	w := clamp01(p.Weight)

	list := make([]scored, len(candidates))
	for i, sc := range candidates {
		st := stats[sc.JobID]
		misses := st.Shown - st.Clicks
		if misses < 0 {
			misses = 0
		}
		theta := sampleBeta(rng, a0+float64(st.Clicks), b0+float64(misses))
		list[i] = scored{sc: sc, final: (1-w)*sc.BaseScore() + w*theta}
	}
	return finalize(list, topK, PolicyThompson), nil
}

// UCB 是 UCB1 风格的策略：
//
//	final = base + C·sqrt(ln(N+1) / (n_j+1))
//
// n_j 为该职业的曝光数，N 为本次候选集合的总曝光数。曝光越少加成越大。
type UCB struct {
	Outcomes core.OutcomeStore
	C        float64
	Logger   *zap.Logger
}

// NewUCB 创建 UCB 策略；c <= 0 时使用 0.1。
func NewUCB(outcomes core.OutcomeStore, c float64, logger *zap.Logger) *UCB {
	if c <= 0 {
		c = 0.1
	}
	return &UCB{Outcomes: outcomes, C: c, Logger: logger}
}

func (p *UCB) Name() string { return PolicyUCB }

func (p *UCB) Select(ctx context.Context, candidates []*core.ScoredCandidate, topK int) ([]core.FinalItem, error) {
	stats := loadStats(ctx, p.Outcomes, candidates, p.Logger)
	var total int64
	for _, sc := range candidates {
		total += stats[sc.JobID].Shown
	}
	logN := math.Log(float64(total) + 1)

	list := make([]scored, len(candidates))
	for i, sc := range candidates {
		n := float64(stats[sc.JobID].Shown)
		bonus := p.C * math.Sqrt(logN/(n+1))
		list[i] = scored{sc: sc, final: sc.BaseScore() + bonus}
	}
	return finalize(list, topK, PolicyUCB), nil
}

// loadStats 读取候选的曝光/点击统计。
// 统计不可用时按无历史处理（只用先验），不影响推荐本身。
func loadStats(ctx context.Context, store core.OutcomeStore, candidates []*core.ScoredCandidate, logger *zap.Logger) map[string]core.ArmStats {
	if store == nil {
		return map[string]core.ArmStats{}
	}
	ids := make([]string, len(candidates))
	for i, sc := range candidates {
		ids[i] = sc.JobID
	}
	stats, err := store.Stats(ctx, ids)
	if err != nil {
		logging.ForContext(ctx, logger).Warn("outcome stats unavailable, using priors",
			zap.String(logging.FieldStore, store.Name()),
			zap.Error(err),
		)
		return map[string]core.ArmStats{}
	}
	return stats
}

// newRand 派生本次调用的随机源。
func newRand(ctx context.Context, seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(logging.RequestIDFromContext(ctx)))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

// sampleBeta 通过两个 Gamma 抽样得到 Beta(a, b)。
func sampleBeta(rng *rand.Rand, a, b float64) float64 {
	x := sampleGamma(rng, a)
	y := sampleGamma(rng, b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma 是 Marsaglia-Tsang 方法，shape < 1 时用 Gamma(shape+1)·U^(1/shape) 提升。
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}
	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}

func positive(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
