// Package pipeline 编排一次推荐请求：画像 → 检索 → 排序 → 选择。
//
// 每个阶段有独立超时；检索的瞬时失败按指数退避重试；打分器不可用时显式降级为按 hybrid_score 排序，
// 并在响应中标记 Degraded。空结果总是带 reason，调用方可以区分"没有匹配"、"降级"和"失败"。
package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feature"
	"github.com/rushteam/careerkit/filter"
	"github.com/rushteam/careerkit/metrics"
	"github.com/rushteam/careerkit/pkg/logging"
	"github.com/rushteam/careerkit/rank"
	"github.com/rushteam/careerkit/recall"
	"github.com/rushteam/careerkit/rerank"
)

// Response 是一次推荐的结果。
type Response struct {
	RequestID string           `json:"request_id"`
	Items     []core.FinalItem `json:"items"`
	Reason    core.ReasonCode  `json:"reason"`
	Degraded  bool             `json:"degraded"`
}

// Orchestrator 是推荐链路的入口，构造一次后可被并发调用。
type Orchestrator struct {
	pctx      *core.PipelineContext
	cfg       Config
	retrieval *recall.Engine
	ranking   *rank.Engine
	policy    rerank.SelectionPolicy
	seen      filter.SeenTracker
	logger    *zap.Logger
}

// Option 是 Orchestrator 的配置选项
type Option func(*Orchestrator)

// WithPolicy 设置选择策略，默认 Deterministic
func WithPolicy(p rerank.SelectionPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithSeenTracker 记录用户看过的职业，供 RetrievalFilters.ExcludeSeen 使用
func WithSeenTracker(t filter.SeenTracker) Option {
	return func(o *Orchestrator) { o.seen = t }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// New 创建编排器。pctx 持有的资源由调用方负责 Close。
func New(pctx *core.PipelineContext, cfg Config, opts ...Option) (*Orchestrator, error) {
	if pctx == nil {
		return nil, core.NewValidationError(core.ModulePipeline, "pipeline context is required")
	}
	if cfg.EmbeddingDim <= 0 {
		return nil, core.NewValidationError(core.ModulePipeline, "embedding_dim must be > 0")
	}
	o := &Orchestrator{pctx: pctx, cfg: cfg, policy: rerank.Deterministic{}}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.WithFields(o.logger)
	o.retrieval = recall.NewEngine(pctx.Store, cfg.Retrieval, o.logger)
	if o.seen != nil {
		o.retrieval.SetSeenTracker(o.seen)
	}
	o.ranking = rank.NewEngine(pctx.Scorer, feature.NewLayout(cfg.EmbeddingDim), o.logger)
	return o, nil
}

// Policy 返回当前选择策略。
func (o *Orchestrator) Policy() rerank.SelectionPolicy { return o.policy }

// Recommend 为用户返回至多 topK 个职业。
//
//   - topK < 0：ValidationError；topK = 0：空结果，reason 为 ok
//   - 用户不存在：ProfileNotFound
//   - 检索失败（重试后）：RetrievalUnavailable 或 Timeout(retrieval)
//   - 检索为空：Items 为空，Reason 说明原因，err 为 nil
//   - 打分器不可用或超时：降级为 hybrid 排序，Degraded = true
//   - ValidationError 从不重试，直接返回
func (o *Orchestrator) Recommend(
	ctx context.Context,
	userID string,
	topK int,
	filters core.RetrievalFilters,
) (resp *Response, err error) {
	reqID := logging.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = logging.NewRequestID()
		ctx = logging.ContextWithRequestID(ctx, reqID)
	}
	log := logging.ForContext(ctx, o.logger).With(zap.String(logging.FieldUserID, userID))

	resp = &Response{RequestID: reqID, Items: []core.FinalItem{}, Reason: core.ReasonOK}
	defer func() {
		metrics.RecordRequest(resp.Reason, err)
		if err != nil {
			log.Warn("recommend failed", zap.Error(err))
			resp = nil
		}
	}()

	if topK < 0 {
		return resp, core.NewValidationError(core.ModulePipeline, "top_k must be >= 0, got %d", topK)
	}
	if topK == 0 {
		return resp, nil
	}

	// 1. 画像
	profile, err := o.profile(ctx, userID)
	if err != nil {
		return resp, err
	}

	// 2. 检索
	retrieved, err := o.retrieve(ctx, log, profile, topK, filters)
	if err != nil {
		return resp, err
	}
	if len(retrieved.Candidates) == 0 {
		resp.Reason = retrieved.Reason
		metrics.RecordEmpty(retrieved.Reason)
		log.Info("empty recommendation", zap.String(logging.FieldReason, string(retrieved.Reason)))
		return resp, nil
	}

	// 3. 排序
	ranked, err := o.rank(ctx, profile, retrieved.Candidates)
	if err != nil {
		if !core.IsScorerUnavailable(err) && !core.IsTimeout(err, core.StageRanking) {
			return resp, err
		}
		log.Warn("scorer unavailable, falling back to hybrid score",
			zap.String(logging.FieldScorer, o.pctx.Scorer.Name()),
			zap.Int("candidates", len(retrieved.Candidates)),
			zap.Error(err),
		)
		metrics.RecordDegraded(err)
		ranked = rank.ByHybrid(retrieved.Candidates)
		resp.Degraded = true
		resp.Reason = core.ReasonScorerFallback
	}

	// 4. 选择
	items, err := o.selectItems(ctx, ranked, topK)
	if err != nil {
		return resp, err
	}
	resp.Items = items
	log.Debug("recommend done",
		zap.Int("items", len(items)),
		zap.String(logging.FieldPolicy, o.policy.Name()),
		zap.Bool("degraded", resp.Degraded),
	)
	return resp, nil
}

func (o *Orchestrator) profile(ctx context.Context, userID string) (p *core.UserProfile, err error) {
	defer observe(core.StageProfile, time.Now(), &err)
	sctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Profile)
	defer cancel()

	p, err = o.pctx.Profiles.GetUserProfile(sctx, userID)
	if err != nil {
		return nil, core.WrapStageError(core.StageProfile, err, func(cause error) *core.DomainError {
			return core.NewInternalError(core.StageProfile, core.ModuleProfile, "profile provider "+o.pctx.Profiles.Name()+" failed", cause)
		})
	}
	if p == nil {
		return nil, core.NewProfileNotFound(userID)
	}
	if err = p.Validate(o.cfg.EmbeddingDim); err != nil {
		return nil, err
	}
	return p, nil
}

// retrieve 调用检索阶段；RetrievalUnavailable 与检索超时按指数退避重试，其余错误立即返回。
func (o *Orchestrator) retrieve(
	ctx context.Context,
	log *zap.Logger,
	profile *core.UserProfile,
	topK int,
	filters core.RetrievalFilters,
) (res *recall.Result, err error) {
	defer observe(core.StageRetrieval, time.Now(), &err)

	attempt := 0
	op := func() error {
		attempt++
		sctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Retrieval)
		defer cancel()
		r, rerr := o.retrieval.Retrieve(sctx, profile, topK, filters)
		if rerr == nil {
			res = r
			return nil
		}
		if core.IsRetrievalUnavailable(rerr) || core.IsTimeout(rerr, core.StageRetrieval) {
			return rerr
		}
		return backoff.Permanent(rerr)
	}
	notify := func(rerr error, wait time.Duration) {
		metrics.RecordRetrievalRetry()
		log.Warn("retrieval failed, retrying",
			zap.Int(logging.FieldAttempt, attempt),
			zap.Duration("backoff", wait),
			zap.Error(rerr),
		)
	}
	if err = backoff.RetryNotify(op, backoff.WithContext(o.cfg.Retry.backOff(), ctx), notify); err != nil {
		return nil, core.WrapStageError(core.StageRetrieval, err, core.NewRetrievalUnavailable)
	}
	return res, nil
}

func (o *Orchestrator) rank(ctx context.Context, profile *core.UserProfile, cands []*core.ScoredCandidate) (out []*core.ScoredCandidate, err error) {
	defer observe(core.StageRanking, time.Now(), &err)
	sctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Ranking)
	defer cancel()
	return o.ranking.Rank(sctx, profile, cands)
}

func (o *Orchestrator) selectItems(ctx context.Context, cands []*core.ScoredCandidate, topK int) (items []core.FinalItem, err error) {
	defer observe(core.StageSelection, time.Now(), &err)
	sctx, cancel := withTimeout(ctx, o.cfg.Timeouts.Selection)
	defer cancel()
	return rerank.Select(sctx, cands, topK, o.policy)
}

// RecordOutcome 写入一次曝光/点击反馈，返回是否为新事件（重复事件返回 false）。
func (o *Orchestrator) RecordOutcome(ctx context.Context, outcome core.Outcome) (recorded bool, err error) {
	defer func() { metrics.RecordOutcome(recorded, err) }()
	if o.pctx.Outcomes == nil {
		return false, core.NewInternalError(core.StageFeedback, core.ModulePipeline, "no outcome store configured", nil)
	}
	outcome, err = outcome.Validate()
	if err != nil {
		return false, err
	}
	recorded, err = o.pctx.Outcomes.Record(ctx, outcome)
	if err != nil {
		return false, core.WrapStageError(core.StageFeedback, err, func(cause error) *core.DomainError {
			return core.NewInternalError(core.StageFeedback, core.ModuleStore, "record outcome failed", cause)
		})
	}
	if o.seen != nil && outcome.Shown && outcome.UserID != "" {
		o.seen.MarkSeen(outcome.UserID, outcome.JobID)
	}
	return recorded, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func observe(stage core.Stage, start time.Time, err *error) {
	metrics.RecordStage(stage, time.Since(start), *err)
}
