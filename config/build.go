package config

import (
	"context"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feast"
	"github.com/rushteam/careerkit/feature"
	"github.com/rushteam/careerkit/feedback"
	"github.com/rushteam/careerkit/filter"
	"github.com/rushteam/careerkit/model"
	"github.com/rushteam/careerkit/pipeline"
	"github.com/rushteam/careerkit/pkg/logging"
	"github.com/rushteam/careerkit/service"
	"github.com/rushteam/careerkit/store"
	"github.com/rushteam/careerkit/vector"
)

// App 是按配置组装好的推荐服务，进程退出时调用 Close。
type App struct {
	Config       *Config
	Context      *core.PipelineContext
	Orchestrator *pipeline.Orchestrator
	Logger       *zap.Logger
}

// Close 释放 PipelineContext 持有的全部资源。
func (a *App) Close() error { return a.Context.Close() }

// Build 按配置并发加载目录、画像、打分器与反馈存储，再组装编排器。
// 任一资源加载失败时，已加载的资源会被释放。
func Build(ctx context.Context, cfg *Config, logger *zap.Logger) (*App, error) {
	logger = logging.WithFields(logger)
	var (
		cands    core.CandidateStore
		profiles core.ProfileProvider
		scorer   core.Scorer
		outcomes core.OutcomeStore
	)

	closeAll := func() {
		for _, c := range []io.Closer{cands, profiles, scorer, outcomes} {
			if c != nil {
				_ = c.Close()
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cands, err = buildCandidates(gctx, cfg, logger)
		return err
	})
	g.Go(func() (err error) {
		profiles, err = buildProfiles(cfg, logger)
		return err
	})
	g.Go(func() (err error) {
		scorer, err = buildScorer(cfg, logger)
		return err
	})
	g.Go(func() (err error) {
		outcomes, err = buildOutcomes(gctx, cfg, logger)
		return err
	})
	if err := g.Wait(); err != nil {
		closeAll()
		return nil, err
	}

	if want := feature.NewLayout(cfg.EmbeddingDim).Dim(); scorer.InputDim() > 0 && scorer.InputDim() != want {
		closeAll()
		return nil, core.NewValidationError(core.ModuleRank,
			"scorer %s expects %d features, embedding_dim %d produces %d", scorer.Name(), scorer.InputDim(), cfg.EmbeddingDim, want)
	}

	pctx, err := core.NewPipelineContext(profiles, cands, scorer, outcomes)
	if err != nil {
		closeAll()
		return nil, err
	}
	policy, err := BuildPolicy(cfg.Selection, PolicyDeps{Outcomes: outcomes, Logger: logger})
	if err != nil {
		_ = pctx.Close()
		return nil, err
	}
	opts := []pipeline.Option{pipeline.WithPolicy(policy), pipeline.WithLogger(logger)}
	if cfg.Seen.Enabled {
		opts = append(opts, pipeline.WithSeenTracker(
			filter.NewBloomSeenTracker(cfg.Seen.Capacity, cfg.Seen.FalsePositiveRate, cfg.Seen.MaxUsers)))
	}
	orch, err := pipeline.New(pctx, cfg.Pipeline, opts...)
	if err != nil {
		_ = pctx.Close()
		return nil, err
	}

	size, _ := cands.Size(ctx)
	logger.Info("careerkit ready",
		zap.Int("candidates", size),
		zap.String(logging.FieldStore, cands.Name()),
		zap.String("profiles", profiles.Name()),
		zap.String(logging.FieldScorer, scorer.Name()),
		zap.String(logging.FieldPolicy, policy.Name()),
	)
	return &App{Config: cfg, Context: pctx, Orchestrator: orch, Logger: logger}, nil
}

func buildCandidates(ctx context.Context, cfg *Config, logger *zap.Logger) (core.CandidateStore, error) {
	if cfg.Catalog.Source != CatalogMilvus {
		s, err := store.LoadCatalogFile(cfg.Catalog.Path, cfg.EmbeddingDim)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	mc := cfg.Catalog.Milvus
	client, err := vector.Dial(ctx, mc.DialConfig)
	if err != nil {
		return nil, core.NewRetrievalUnavailable(err)
	}
	s, err := vector.NewMilvusCandidateStore(client, mc.Collection, cfg.EmbeddingDim,
		vector.WithFields(mc.Fields), vector.WithLogger(logger))
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return s, nil
}

func buildProfiles(cfg *Config, logger *zap.Logger) (core.ProfileProvider, error) {
	var p core.ProfileProvider
	switch cfg.Profiles.Source {
	case ProfilesFeast:
		fc := cfg.Profiles.Feast
		client, err := feast.Dial(fc.DialConfig)
		if err != nil {
			return nil, err
		}
		p = feast.NewProfileProvider(feast.FromClient(client), fc.Project, fc.Features, logger,
			feast.WithCloser(feast.ClientCloser(client)))
	default:
		mp, err := store.LoadProfilesFile(cfg.Profiles.Path)
		if err != nil {
			return nil, err
		}
		p = mp
	}
	if cfg.Profiles.CacheTTL > 0 {
		p = store.NewCachingProfileProvider(p, cfg.Profiles.CacheTTL,
			store.WithMaxEntries(cfg.Profiles.CacheSize),
			store.WithFetchTimeout(cfg.Profiles.FetchTimeout))
	}
	return p, nil
}

func buildScorer(cfg *Config, logger *zap.Logger) (core.Scorer, error) {
	if cfg.Scorer.Kind != ScorerRemote {
		return model.LoadFile(cfg.Scorer.ModelPath)
	}
	rc := cfg.Scorer.Remote
	opts := []service.Option{
		service.WithProtocol(rc.Protocol),
		service.WithV2Tensors(rc.InputTensor, rc.OutputTensor),
		service.WithTimeout(rc.Timeout),
		service.WithBreaker(rc.Breaker),
		service.WithInputDim(feature.NewLayout(cfg.EmbeddingDim).Dim()),
		service.WithLogger(logger),
	}
	if rc.Version != "" {
		opts = append(opts, service.WithVersion(rc.Version))
	}
	if rc.Signature != "" {
		opts = append(opts, service.WithSignature(rc.Signature))
	}
	if rc.Auth != nil {
		opts = append(opts, service.WithAuth(rc.Auth))
	}
	return service.NewRemoteScorer(rc.Endpoint, rc.Model, opts...), nil
}

func buildOutcomes(ctx context.Context, cfg *Config, logger *zap.Logger) (core.OutcomeStore, error) {
	var base core.OutcomeStore
	switch cfg.Outcomes.Kind {
	case OutcomesRedis:
		rc := cfg.Outcomes.Redis
		var opts []store.RedisOutcomeOption
		if rc.KeyPrefix != "" {
			opts = append(opts, store.WithKeyPrefix(rc.KeyPrefix))
		}
		if rc.DedupeTTL > 0 {
			opts = append(opts, store.WithDedupeTTL(rc.DedupeTTL))
		}
		rs, err := store.DialRedisOutcomeStore(ctx, rc.Addr, rc.Password, rc.DB, opts...)
		if err != nil {
			return nil, err
		}
		base = rs
	case OutcomesMemory:
		base = store.NewMemoryOutcomeStore()
	default:
		return nil, nil
	}

	kc := cfg.Outcomes.Kafka
	if len(kc.Brokers) == 0 {
		return base, nil
	}
	client, err := feedback.Dial(kc)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	ks, err := feedback.NewKafkaOutcomeStore(base, client, kc.Topic, kc.FlushTimeout, logger)
	if err != nil {
		client.Close()
		_ = base.Close()
		return nil, err
	}
	return ks, nil
}
