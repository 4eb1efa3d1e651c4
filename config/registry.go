package config

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/rerank"
)

// PolicyDeps 是构建选择策略时可用的进程级依赖。
type PolicyDeps struct {
	Outcomes core.OutcomeStore
	Logger   *zap.Logger
}

// PolicyBuilder 根据配置构建选择策略。
// 自定义策略在 init 中调用 RegisterPolicy(name, builder) 即可被配置驱动。
type PolicyBuilder func(cfg SelectionConfig, deps PolicyDeps) (rerank.SelectionPolicy, error)

var (
	policyBuilders   = make(map[string]PolicyBuilder)
	policyBuildersMu sync.RWMutex
)

func init() {
	RegisterPolicy(rerank.PolicyDeterministic, buildDeterministic)
	RegisterPolicy(rerank.PolicyThompson, buildThompson)
	RegisterPolicy("bandit", buildThompson)
	RegisterPolicy(rerank.PolicyUCB, buildUCB)
}

// RegisterPolicy 注册一种选择策略，同名覆盖。名称大小写不敏感。
func RegisterPolicy(name string, builder PolicyBuilder) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || builder == nil {
		return
	}
	policyBuildersMu.Lock()
	defer policyBuildersMu.Unlock()
	policyBuilders[name] = builder
}

// SupportedPolicies 返回已注册的策略名（排序），用于错误提示与校验。
func SupportedPolicies() []string {
	policyBuildersMu.RLock()
	defer policyBuildersMu.RUnlock()
	names := make([]string, 0, len(policyBuilders))
	for n := range policyBuilders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupPolicy(name string) (PolicyBuilder, bool) {
	policyBuildersMu.RLock()
	defer policyBuildersMu.RUnlock()
	b, ok := policyBuilders[strings.ToLower(strings.TrimSpace(name))]
	return b, ok
}

// BuildPolicy 按 cfg.Policy 构建选择策略；未注册的名称返回包含已支持列表的 ValidationError。
// cfg.MaxPerGroup > 0 时在外层包一层 rerank.Diversity。
func BuildPolicy(cfg SelectionConfig, deps PolicyDeps) (rerank.SelectionPolicy, error) {
	b, ok := lookupPolicy(cfg.Policy)
	if !ok {
		return nil, core.NewValidationError(core.ModuleRerank, "unsupported selection policy %q (supported: %v)",
			cfg.Policy, SupportedPolicies())
	}
	p, err := b(cfg, deps)
	if err != nil {
		return nil, err
	}
	if cfg.MaxPerGroup > 0 {
		return rerank.NewDiversity(p, cfg.MaxPerGroup), nil
	}
	return p, nil
}

func buildDeterministic(SelectionConfig, PolicyDeps) (rerank.SelectionPolicy, error) {
	return rerank.Deterministic{}, nil
}

func buildThompson(cfg SelectionConfig, deps PolicyDeps) (rerank.SelectionPolicy, error) {
	if deps.Outcomes == nil {
		return nil, core.NewValidationError(core.ModuleRerank, "policy %s requires an outcome store", rerank.PolicyThompson)
	}
	p := rerank.NewThompson(deps.Outcomes, cfg.Seed, deps.Logger)
	if cfg.PriorAlpha > 0 {
		p.PriorAlpha = cfg.PriorAlpha
	}
	if cfg.PriorBeta > 0 {
		p.PriorBeta = cfg.PriorBeta
	}
	p.Weight = cfg.Weight
	return p, nil
}

func buildUCB(cfg SelectionConfig, deps PolicyDeps) (rerank.SelectionPolicy, error) {
	if deps.Outcomes == nil {
		return nil, core.NewValidationError(core.ModuleRerank, "policy %s requires an outcome store", rerank.PolicyUCB)
	}
	return rerank.NewUCB(deps.Outcomes, cfg.UCBC, deps.Logger), nil
}
