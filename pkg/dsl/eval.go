package dsl

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/textnorm"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式，key 为表达式原文；表达式来自请求，缓存必须有上限
	programs = newProgramCache(maxCachedPrograms)
)

const maxCachedPrograms = 1024

func newProgramCache(size int64) *ristretto.Cache[string, *Program] {
	c, err := ristretto.NewCache(&ristretto.Config[string, *Program]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
		Metrics:            true,
	})
	if err != nil {
		panic(fmt.Sprintf("dsl: program cache: %v", err))
	}
	return c
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("candidate", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译后的候选过滤表达式，可被多个请求并发使用。
//
// 表达式语法（CEL 标准语法），可用字段：
//   - candidate.job_id    string
//   - candidate.title     string
//   - candidate.tags      list(string)，已归一化
//   - candidate.sim_score double
//   - candidate.tag_hits  int
//
// 示例：
//   - `candidate.job_id.startsWith("15-") && candidate.sim_score > 0.4`
//   - `"python" in candidate.tags`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；最近使用的表达式命中缓存时不再重复编译。
func Compile(expr string) (*Program, error) {
	if cached, ok := programs.Get(expr); ok {
		return cached, nil
	}

	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, core.NewValidationError(core.ModuleRecall, "compile expr %q: %v", expr, issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, core.NewValidationError(core.ModuleRecall, "expr %q must return bool, got %v", expr, t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, core.NewValidationError(core.ModuleRecall, "program expr %q: %v", expr, err)
	}

	p := &Program{expr: expr, prg: prg}
	programs.Set(expr, p, 1)
	return p, nil
}

// String 返回表达式原文。
func (p *Program) String() string { return p.expr }

// Match 对单个候选求值。
func (p *Program) Match(sc *core.ScoredCandidate) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{"candidate": candidateInput(sc)})
	if err != nil {
		return false, fmt.Errorf("eval %q on %s: %w", p.expr, sc.JobID, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// candidateInput 构建 CEL 表达式的输入数据
func candidateInput(sc *core.ScoredCandidate) map[string]any {
	return map[string]any{
		"job_id":    sc.JobID,
		"title":     sc.Title,
		"tags":      textnorm.Sorted(sc.TagTokens),
		"sim_score": sc.SimScore,
		"tag_hits":  int64(sc.TagHits),
	}
}
