package filter

import (
	"context"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/dsl"
)

// ExprFilter 用 CEL 表达式过滤候选，表达式为 false 时剔除。
type ExprFilter struct {
	program *dsl.Program
}

// NewExprFilter 编译表达式，语法错误返回 ValidationError。
func NewExprFilter(expr string) (*ExprFilter, error) {
	p, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{program: p}, nil
}

func (f *ExprFilter) Name() string { return "filter.expr" }

func (f *ExprFilter) ShouldFilter(_ context.Context, _ *core.UserProfile, sc *core.ScoredCandidate) (bool, error) {
	ok, err := f.program.Match(sc)
	if err != nil {
		return false, core.NewValidationError(core.ModuleRecall, "%v", err)
	}
	return !ok, nil
}
