package core

import (
	"context"
	"math"

	"github.com/rushteam/careerkit/pkg/vecmath"
)

// 特质向量的固定维度，分量顺序是契约的一部分。
const (
	RIASECDim = 6 // R, I, A, S, E, C
	Big5Dim   = 5 // O, C, E, A, N
)

// RIASECAxes 与 Big5Axes 记录分量顺序，仅用于展示和日志。
var (
	RIASECAxes = [RIASECDim]string{"R", "I", "A", "S", "E", "C"}
	Big5Axes   = [Big5Dim]string{"O", "C", "E", "A", "N"}
)

// unitNormTolerance 是单位向量校验的容差。
const unitNormTolerance = 1e-3

// Embedding 是单位化的稠密向量，余弦相似度即内积。核心链路从不修改它。
type Embedding []float64

// Dim 返回维度。
func (e Embedding) Dim() int { return len(e) }

// Validate 校验维度与 L2 范数。dim <= 0 时不校验维度。
func (e Embedding) Validate(dim int) error {
	if len(e) == 0 {
		return NewValidationError(ModuleFeature, "embedding is empty")
	}
	if dim > 0 && len(e) != dim {
		return NewValidationError(ModuleFeature, "embedding dimension mismatch: got %d, want %d", len(e), dim)
	}
	for _, v := range e {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewValidationError(ModuleFeature, "embedding contains non-finite value")
		}
	}
	if n := vecmath.Norm(e); math.Abs(n-1) > unitNormTolerance {
		return NewValidationError(ModuleFeature, "embedding is not unit-norm: |e|=%.6f", n)
	}
	return nil
}

// TraitVector 是分量在 [0,1] 内的特质向量（RIASEC 6 维或 Big5 5 维）。
type TraitVector []float64

// Validate 校验维度与取值范围。
func (t TraitVector) Validate(dim int) error {
	if len(t) != dim {
		return NewValidationError(ModuleFeature, "trait vector dimension mismatch: got %d, want %d", len(t), dim)
	}
	for i, v := range t {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return NewValidationError(ModuleFeature, "trait component %d out of [0,1]: %v", i, v)
		}
	}
	return nil
}

// UserProfile 是单次请求使用的用户画像。
// Embedding 必填；RIASEC / Big5 可选。RIASEC 缺失时混合打分的特质项不生效。
type UserProfile struct {
	UserID    string
	Embedding Embedding
	RIASEC    TraitVector
	Big5      TraitVector
}

// Validate 校验画像形状；dim 为期望的 embedding 维度（<=0 不校验维度）。
func (p *UserProfile) Validate(dim int) error {
	if p == nil {
		return NewValidationError(ModuleProfile, "profile is nil")
	}
	if err := p.Embedding.Validate(dim); err != nil {
		return err
	}
	if p.RIASEC != nil {
		if err := p.RIASEC.Validate(RIASECDim); err != nil {
			return err
		}
	}
	if p.Big5 != nil {
		if err := p.Big5.Validate(Big5Dim); err != nil {
			return err
		}
	}
	return nil
}

// ProfileProvider 是 Trait & Embedding Provider 的领域接口。
// 用户不存在时返回 ProfileNotFound（可用 IsProfileNotFound 判断）。
type ProfileProvider interface {
	Name() string
	GetUserProfile(ctx context.Context, userID string) (*UserProfile, error)
	Close() error
}
