// Package model 提供本地的冻结打分模型。所有模型输出 logit，权重加载后只读，可并发调用。
package model

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feature"
)

// 模型类型，对应权重文件中的 "type" 字段。
const (
	TypeLogistic = "logistic"
	TypeMLP      = "mlp"
)

// checkEvery 是批量打分时检查 ctx 的行间隔。
const checkEvery = 64

// File 是模型权重文件的格式：
//
//	{"type": "logistic", "name": "lr-v3", "embedding_dim": 384, "bias": -0.2, "weights": [...], "cross": [...]}
//	{"type": "logistic", "embedding_dim": 2, "named_weights": {"user_riasec_1": 0.8, "cand_centroid_1": 0.5}}
//	{"type": "mlp", "name": "mlp-v1", "layers": [[[...], ...], ...], "biases": [[...], ...]}
//
// logistic 模型可用稠密的 weights（长度 2·D+17），也可用按特征名的 named_weights（未出现的特征权重为 0）。
type File struct {
	Type         string             `json:"type"`
	Name         string             `json:"name"`
	EmbeddingDim int                `json:"embedding_dim"`
	Bias         float64            `json:"bias"`
	Weights      []float64          `json:"weights"`
	NamedWeights map[string]float64 `json:"named_weights"`
	Cross        []float64          `json:"cross"`
	Layers       [][][]float64      `json:"layers"`
	Biases       [][]float64        `json:"biases"`
}

// Read 从 r 解码权重文件并构造打分器。
func Read(r io.Reader) (core.Scorer, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, core.NewValidationError(core.ModuleRank, "decode model: %v", err)
	}
	return f.Build()
}

// LoadFile 读取本地权重文件。
func LoadFile(path string) (core.Scorer, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model %s: %w", path, err)
	}
	defer fh.Close()
	return Read(fh)
}

// Build 按 Type 构造打分器。
func (f *File) Build() (core.Scorer, error) {
	switch f.Type {
	case TypeLogistic, "lr", "":
		if f.EmbeddingDim <= 0 {
			return nil, core.NewValidationError(core.ModuleRank, "logistic model: embedding_dim is required")
		}
		layout := feature.NewLayout(f.EmbeddingDim)
		weights := f.Weights
		if weights == nil && f.NamedWeights != nil {
			var err error
			if weights, err = denseWeights(layout, f.NamedWeights); err != nil {
				return nil, err
			}
		}
		m, err := NewLogisticScorer(f.Name, layout, f.Bias, weights, f.Cross)
		if err != nil {
			return nil, err
		}
		return m, nil
	case TypeMLP, "dnn":
		m, err := NewMLPScorer(f.Name, f.Layers, f.Biases)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, core.NewValidationError(core.ModuleRank, "unknown model type %q", f.Type)
	}
}

// denseWeights 把按特征名的权重展开为稠密向量；未知特征名视为配置错误。
func denseWeights(layout *feature.Layout, named map[string]float64) ([]float64, error) {
	names := layout.FeatureNames()
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	out := make([]float64, len(names))
	for n, w := range named {
		i, ok := index[n]
		if !ok {
			return nil, core.NewValidationError(core.ModuleRank, "unknown feature %q in named_weights", n)
		}
		out[i] = w
	}
	return out, nil
}

// checkBatch 校验每行特征维度。dim 为 0 时不校验。
func checkBatch(features [][]float64, dim int) error {
	if dim <= 0 {
		return nil
	}
	for i, x := range features {
		if len(x) != dim {
			return core.NewValidationError(core.ModuleRank, "feature row %d: got %d columns, want %d", i, len(x), dim)
		}
	}
	return nil
}
