package model

import (
	"context"

	"github.com/rushteam/careerkit/core"
)

// MLPScorer 是全连接网络打分器（Deep Neural Network）。
//
// 工程特征：
//   - 实时性：好（本地推理，权重只读）
//   - 特征交互：强（隐藏层自动学习 embedding 与特质之间的交互）
//   - 可解释性：弱，不实现 DecomposingScorer，cf_score / trait_score 不填充
//
// 隐藏层使用 ReLU，最后一层为单个线性输出（logit）。
type MLPScorer struct {
	name string

	// weights[layer][neuron][input]
	weights [][][]float64
	// biases[layer][neuron]
	biases [][]float64

	inputDim int
}

// NewMLPScorer 校验各层形状后创建打分器：
// 第 0 层的输入维度即特征维度，每层的输入维度等于上一层的神经元数，最后一层只有 1 个神经元。
func NewMLPScorer(name string, weights [][][]float64, biases [][]float64) (*MLPScorer, error) {
	if len(weights) == 0 || len(weights) != len(biases) {
		return nil, core.NewValidationError(core.ModuleRank, "mlp scorer: %d weight layers, %d bias layers", len(weights), len(biases))
	}
	if len(weights[0]) == 0 {
		return nil, core.NewValidationError(core.ModuleRank, "mlp scorer: layer 0 has no neurons")
	}
	in := len(weights[0][0])
	inputDim := in
	for l, layer := range weights {
		if len(layer) == 0 || len(layer) != len(biases[l]) {
			return nil, core.NewValidationError(core.ModuleRank, "mlp scorer: layer %d has %d neurons, %d biases", l, len(layer), len(biases[l]))
		}
		for j, row := range layer {
			if len(row) != in {
				return nil, core.NewValidationError(core.ModuleRank, "mlp scorer: layer %d neuron %d has %d inputs, want %d", l, j, len(row), in)
			}
		}
		in = len(layer)
	}
	if in != 1 {
		return nil, core.NewValidationError(core.ModuleRank, "mlp scorer: output layer has %d neurons, want 1", in)
	}
	if name == "" {
		name = "mlp"
	}
	return &MLPScorer{name: name, weights: weights, biases: biases, inputDim: inputDim}, nil
}

func (m *MLPScorer) Name() string  { return m.name }
func (m *MLPScorer) InputDim() int { return m.inputDim }
func (m *MLPScorer) Close() error  { return nil }

// ScoreBatch 实现 core.Scorer 接口
func (m *MLPScorer) ScoreBatch(ctx context.Context, features [][]float64) ([]float64, error) {
	if err := checkBatch(features, m.inputDim); err != nil {
		return nil, err
	}
	out := make([]float64, len(features))
	for i, x := range features {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = m.forward(x)
	}
	return out, nil
}

// forward 前向传播。
func (m *MLPScorer) forward(input []float64) float64 {
	current := input
	last := len(m.weights) - 1
	for l, layer := range m.weights {
		next := make([]float64, len(layer))
		for j, row := range layer {
			sum := m.biases[l][j]
			for k, w := range row {
				sum += w * current[k]
			}
			if l < last {
				sum = relu(sum)
			}
			next[j] = sum
		}
		current = next
	}
	return current[0]
}

// relu ReLU 激活函数。
func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

var _ core.Scorer = (*MLPScorer)(nil)
