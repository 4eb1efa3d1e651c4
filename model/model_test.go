package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feature"
)

func TestLogisticScorer_Parts(t *testing.T) {
	layout := feature.NewLayout(2)
	w := make([]float64, layout.Dim())
	w[layout.Span(feature.BlockCandidateEmbedding).Start] = 1.0 // cand_emb_0
	w[layout.Span(feature.BlockUserRIASEC).Start+1] = 2.0      // user_riasec_1
	w[layout.Span(feature.BlockCandidateCentroid).Start+1] = 0.5

	m, err := NewLogisticScorer("", layout, -0.5, w, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, "logistic", m.Name())
	assert.Equal(t, 21, m.InputDim())

	p := &core.UserProfile{Embedding: core.Embedding{0.6, 0.8}, RIASEC: core.TraitVector{0, 0.5, 0, 0, 0, 0}}
	c := &core.Candidate{JobID: "15-1252.00", Embedding: core.Embedding{1, 0}, TraitCentroid: core.TraitVector{0, 1, 0, 0, 0, 0}}
	x, err := layout.Build(p, c)
	require.NoError(t, err)

	parts, err := m.ScoreBatchParts(context.Background(), [][]float64{x})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	// cf = -0.5 + 1.0·1 + (0.6·1 + 0.8·0) = 1.1
	assert.InDelta(t, 1.1, parts[0].CFLogit, 1e-9)
	// trait = 2.0·0.5 + 0.5·1 = 1.5
	assert.InDelta(t, 1.5, parts[0].TraitLogit, 1e-9)
	assert.InDelta(t, 2.6, parts[0].Logit, 1e-9)

	logits, err := m.ScoreBatch(context.Background(), [][]float64{x})
	require.NoError(t, err)
	assert.Equal(t, []float64{parts[0].Logit}, logits)
}

func TestLogisticScorer_Validation(t *testing.T) {
	layout := feature.NewLayout(2)
	_, err := NewLogisticScorer("lr", layout, 0, make([]float64, 3), nil)
	assert.True(t, core.IsValidation(err))

	_, err = NewLogisticScorer("lr", layout, 0, make([]float64, layout.Dim()), []float64{1})
	assert.True(t, core.IsValidation(err))

	m, err := NewLogisticScorer("lr", layout, 0, make([]float64, layout.Dim()), nil)
	require.NoError(t, err)
	_, err = m.ScoreBatch(context.Background(), [][]float64{make([]float64, 5)})
	assert.True(t, core.IsValidation(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.ScoreBatch(ctx, [][]float64{make([]float64, layout.Dim())})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMLPScorer(t *testing.T) {
	// 2 -> 2 (ReLU) -> 1
	m, err := NewMLPScorer("", [][][]float64{
		{{1, 0}, {0, -1}},
		{{2, 3}},
	}, [][]float64{
		{0, 0},
		{0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "mlp", m.Name())
	assert.Equal(t, 2, m.InputDim())

	logits, err := m.ScoreBatch(context.Background(), [][]float64{{1, 1}, {-1, -2}})
	require.NoError(t, err)
	// row0: hidden = relu(1), relu(-1) = 1, 0 → 2·1 + 0.5 = 2.5
	// row1: hidden = relu(-1), relu(2) = 0, 2 → 3·2 + 0.5 = 6.5
	assert.InDeltaSlice(t, []float64{2.5, 6.5}, logits, 1e-9)

	_, ok := any(m).(core.DecomposingScorer)
	assert.False(t, ok)
}

func TestMLPScorer_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		weights [][][]float64
		biases  [][]float64
	}{
		{"empty", nil, nil},
		{"bias layers mismatch", [][][]float64{{{1}}}, nil},
		{"ragged inputs", [][][]float64{{{1, 2}, {1}}, {{1, 1}}}, [][]float64{{0, 0}, {0}}},
		{"wrong chaining", [][][]float64{{{1, 2}}, {{1, 1}}}, [][]float64{{0}, {0}}},
		{"multi output", [][][]float64{{{1}, {1}}}, [][]float64{{0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMLPScorer("x", tt.weights, tt.biases)
			assert.True(t, core.IsValidation(err))
		})
	}
}

func TestRead(t *testing.T) {
	s, err := Read(strings.NewReader(`{"type":"logistic","name":"lr-v1","embedding_dim":2,"bias":0.1,
		"named_weights":{"user_riasec_1":0.8,"cand_centroid_1":0.5}}`))
	require.NoError(t, err)
	assert.Equal(t, "lr-v1", s.Name())
	assert.Equal(t, 21, s.InputDim())

	s, err = Read(strings.NewReader(`{"type":"mlp","layers":[[[1,1]]],"biases":[[0]]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, s.InputDim())

	_, err = Read(strings.NewReader(`{"type":"logistic","embedding_dim":2,"named_weights":{"nope":1}}`))
	assert.True(t, core.IsValidation(err))

	_, err = Read(strings.NewReader(`{"type":"gbdt"}`))
	assert.True(t, core.IsValidation(err))

	_, err = Read(strings.NewReader(`{`))
	assert.True(t, core.IsValidation(err))
}
