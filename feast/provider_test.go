package feast

import (
	"context"
	"errors"
	"testing"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/careerkit/core"
)

func doubles(v ...float64) *types.Value {
	return &types.Value{Val: &types.Value_DoubleListVal{DoubleListVal: &types.DoubleList{Val: v}}}
}

func floats(v ...float32) *types.Value {
	return &types.Value{Val: &types.Value_FloatListVal{FloatListVal: &types.FloatList{Val: v}}}
}

var testFeatures = Features{
	Embedding: "user_profile:embedding",
	RIASEC:    "user_profile:riasec",
	Big5:      "user_profile:big5",
}

func TestProfileProvider_GetUserProfile(t *testing.T) {
	var got *feastsdk.OnlineFeaturesRequest
	fetch := func(_ context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
		got = req
		return []feastsdk.Row{{
			"user_profile:embedding": doubles(0.6, 0.8),
			"user_profile:riasec":    floats(0.5, 0.25, 0, 1, 0.5, 0.75),
			"user_profile:big5":      feastsdk.StrVal("[0.1, 0.2, 0.3, 0.4, 0.5]"),
		}}, nil
	}
	p := NewProfileProvider(fetch, "careers", testFeatures, nil)

	prof, err := p.GetUserProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", prof.UserID)
	assert.Equal(t, core.Embedding{0.6, 0.8}, prof.Embedding)
	assert.Equal(t, core.TraitVector{0.5, 0.25, 0, 1, 0.5, 0.75}, prof.RIASEC)
	assert.Equal(t, core.TraitVector{0.1, 0.2, 0.3, 0.4, 0.5}, prof.Big5)
	require.NoError(t, prof.Validate(2))

	require.NotNil(t, got)
	assert.Equal(t, "careers", got.Project)
	assert.Equal(t, []string{"user_profile:embedding", "user_profile:riasec", "user_profile:big5"}, got.Features)
	require.Len(t, got.Entities, 1)
	assert.Equal(t, "u1", got.Entities[0]["user_id"].GetStringVal())
}

func TestProfileProvider_OptionalTraits(t *testing.T) {
	fetch := func(_ context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
		assert.Equal(t, []string{"u:emb"}, req.Features)
		assert.Contains(t, req.Entities[0], "uid")
		return []feastsdk.Row{{"u:emb": doubles(1, 0)}}, nil
	}
	p := NewProfileProvider(fetch, "p", Features{EntityKey: "uid", Embedding: "u:emb"}, nil)

	prof, err := p.GetUserProfile(context.Background(), "u2")
	require.NoError(t, err)
	assert.Nil(t, prof.RIASEC)
	assert.Nil(t, prof.Big5)
}

func TestProfileProvider_Errors(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		rows   []feastsdk.Row
		err    error
		check  func(t *testing.T, err error)
	}{
		{
			name:   "missing embedding is not found",
			userID: "ghost",
			rows:   []feastsdk.Row{{"user_profile:embedding": &types.Value{}}},
			check:  func(t *testing.T, err error) { assert.True(t, core.IsProfileNotFound(err)) },
		},
		{
			name:   "empty user id",
			userID: " ",
			check:  func(t *testing.T, err error) { assert.True(t, core.IsValidation(err)) },
		},
		{
			name:   "bad json vector",
			userID: "u1",
			rows: []feastsdk.Row{{
				"user_profile:embedding": doubles(1, 0),
				"user_profile:riasec":    feastsdk.StrVal("{not json"),
			}},
			check: func(t *testing.T, err error) { assert.True(t, core.IsValidation(err)) },
		},
		{
			name:   "non numeric feature",
			userID: "u1",
			rows:   []feastsdk.Row{{"user_profile:embedding": feastsdk.BoolVal(true)}},
			check:  func(t *testing.T, err error) { assert.True(t, core.IsProfileNotFound(err)) },
		},
		{
			name:   "row count mismatch",
			userID: "u1",
			rows:   []feastsdk.Row{},
			check:  func(t *testing.T, err error) { assert.Error(t, err) },
		},
		{
			name:   "transport error passes through",
			userID: "u1",
			err:    context.DeadlineExceeded,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, context.DeadlineExceeded) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetch := func(context.Context, *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
				return tt.rows, tt.err
			}
			prof, err := NewProfileProvider(fetch, "careers", testFeatures, nil).GetUserProfile(context.Background(), tt.userID)
			assert.Nil(t, prof)
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestVectorFeature(t *testing.T) {
	row := feastsdk.Row{
		"a": &types.Value{Val: &types.Value_Int64ListVal{Int64ListVal: &types.Int64List{Val: []int64{1, 0}}}},
		"b": feastsdk.DoubleVal(0.5),
		"c": feastsdk.StrVal(`["x"]`),
		"d": feastsdk.StrVal(""),
	}
	v, err := vectorFeature(row, "a")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, v)

	v, err = vectorFeature(row, "b")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, v)

	_, err = vectorFeature(row, "c")
	assert.True(t, core.IsValidation(err))

	v, err = vectorFeature(row, "d")
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = vectorFeature(row, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)
}

type fakeCloser struct {
	calls int
	err   error
}

func (c *fakeCloser) Close() error { c.calls++; return c.err }

func TestProfileProvider_Close(t *testing.T) {
	fetch := func(context.Context, *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) { return nil, nil }

	assert.NoError(t, NewProfileProvider(fetch, "p", testFeatures, nil).Close())

	fc := &fakeCloser{err: errors.New("connection reset")}
	p := NewProfileProvider(fetch, "p", testFeatures, nil, WithCloser(fc))
	assert.EqualError(t, p.Close(), "connection reset")
	assert.EqualError(t, p.Close(), "connection reset")
	assert.Equal(t, 1, fc.calls)

	assert.NotNil(t, ClientCloser(nil))
}
