package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/careerkit/core"
)

type fakeClient struct {
	rows   []Row
	err    error
	count  int
	closed bool

	gotFilter string
	gotLimit  int
	gotFields []string
	gotVector []float32
}

func (f *fakeClient) Search(_ context.Context, _ string, vector []float32, limit int, filter string, fields []string) ([]Row, error) {
	f.gotVector, f.gotLimit, f.gotFilter, f.gotFields = vector, limit, filter, fields
	return f.rows, f.err
}

func (f *fakeClient) Query(_ context.Context, _ string, filter string, fields []string, limit int) ([]Row, error) {
	f.gotFilter, f.gotFields, f.gotLimit = filter, fields, limit
	if f.err != nil {
		return nil, f.err
	}
	var out []Row
	for _, r := range f.rows {
		if filter == `job_id == "`+r.Fields["job_id"].(string)+`"` {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeClient) Count(context.Context, string) (int, error) { return f.count, f.err }
func (f *fakeClient) Close(context.Context) error              { f.closed = true; return nil }

func row(score float32, id string, emb []float32, tags ...string) Row {
	return Row{Score: score, Fields: map[string]any{
		"job_id":    id,
		"title":     "title " + id,
		"tags":      tags,
		"embedding": emb,
	}}
}

func TestMilvusCandidateStore_Query(t *testing.T) {
	fc := &fakeClient{rows: []Row{
		row(0.9, "15-1252.00", []float32{1, 0}, "Software Developers"),
		row(0.95, "151211", []float32{0, 1}),
		{Score: 0.8, Fields: map[string]any{"job_id": "bad", "embedding": []float32{1, 0}}},
		{Score: 0.7, Fields: map[string]any{"job_id": "29-1141.00", "embedding": []float32{1}}},
		{Score: 0.9, Fields: map[string]any{
			"job_id":         "17-2051.00",
			"embedding":      []any{0.6, 0.8},
			"tags":           []any{"Civil", 3},
			"trait_centroid": []float32{0.5, 0.5, 0, 0, 0, 1},
		}},
	}}
	s, err := NewMilvusCandidateStore(fc, "careers", 2)
	require.NoError(t, err)

	hits, err := s.Query(context.Background(), &core.CandidateQuery{
		Vector:    core.Embedding{1, 0},
		K:         10,
		IDPrefix:  "15-",
		AnyTokens: map[string]struct{}{"software": {}, "data_science": {}},
	})
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0}, fc.gotVector)
	assert.Equal(t, 10, fc.gotLimit)
	assert.Equal(t, `job_id like "15-%" && ARRAY_CONTAINS_ANY(tags, ["data_science", "software"])`, fc.gotFilter)
	assert.Equal(t, []string{"job_id", "title", "tags", "embedding", "trait_centroid"}, fc.gotFields)

	// 非法 job_id 与维度不符的行被跳过；距离升序，相同距离按 job_id 升序
	require.Len(t, hits, 3)
	assert.Equal(t, "15-1211.00", hits[0].Candidate.JobID)
	assert.InDelta(t, 0.05, hits[0].Distance, 1e-6)
	assert.Equal(t, "15-1252.00", hits[1].Candidate.JobID)
	assert.Equal(t, "17-2051.00", hits[2].Candidate.JobID)
	assert.InDelta(t, hits[1].Distance, hits[2].Distance, 1e-9)

	assert.Contains(t, hits[1].Candidate.TagTokens, "software")
	assert.Equal(t, core.TraitVector{0.5, 0.5, 0, 0, 0, 1}, hits[2].Candidate.TraitCentroid)
	assert.Contains(t, hits[2].Candidate.TagTokens, "civil")
	assert.Nil(t, hits[0].Candidate.TraitCentroid)
}

func TestMilvusCandidateStore_QueryEdges(t *testing.T) {
	fc := &fakeClient{}
	s, err := NewMilvusCandidateStore(fc, "careers", 2, WithFields(Fields{JobID: "soc"}))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Query(ctx, nil)
	assert.True(t, core.IsValidation(err))

	_, err = s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0, 0}, K: 3})
	assert.True(t, core.IsValidation(err))

	hits, err := s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0}, K: 0})
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0}, K: 3, IDPrefix: "15_"})
	require.NoError(t, err)
	assert.Equal(t, `soc like "15\\_%"`, fc.gotFilter)

	_, err = s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0}, K: 3})
	require.NoError(t, err)
	assert.Empty(t, fc.gotFilter)
}

func TestMilvusCandidateStore_Errors(t *testing.T) {
	fc := &fakeClient{err: errors.New("rpc error: code = Unavailable")}
	s, err := NewMilvusCandidateStore(fc, "careers", 2)
	require.NoError(t, err)

	_, err = s.Query(context.Background(), &core.CandidateQuery{Vector: core.Embedding{1, 0}, K: 3})
	assert.True(t, core.IsRetrievalUnavailable(err))
	assert.Contains(t, err.Error(), "milvus search")

	_, err = s.Size(context.Background())
	assert.True(t, core.IsRetrievalUnavailable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0}, K: 3})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewMilvusCandidateStore(nil, "careers", 2)
	assert.True(t, core.IsValidation(err))
	_, err = NewMilvusCandidateStore(fc, "", 2)
	assert.True(t, core.IsValidation(err))
	_, err = NewMilvusCandidateStore(fc, "careers", 0)
	assert.True(t, core.IsValidation(err))
}

func TestMilvusCandidateStore_GetSizeClose(t *testing.T) {
	fc := &fakeClient{count: 2, rows: []Row{row(0, "15-1252.00", []float32{1, 0}, "software")}}
	s, err := NewMilvusCandidateStore(fc, "careers", 2)
	require.NoError(t, err)
	ctx := context.Background()

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err := s.Get(ctx, "15-1252.00")
	require.NoError(t, err)
	assert.Equal(t, "title 15-1252.00", c.Title)
	assert.Equal(t, 1, fc.gotLimit)

	_, err = s.Get(ctx, "29-1141.00")
	require.Error(t, err)
	assert.Equal(t, core.ErrorCodeNotFound, core.GetDomainError(err).Code)

	require.NoError(t, s.Close())
	assert.True(t, fc.closed)
	assert.Equal(t, "milvus_candidate", s.Name())
}
