package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeJobID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "15-1252.00", want: "15-1252.00"},
		{raw: " 15-1252 ", want: "15-1252.00"},
		{raw: "151252", want: "15-1252.00"},
		{raw: "15.1252", want: "15-1252.00"},
		{raw: "15_1252_01", want: "15-1252.01"},
		{raw: "151252.02", want: "15-1252.02"},
		{raw: "15-12", wantErr: true},
		{raw: "career-42", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizeJobID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewCandidate_NormalizesTags(t *testing.T) {
	c, err := NewCandidate("29-1141", "Registered Nurse", Embedding{1, 0}, []string{"Saúde Pública", "Nursing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "29-1141.00", c.JobID)
	for _, tok := range []string{"saude_publica", "saude", "publica", "nursing"} {
		assert.Contains(t, c.TagTokens, tok)
	}
	other := &Candidate{JobID: "29-1141.00"}
	assert.True(t, c.Equal(other))
}

func TestEmbeddingValidate(t *testing.T) {
	assert.NoError(t, Embedding{0.6, 0.8}.Validate(2))
	assert.True(t, IsValidation(Embedding{0.6, 0.8}.Validate(3)))
	assert.True(t, IsValidation(Embedding{1, 1}.Validate(0)))
	assert.True(t, IsValidation(Embedding{}.Validate(0)))
}

func TestUserProfileValidate(t *testing.T) {
	p := &UserProfile{UserID: "u1", Embedding: Embedding{1, 0}, RIASEC: TraitVector{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}}
	require.NoError(t, p.Validate(2))

	p.Big5 = TraitVector{0.1, 0.2}
	assert.True(t, IsValidation(p.Validate(2)))

	p.Big5 = TraitVector{0.1, 0.2, 0.3, 0.4, 1.2}
	assert.True(t, IsValidation(p.Validate(2)))
}

func TestFinalItemKeepsOptionalScoresAbsent(t *testing.T) {
	sc := NewScoredCandidate(&Candidate{JobID: "15-1252.00"}, 0.9)
	sc.HybridScore = 0.8
	item := NewFinalItem(sc, sc.BaseScore(), "deterministic")
	assert.Nil(t, item.RankScore)
	assert.Nil(t, item.CFScore)
	assert.Nil(t, item.TraitScore)
	assert.Equal(t, 0.8, item.FinalScore)

	sc.RankScore = Float(0.7)
	item = NewFinalItem(sc, sc.BaseScore(), "deterministic")
	require.NotNil(t, item.RankScore)
	assert.Equal(t, 0.7, *item.RankScore)

	*sc.RankScore = 0.1
	assert.Equal(t, 0.7, *item.RankScore, "final item must not alias candidate scores")
}

func TestErrorClassification(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")

	err := WrapStageError(StageRetrieval, cause, NewRetrievalUnavailable)
	assert.True(t, IsRetrievalUnavailable(err))
	assert.True(t, errors.Is(err, ErrRetrievalUnavailable))
	assert.ErrorIs(t, err, cause)

	err = WrapStageError(StageRanking, fmt.Errorf("call: %w", context.DeadlineExceeded), NewScorerUnavailable)
	assert.True(t, IsTimeout(err, StageRanking))
	assert.False(t, IsTimeout(err, StageRetrieval))
	assert.False(t, IsScorerUnavailable(err))

	wrapped := fmt.Errorf("outer: %w", NewProfileNotFound("u1"))
	assert.True(t, IsProfileNotFound(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.Nil(t, WrapStageError(StageRanking, nil, NewScorerUnavailable))
}

func TestOutcomeValidate(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	o, err := Outcome{JobID: "151252", Shown: true, Clicked: true, Timestamp: ts}.Validate()
	require.NoError(t, err)
	assert.Equal(t, "15-1252.00", o.JobID)

	_, err = Outcome{JobID: "151252", Clicked: true, Timestamp: ts}.Validate()
	assert.True(t, IsValidation(err))

	_, err = Outcome{JobID: "151252", Shown: true}.Validate()
	assert.True(t, IsValidation(err))
}

type closer struct {
	calls int
	err   error
}

func (c *closer) Close() error { c.calls++; return c.err }

type fakeProfiles struct{ closer }

func (f *fakeProfiles) Name() string { return "fake" }
func (f *fakeProfiles) GetUserProfile(context.Context, string) (*UserProfile, error) {
	return nil, NewProfileNotFound("x")
}

type fakeStore struct{ closer }

func (f *fakeStore) Name() string                      { return "fake" }
func (f *fakeStore) Size(context.Context) (int, error) { return 0, nil }
func (f *fakeStore) Get(context.Context, string) (*Candidate, error) {
	return nil, nil
}
func (f *fakeStore) Query(context.Context, *CandidateQuery) ([]CandidateHit, error) {
	return nil, nil
}

type fakeScorer struct{ closer }

func (f *fakeScorer) Name() string  { return "fake" }
func (f *fakeScorer) InputDim() int { return 0 }
func (f *fakeScorer) ScoreBatch(context.Context, [][]float64) ([]float64, error) {
	return nil, nil
}

func TestPipelineContextClose(t *testing.T) {
	_, err := NewPipelineContext(nil, &fakeStore{}, &fakeScorer{}, nil)
	assert.True(t, IsValidation(err))

	profiles := &fakeProfiles{}
	st := &fakeStore{closer: closer{err: errors.New("store close failed")}}
	sc := &fakeScorer{}
	pc, err := NewPipelineContext(profiles, st, sc, nil)
	require.NoError(t, err)

	err = pc.Close()
	assert.EqualError(t, err, "store close failed")
	assert.Equal(t, err, pc.Close())
	assert.Equal(t, 1, profiles.calls)
	assert.Equal(t, 1, st.calls)
	assert.Equal(t, 1, sc.calls)
}
