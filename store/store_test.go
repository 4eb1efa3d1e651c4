package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/careerkit/core"
)

// angleEmb 返回二维平面上与 x 轴夹角为 deg 的单位向量。
func angleEmb(deg float64) core.Embedding {
	rad := deg * math.Pi / 180
	return core.Embedding{math.Cos(rad), math.Sin(rad)}
}

func mustCandidate(t *testing.T, id string, deg float64, tags ...string) *core.Candidate {
	t.Helper()
	c, err := core.NewCandidate(id, "title "+id, angleEmb(deg), tags, nil)
	require.NoError(t, err)
	return c
}

func TestMemoryCandidateStore_Query(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryCandidateStore(2, []*core.Candidate{
		mustCandidate(t, "15-1252", 30, "software"),
		mustCandidate(t, "15-1211", 10, "analysis"),
		mustCandidate(t, "29-1141", 10, "nursing"),
		mustCandidate(t, "17-2051", 80, "civil engineering"),
	})
	require.NoError(t, err)

	n, err := s.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	hits, err := s.Query(ctx, &core.CandidateQuery{Vector: angleEmb(0), K: 3})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	// 距离相同按 job_id 升序
	assert.Equal(t, "15-1211.00", hits[0].Candidate.JobID)
	assert.Equal(t, "29-1141.00", hits[1].Candidate.JobID)
	assert.Equal(t, "15-1252.00", hits[2].Candidate.JobID)
	assert.InDelta(t, 1-math.Cos(10*math.Pi/180), hits[0].Distance, 1e-9)

	hits, err = s.Query(ctx, &core.CandidateQuery{Vector: angleEmb(0), K: 10, IDPrefix: "15-"})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Query(ctx, &core.CandidateQuery{Vector: angleEmb(0), K: 10, AnyTokens: map[string]struct{}{"civil": {}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "17-2051.00", hits[0].Candidate.JobID)

	_, err = s.Query(ctx, &core.CandidateQuery{Vector: core.Embedding{1, 0, 0}, K: 1})
	assert.True(t, core.IsValidation(err))

	got, err := s.Get(ctx, "29-1141.00")
	require.NoError(t, err)
	assert.Equal(t, "title 29-1141", got.Title)
	_, err = s.Get(ctx, "99-9999.00")
	assert.True(t, core.IsNotFound(err))

	require.NoError(t, s.Close())
	_, err = s.Query(ctx, &core.CandidateQuery{Vector: angleEmb(0), K: 1})
	assert.True(t, core.IsRetrievalUnavailable(err))
}

func TestMemoryCandidateStore_RejectsBadCatalog(t *testing.T) {
	_, err := NewMemoryCandidateStore(2, []*core.Candidate{
		mustCandidate(t, "15-1252", 0),
		mustCandidate(t, "151252", 10),
	})
	assert.True(t, core.IsValidation(err))

	_, err = NewMemoryCandidateStore(2, []*core.Candidate{{JobID: "15-1252.00", Embedding: core.Embedding{2, 0}}})
	assert.True(t, core.IsValidation(err))

	_, err = NewMemoryCandidateStore(2, []*core.Candidate{{JobID: "15-1252.00", Embedding: angleEmb(0), TraitCentroid: core.TraitVector{0.5}}})
	assert.True(t, core.IsValidation(err))
}

func TestReadCatalog(t *testing.T) {
	array := `[
	  {"job_id": "15-1252.00", "title": "Software Developers", "embedding": [1, 0], "tags": ["Software Engineering"]},
	  {"career_id": "291141", "title": "Registered Nurses", "embedding": [0, 1], "tags": ["Saúde"], "trait_centroid": [0.1,0.2,0.3,0.9,0.4,0.2]}
	]`
	lines := `{"job_id": "15-1252.00", "title": "Software Developers", "embedding": [1, 0], "tags": ["Software Engineering"]}

{"career_id": "291141", "title": "Registered Nurses", "embedding": [0, 1], "tags": ["Saúde"], "trait_centroid": [0.1,0.2,0.3,0.9,0.4,0.2]}
`
	for name, in := range map[string]string{"array": array, "jsonl": lines} {
		t.Run(name, func(t *testing.T) {
			recs, err := ReadCatalog(strings.NewReader(in))
			require.NoError(t, err)
			require.Len(t, recs, 2)

			c, err := recs[1].ToCandidate()
			require.NoError(t, err)
			assert.Equal(t, "29-1141.00", c.JobID)
			assert.Contains(t, c.TagTokens, "saude")
			assert.Len(t, c.TraitCentroid, core.RIASECDim)

			c, err = recs[0].ToCandidate()
			require.NoError(t, err)
			assert.Contains(t, c.TagTokens, "software_engineering")
			assert.Nil(t, c.TraitCentroid)
		})
	}

	recs, err := ReadCatalog(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = ReadCatalog(strings.NewReader("{not json}\n"))
	assert.Error(t, err)
}

type countingProvider struct {
	*MemoryProfileProvider
	calls atomic.Int32
	delay time.Duration
}

func (c *countingProvider) GetUserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.MemoryProfileProvider.GetUserProfile(ctx, userID)
}

func TestCachingProfileProvider(t *testing.T) {
	ctx := context.Background()
	inner := &countingProvider{
		MemoryProfileProvider: NewMemoryProfileProvider(&core.UserProfile{UserID: "u1", Embedding: angleEmb(0)}),
		delay:                 20 * time.Millisecond,
	}
	p := NewCachingProfileProvider(inner, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prof, err := p.GetUserProfile(ctx, "u1")
			assert.NoError(t, err)
			assert.Equal(t, "u1", prof.UserID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), inner.calls.Load())

	_, err := p.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load(), "cached")

	p.Invalidate("u1")
	_, err = p.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = p.GetUserProfile(ctx, "missing")
	assert.True(t, core.IsProfileNotFound(err))
	assert.Equal(t, "cached_memory_profile", p.Name())
}

func TestCachingProfileProvider_LeaderDeadlineDoesNotLeak(t *testing.T) {
	inner := &countingProvider{
		MemoryProfileProvider: NewMemoryProfileProvider(&core.UserProfile{UserID: "u1", Embedding: angleEmb(0)}),
		delay:                 30 * time.Millisecond,
	}
	p := NewCachingProfileProvider(inner, time.Minute)

	leaderCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := p.GetUserProfile(leaderCtx, "u1")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return inner.calls.Load() == 1 }, time.Second, time.Millisecond)

	prof, err := p.GetUserProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", prof.UserID)
	assert.ErrorIs(t, <-leaderErr, context.DeadlineExceeded)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachingProfileProvider_FetchTimeout(t *testing.T) {
	inner := &countingProvider{
		MemoryProfileProvider: NewMemoryProfileProvider(&core.UserProfile{UserID: "u1", Embedding: angleEmb(0)}),
		delay:                 20 * time.Millisecond,
	}
	p := NewCachingProfileProvider(inner, time.Minute, WithFetchTimeout(time.Millisecond))
	_, err := p.GetUserProfile(context.Background(), "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachingProfileProvider_MaxEntries(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryProfileProvider(
		&core.UserProfile{UserID: "u1", Embedding: angleEmb(0)},
		&core.UserProfile{UserID: "u2", Embedding: angleEmb(10)},
		&core.UserProfile{UserID: "u3", Embedding: angleEmb(20)},
	)
	p := NewCachingProfileProvider(inner, time.Minute, WithMaxEntries(2))
	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := p.GetUserProfile(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, p.Len(), 2)
	}

	// 过期条目在写入时被清理
	now = now.Add(2 * time.Minute)
	_, err := p.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
}

func testOutcomeStore(t *testing.T, s core.OutcomeStore) {
	ctx := context.Background()
	ts := time.Unix(1700000000, 0)

	ok, err := s.Record(ctx, core.Outcome{JobID: "15-1252", Shown: true, Clicked: true, Timestamp: ts})
	require.NoError(t, err)
	assert.True(t, ok)

	// 重试同一事件不重复计数
	ok, err = s.Record(ctx, core.Outcome{JobID: "15-1252.00", Shown: true, Clicked: true, Timestamp: ts})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Record(ctx, core.Outcome{JobID: "bad", Shown: true, Timestamp: ts})
	assert.True(t, core.IsValidation(err))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Record(ctx, core.Outcome{
				JobID:     "15-1252.00",
				Shown:     true,
				Clicked:   i%5 == 0,
				Timestamp: ts.Add(time.Duration(i+1) * time.Millisecond),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stats, err := s.Stats(ctx, []string{"15-1252.00", "29-1141.00"})
	require.NoError(t, err)
	assert.Equal(t, core.ArmStats{Shown: 51, Clicks: 11}, stats["15-1252.00"])
	_, present := stats["29-1141.00"]
	assert.False(t, present)
}

func TestMemoryOutcomeStore(t *testing.T) {
	testOutcomeStore(t, NewMemoryOutcomeStore())
}

func TestRedisOutcomeStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisOutcomeStore(client, WithKeyPrefix("test:"), WithDedupeTTL(time.Hour))
	defer s.Close()

	testOutcomeStore(t, s)

	assert.Equal(t, "51", mr.HGet("test:arm:15-1252.00", "shown"))
	assert.True(t, mr.Exists(fmt.Sprintf("test:seen:15-1252.00:%d", time.Unix(1700000000, 0).UnixNano())))
}
