package filter

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/rushteam/careerkit/core"
)

// SeenTracker 记录用户已经看过的职业。
type SeenTracker interface {
	MarkSeen(userID string, jobIDs ...string)
	// Seen 可能误报（布隆过滤器），不会漏报
	Seen(userID, jobID string) bool
}

// BloomSeenTracker 每个用户一个布隆过滤器，进程内保存。
// 用户数超过 MaxUsers 时整体清空，重新累积。
type BloomSeenTracker struct {
	capacity uint
	fpRate   float64
	maxUsers int

	mu    sync.RWMutex
	users map[string]*bloom.BloomFilter
}

// NewBloomSeenTracker 创建追踪器：capacity 是单个用户预期的曝光数，fpRate 是误判率。
func NewBloomSeenTracker(capacity uint, fpRate float64, maxUsers int) *BloomSeenTracker {
	if capacity == 0 {
		capacity = 1000
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	if maxUsers <= 0 {
		maxUsers = 100000
	}
	return &BloomSeenTracker{
		capacity: capacity,
		fpRate:   fpRate,
		maxUsers: maxUsers,
		users:    make(map[string]*bloom.BloomFilter),
	}
}

func (t *BloomSeenTracker) MarkSeen(userID string, jobIDs ...string) {
	if userID == "" || len(jobIDs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bf, ok := t.users[userID]
	if !ok {
		if len(t.users) >= t.maxUsers {
			t.users = make(map[string]*bloom.BloomFilter)
		}
		bf = bloom.NewWithEstimates(t.capacity, t.fpRate)
		t.users[userID] = bf
	}
	for _, id := range jobIDs {
		bf.AddString(id)
	}
}

func (t *BloomSeenTracker) Seen(userID, jobID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bf, ok := t.users[userID]
	return ok && bf.TestString(jobID)
}

// Users 返回当前追踪的用户数。
func (t *BloomSeenTracker) Users() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// SeenFilter 剔除用户已经看过的职业。
type SeenFilter struct {
	Tracker SeenTracker
}

func (f *SeenFilter) Name() string { return "filter.seen" }

func (f *SeenFilter) ShouldFilter(_ context.Context, profile *core.UserProfile, sc *core.ScoredCandidate) (bool, error) {
	if profile == nil || profile.UserID == "" {
		return false, nil
	}
	return f.Tracker.Seen(profile.UserID, sc.JobID), nil
}
