package store

import (
	"context"
	"sync"

	"github.com/rushteam/careerkit/core"
)

// MemoryOutcomeStore 是进程内的反馈统计实现。
// 所有写入经过同一把互斥锁，并发累加不会丢失；已见过的 (job_id, timestamp) 直接忽略。
type MemoryOutcomeStore struct {
	mu    sync.Mutex
	stats map[string]core.ArmStats
	seen  map[outcomeKey]struct{}
}

type outcomeKey struct {
	jobID string
	ts    int64
}

func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{
		stats: make(map[string]core.ArmStats),
		seen:  make(map[outcomeKey]struct{}),
	}
}

func (m *MemoryOutcomeStore) Name() string { return "memory_outcome" }

func (m *MemoryOutcomeStore) Record(ctx context.Context, o core.Outcome) (bool, error) {
	o, err := o.Validate()
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	key := outcomeKey{jobID: o.JobID, ts: o.Timestamp.UnixNano()}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[key]; dup {
		return false, nil
	}
	m.seen[key] = struct{}{}

	s := m.stats[o.JobID]
	if o.Shown {
		s.Shown++
	}
	if o.Clicked {
		s.Clicks++
	}
	m.stats[o.JobID] = s
	return true, nil
}

func (m *MemoryOutcomeStore) Stats(ctx context.Context, jobIDs []string) (map[string]core.ArmStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]core.ArmStats, len(jobIDs))
	for _, id := range jobIDs {
		if s, ok := m.stats[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func (m *MemoryOutcomeStore) Close() error { return nil }

var _ core.OutcomeStore = (*MemoryOutcomeStore)(nil)
