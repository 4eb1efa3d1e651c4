package core

import (
	"context"
	"time"
)

// Outcome 是一次展示/点击反馈。(JobID, Timestamp) 构成幂等键，重试不会重复计数。
type Outcome struct {
	JobID string `json:"job_id"`
	// UserID 可选，用于记录用户已看过的职业
	UserID    string    `json:"user_id,omitempty"`
	Shown     bool      `json:"shown"`
	Clicked   bool      `json:"clicked"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate 校验反馈事件，并返回 JobID 规范化后的副本。
func (o Outcome) Validate() (Outcome, error) {
	id, err := NormalizeJobID(o.JobID)
	if err != nil {
		return o, err
	}
	if o.Timestamp.IsZero() {
		return o, NewValidationError(ModuleStore, "outcome timestamp is required")
	}
	if o.Clicked && !o.Shown {
		return o, NewValidationError(ModuleStore, "outcome for %s is clicked but not shown", id)
	}
	o.JobID = id
	return o, nil
}

// ArmStats 是单个职业的曝光/点击累计。
type ArmStats struct {
	Shown  int64 `json:"shown"`
	Clicks int64 `json:"clicks"`
}

// OutcomeStore 保存 Bandit 策略使用的曝光/点击统计。
//
// 这是核心链路中唯一可变的持久状态，只能通过 Record 显式写入，
// 从不根据选择结果隐式推断。
//
// 实现：
//   - store.MemoryOutcomeStore（进程内，互斥锁）
//   - store.RedisOutcomeStore（HINCRBY 原子累加 + SETNX 幂等键）
type OutcomeStore interface {
	Name() string

	// Record 追加一条反馈；重复的 (JobID, Timestamp) 返回 recorded=false 且不计数
	Record(ctx context.Context, o Outcome) (recorded bool, err error)

	// Stats 批量读取统计，缺失的 JobID 不出现在结果中
	Stats(ctx context.Context, jobIDs []string) (map[string]ArmStats, error)

	Close() error
}
