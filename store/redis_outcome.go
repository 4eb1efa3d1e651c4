package store

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/careerkit/core"
)

// recordOutcomeScript 在一次原子执行中完成幂等判断与计数累加：
// 幂等键写入成功才累加，避免"已标记但未计数"的中间状态。
var recordOutcomeScript = redis.NewScript(`
if redis.call('SET', KEYS[1], '1', 'NX', 'PX', ARGV[3]) then
  if ARGV[1] == '1' then redis.call('HINCRBY', KEYS[2], 'shown', 1) end
  if ARGV[2] == '1' then redis.call('HINCRBY', KEYS[2], 'clicks', 1) end
  return 1
end
return 0
`)

// RedisOutcomeStore 是 Redis 实现的反馈统计，多实例部署时共享 Bandit 后验。
//
// 键设计：
//   - {prefix}arm:{job_id}              Hash，字段 shown / clicks
//   - {prefix}seen:{job_id}:{unix_nano} 幂等键，带过期时间
type RedisOutcomeStore struct {
	client    redis.UniversalClient
	prefix    string
	dedupeTTL time.Duration
}

// RedisOutcomeOption 配置项
type RedisOutcomeOption func(*RedisOutcomeStore)

// WithKeyPrefix 设置键前缀，默认 "careerkit:"。
func WithKeyPrefix(prefix string) RedisOutcomeOption {
	return func(s *RedisOutcomeStore) { s.prefix = prefix }
}

// WithDedupeTTL 设置幂等键保留时间，默认 30 天。
func WithDedupeTTL(ttl time.Duration) RedisOutcomeOption {
	return func(s *RedisOutcomeStore) {
		if ttl > 0 {
			s.dedupeTTL = ttl
		}
	}
}

// NewRedisOutcomeStore 使用已有客户端创建，Close 会同时关闭该客户端。
func NewRedisOutcomeStore(client redis.UniversalClient, opts ...RedisOutcomeOption) *RedisOutcomeStore {
	s := &RedisOutcomeStore{
		client:    client,
		prefix:    "careerkit:",
		dedupeTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedisOutcomeStore 连接 Redis 并做一次 Ping。
func DialRedisOutcomeStore(ctx context.Context, addr, password string, db int, opts ...RedisOutcomeOption) (*RedisOutcomeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "redis ping: "+err.Error())
	}
	return NewRedisOutcomeStore(client, opts...), nil
}

func (r *RedisOutcomeStore) Name() string { return "redis_outcome" }

func (r *RedisOutcomeStore) armKey(jobID string) string { return r.prefix + "arm:" + jobID }

func (r *RedisOutcomeStore) seenKey(o core.Outcome) string {
	return r.prefix + "seen:" + o.JobID + ":" + strconv.FormatInt(o.Timestamp.UnixNano(), 10)
}

func (r *RedisOutcomeStore) Record(ctx context.Context, o core.Outcome) (bool, error) {
	o, err := o.Validate()
	if err != nil {
		return false, err
	}
	n, err := recordOutcomeScript.Run(ctx, r.client,
		[]string{r.seenKey(o), r.armKey(o.JobID)},
		boolArg(o.Shown), boolArg(o.Clicked), r.dedupeTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisOutcomeStore) Stats(ctx context.Context, jobIDs []string) (map[string]core.ArmStats, error) {
	out := make(map[string]core.ArmStats, len(jobIDs))
	if len(jobIDs) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.SliceCmd, len(jobIDs))
	for i, id := range jobIDs {
		cmds[i] = pipe.HMGet(ctx, r.armKey(id), "shown", "clicks")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	for i, id := range jobIDs {
		vals, err := cmds[i].Result()
		if err != nil {
			return nil, err
		}
		shown, okShown := parseCount(vals[0])
		clicks, okClicks := parseCount(vals[1])
		if !okShown && !okClicks {
			continue
		}
		out[id] = core.ArmStats{Shown: shown, Clicks: clicks}
	}
	return out, nil
}

func (r *RedisOutcomeStore) Close() error {
	return r.client.Close()
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func parseCount(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var _ core.OutcomeStore = (*RedisOutcomeStore)(nil)
