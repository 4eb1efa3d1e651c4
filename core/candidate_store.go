package core

import "context"

// CandidateStore 是职业目录向量索引的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 不限定 ANN 算法，只约定契约：按余弦距离升序返回最近邻
//   - 进程启动时加载，请求期间只读，必须支持并发读
//
// 实现：
//   - store.MemoryCandidateStore（精确暴力检索）
//   - 其他向量数据库只需实现此接口
type CandidateStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// Size 返回目录中的候选总数，用于限制 fetch_k
	Size(ctx context.Context) (int, error)

	// Query 返回与向量最近的 K 个候选，按 Distance 升序排列
	Query(ctx context.Context, req *CandidateQuery) ([]CandidateHit, error)

	// Get 按 JobID 读取候选元数据；不存在时返回 NOT_FOUND
	Get(ctx context.Context, jobID string) (*Candidate, error)

	// Close 释放索引句柄
	Close() error
}

// CandidateQuery 向量检索请求
type CandidateQuery struct {
	// Vector 查询向量（单位向量）
	Vector Embedding

	// K 返回的最近邻个数
	K int

	// IDPrefix 可选的 job_id 前缀预过滤
	IDPrefix string

	// AnyTokens 可选的 token 预过滤：至少命中一个（已归一化）
	AnyTokens map[string]struct{}
}

// CandidateHit 单个检索结果
type CandidateHit struct {
	Candidate *Candidate

	// Distance 余弦距离 = 1 - cosine
	Distance float64
}
