// Package vector 提供基于 Milvus 的 core.CandidateStore 实现。
//
// 集合需要包含以下字段（名称可通过 Fields 修改）：
//
//	job_id          VarChar（主键）
//	title           VarChar
//	tags            Array<VarChar>
//	embedding       FloatVector(dim)，索引度量为 COSINE
//	trait_centroid  FloatVector(6) 或 Array<Float>，可选
package vector

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/conv"
	"github.com/rushteam/careerkit/pkg/logging"
)

// Row 是一条检索或查询结果：输出字段名到列值，Score 只在向量检索时有意义。
type Row struct {
	Score  float32
	Fields map[string]any
}

// MilvusClient 是 MilvusCandidateStore 需要的最小 SDK 能力，便于替换与测试。
type MilvusClient interface {
	// Search 返回按相似度降序的结果
	Search(ctx context.Context, collection string, vector []float32, limit int, filter string, outputFields []string) ([]Row, error)
	Query(ctx context.Context, collection, filter string, outputFields []string, limit int) ([]Row, error)
	Count(ctx context.Context, collection string) (int, error)
	Close(ctx context.Context) error
}

// Fields 是集合的字段名映射。
type Fields struct {
	JobID         string `yaml:"job_id" json:"job_id"`
	Title         string `yaml:"title" json:"title"`
	Tags          string `yaml:"tags" json:"tags"`
	Embedding     string `yaml:"embedding" json:"embedding"`
	TraitCentroid string `yaml:"trait_centroid" json:"trait_centroid"`
}

// DefaultFields 返回默认字段名。
func DefaultFields() Fields {
	return Fields{
		JobID:         "job_id",
		Title:         "title",
		Tags:          "tags",
		Embedding:     "embedding",
		TraitCentroid: "trait_centroid",
	}
}

func (f Fields) output() []string {
	out := []string{f.JobID, f.Title, f.Tags, f.Embedding}
	if f.TraitCentroid != "" {
		out = append(out, f.TraitCentroid)
	}
	return out
}

// MilvusCandidateStore 把职业目录放在 Milvus 集合中，按余弦相似度检索。
type MilvusCandidateStore struct {
	client     MilvusClient
	collection string
	dim        int
	fields     Fields
	logger     *zap.Logger
}

// Option 配置 MilvusCandidateStore。
type Option func(*MilvusCandidateStore)

// WithFields 修改字段名映射，空字段保持默认值。
func WithFields(f Fields) Option {
	return func(s *MilvusCandidateStore) {
		if f.JobID != "" {
			s.fields.JobID = f.JobID
		}
		if f.Title != "" {
			s.fields.Title = f.Title
		}
		if f.Tags != "" {
			s.fields.Tags = f.Tags
		}
		if f.Embedding != "" {
			s.fields.Embedding = f.Embedding
		}
		if f.TraitCentroid != "" {
			s.fields.TraitCentroid = f.TraitCentroid
		}
	}
}

// WithLogger 设置日志。
func WithLogger(logger *zap.Logger) Option {
	return func(s *MilvusCandidateStore) { s.logger = logger }
}

// NewMilvusCandidateStore 使用已建立的客户端创建候选存储。
func NewMilvusCandidateStore(client MilvusClient, collection string, dim int, opts ...Option) (*MilvusCandidateStore, error) {
	if client == nil {
		return nil, core.NewValidationError(core.ModuleStore, "milvus client is nil")
	}
	if collection == "" {
		return nil, core.NewValidationError(core.ModuleStore, "milvus collection is required")
	}
	if dim <= 0 {
		return nil, core.NewValidationError(core.ModuleStore, "embedding dim must be positive, got %d", dim)
	}
	s := &MilvusCandidateStore{
		client:     client,
		collection: collection,
		dim:        dim,
		fields:     DefaultFields(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithFields(s.logger, zap.String(logging.FieldStore, s.Name()))
	return s, nil
}

func (s *MilvusCandidateStore) Name() string { return "milvus_candidate" }

// Dim 返回索引的 embedding 维度。
func (s *MilvusCandidateStore) Dim() int { return s.dim }

func (s *MilvusCandidateStore) Size(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, s.collection)
	if err != nil {
		return 0, s.wrap(ctx, "count", err)
	}
	return n, nil
}

func (s *MilvusCandidateStore) Get(ctx context.Context, jobID string) (*core.Candidate, error) {
	filter := s.fields.JobID + " == " + strconv.Quote(jobID)
	rows, err := s.client.Query(ctx, s.collection, filter, s.fields.output(), 1)
	if err != nil {
		return nil, s.wrap(ctx, "get", err)
	}
	if len(rows) == 0 {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeNotFound, "candidate not found: "+jobID)
	}
	return s.decode(rows[0])
}

// Query 实现 core.CandidateStore 接口。IDPrefix 与 AnyTokens 下推为 Milvus 过滤表达式。
func (s *MilvusCandidateStore) Query(ctx context.Context, req *core.CandidateQuery) ([]core.CandidateHit, error) {
	if req == nil {
		return nil, core.NewValidationError(core.ModuleStore, "candidate query is nil")
	}
	if len(req.Vector) != s.dim {
		return nil, core.NewValidationError(core.ModuleStore, "query dimension mismatch: got %d, want %d", len(req.Vector), s.dim)
	}
	if req.K <= 0 {
		return []core.CandidateHit{}, nil
	}

	vec := make([]float32, len(req.Vector))
	for i, x := range req.Vector {
		vec[i] = float32(x)
	}
	filter := s.filterExpr(req)
	rows, err := s.client.Search(ctx, s.collection, vec, req.K, filter, s.fields.output())
	if err != nil {
		return nil, s.wrap(ctx, "search", err)
	}

	hits := make([]core.CandidateHit, 0, len(rows))
	for _, row := range rows {
		c, err := s.decode(row)
		if err != nil {
			// 单条脏数据不影响整个请求
			s.logger.Warn("skip malformed milvus row", zap.Error(err))
			continue
		}
		hits = append(hits, core.CandidateHit{Candidate: c, Distance: 1 - float64(row.Score)})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Candidate.JobID < hits[j].Candidate.JobID
	})
	if len(hits) > req.K {
		hits = hits[:req.K]
	}
	return hits, nil
}

// Close 实现 core.CandidateStore 接口
func (s *MilvusCandidateStore) Close() error {
	return s.client.Close(context.Background())
}

// filterExpr 生成布尔表达式，例如：
//
//	job_id like "15-%" && ARRAY_CONTAINS_ANY(tags, ["data", "data_science"])
func (s *MilvusCandidateStore) filterExpr(req *core.CandidateQuery) string {
	var parts []string
	if req.IDPrefix != "" {
		parts = append(parts, s.fields.JobID+" like "+strconv.Quote(escapeLike(req.IDPrefix)+"%"))
	}
	if len(req.AnyTokens) > 0 {
		tokens := make([]string, 0, len(req.AnyTokens))
		for t := range req.AnyTokens {
			tokens = append(tokens, strconv.Quote(t))
		}
		sort.Strings(tokens)
		parts = append(parts, fmt.Sprintf("ARRAY_CONTAINS_ANY(%s, [%s])", s.fields.Tags, strings.Join(tokens, ", ")))
	}
	return strings.Join(parts, " && ")
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, `\%`, `_`, `\_`).Replace(s)
}

// decode 把一行结果转换为候选；job_id 与标签在这里重新规范化。
func (s *MilvusCandidateStore) decode(row Row) (*core.Candidate, error) {
	id, _ := row.Fields[s.fields.JobID].(string)
	title, _ := row.Fields[s.fields.Title].(string)

	emb, ok := conv.ToFloat64Slice(row.Fields[s.fields.Embedding])
	if !ok || len(emb) != s.dim {
		return nil, core.NewValidationError(core.ModuleStore, "candidate %q: embedding must have %d floats", id, s.dim)
	}
	var centroid core.TraitVector
	if v, present := row.Fields[s.fields.TraitCentroid]; present && v != nil {
		c, ok := conv.ToFloat64Slice(v)
		if !ok {
			return nil, core.NewValidationError(core.ModuleStore, "candidate %q: trait_centroid is not numeric", id)
		}
		if len(c) > 0 {
			centroid = core.TraitVector(c)
		}
	}
	return core.NewCandidate(id, title, core.Embedding(emb), stringSlice(row.Fields[s.fields.Tags]), centroid)
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// wrap 保留 context 错误，其余归为索引不可用。
func (s *MilvusCandidateStore) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return core.NewRetrievalUnavailable(fmt.Errorf("milvus %s: %w", op, err))
}

var _ core.CandidateStore = (*MilvusCandidateStore)(nil)
