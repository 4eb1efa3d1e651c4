// Package feast 从 Feast 在线特征库读取用户画像（embedding 与 RIASEC / Big5 特质向量）。
//
// 使用官方 Feast Go SDK (github.com/feast-dev/feast/sdk/go) 的 gRPC 客户端。
// 通常在外层套一层 store.CachingProfileProvider，避免每个请求都访问特征库。
package feast

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	"github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/conv"
	"github.com/rushteam/careerkit/pkg/logging"
)

// Features 描述画像字段在 Feast 中的特征引用，格式为 "feature_view:feature"。
type Features struct {
	// EntityKey 实体列名，默认 "user_id"
	EntityKey string `yaml:"entity_key" json:"entity_key"`
	// Embedding 必填
	Embedding string `yaml:"embedding" json:"embedding" validate:"required"`
	// RIASEC、Big5 可选，为空时不请求
	RIASEC string `yaml:"riasec" json:"riasec"`
	Big5   string `yaml:"big5" json:"big5"`
}

// refs 返回需要请求的特征列表。
func (f Features) refs() []string {
	out := []string{f.Embedding}
	if f.RIASEC != "" {
		out = append(out, f.RIASEC)
	}
	if f.Big5 != "" {
		out = append(out, f.Big5)
	}
	return out
}

// FetchFunc 执行一次在线特征请求，返回与 Entities 一一对应的行。
type FetchFunc func(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error)

// FromClient 把 SDK 客户端适配为 FetchFunc。
func FromClient(client *feastsdk.GrpcClient) FetchFunc {
	return func(ctx context.Context, req *feastsdk.OnlineFeaturesRequest) ([]feastsdk.Row, error) {
		resp, err := client.GetOnlineFeatures(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("feast get online features failed: %w", err)
		}
		return resp.Rows(), nil
	}
}

// ClientCloser 返回关闭 SDK 客户端连接的 io.Closer。
func ClientCloser(client *feastsdk.GrpcClient) io.Closer {
	if c, ok := any(client).(io.Closer); ok {
		return c
	}
	return io.NopCloser(nil)
}

// DialConfig 是 Feast gRPC 连接配置。
type DialConfig struct {
	Host    string `yaml:"host" json:"host" validate:"required"`
	Port    int    `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	Project string `yaml:"project" json:"project" validate:"required"`
	// Token 非空时使用静态 Token 认证
	Token     string `yaml:"token" json:"token"`
	EnableTLS bool   `yaml:"enable_tls" json:"enable_tls"`
}

// Dial 创建 gRPC 客户端。端口为 0 时使用默认的 6565。
func Dial(cfg DialConfig) (*feastsdk.GrpcClient, error) {
	port := cfg.Port
	if port == 0 {
		port = 6565
	}
	var (
		client *feastsdk.GrpcClient
		err    error
	)
	if cfg.Token != "" {
		client, err = feastsdk.NewSecureGrpcClient(cfg.Host, port, feastsdk.SecurityConfig{
			EnableTLS:  cfg.EnableTLS,
			Credential: feastsdk.NewStaticCredential(cfg.Token),
		})
	} else {
		client, err = feastsdk.NewGrpcClient(cfg.Host, port)
	}
	if err != nil {
		return nil, fmt.Errorf("create feast grpc client %s:%d: %w", cfg.Host, port, err)
	}
	return client, nil
}

// ProfileProvider 实现 core.ProfileProvider。
// embedding 缺失视为用户不存在；特质向量缺失时对应字段为 nil。
type ProfileProvider struct {
	fetch    FetchFunc
	project  string
	features Features
	logger   *zap.Logger

	closer    io.Closer
	closeOnce sync.Once
	closeErr  error
}

// Option 配置 ProfileProvider。
type Option func(*ProfileProvider)

// WithCloser 让 ProfileProvider 持有底层连接，Close 时一并关闭。
func WithCloser(c io.Closer) Option {
	return func(p *ProfileProvider) { p.closer = c }
}

// NewProfileProvider 创建画像提供方。
func NewProfileProvider(fetch FetchFunc, project string, features Features, logger *zap.Logger, opts ...Option) *ProfileProvider {
	if features.EntityKey == "" {
		features.EntityKey = "user_id"
	}
	p := &ProfileProvider{
		fetch:    fetch,
		project:  project,
		features: features,
		logger:   logging.WithFields(logger, zap.String(logging.FieldStore, "feast")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ProfileProvider) Name() string { return "feast_profile" }

func (p *ProfileProvider) GetUserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.NewValidationError(core.ModuleProfile, "user id is required")
	}
	rows, err := p.fetch(ctx, &feastsdk.OnlineFeaturesRequest{
		Features: p.features.refs(),
		Entities: []feastsdk.Row{{p.features.EntityKey: feastsdk.StrVal(userID)}},
		Project:  p.project,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("feast returned %d rows for one entity", len(rows))
	}
	row := rows[0]

	emb, err := vectorFeature(row, p.features.Embedding)
	if err != nil {
		return nil, err
	}
	if len(emb) == 0 {
		return nil, core.NewProfileNotFound(userID)
	}
	prof := &core.UserProfile{UserID: userID, Embedding: emb}
	if p.features.RIASEC != "" {
		if prof.RIASEC, err = vectorFeature(row, p.features.RIASEC); err != nil {
			return nil, err
		}
	}
	if p.features.Big5 != "" {
		if prof.Big5, err = vectorFeature(row, p.features.Big5); err != nil {
			return nil, err
		}
	}
	p.logger.Debug("profile loaded",
		zap.String(logging.FieldUserID, userID),
		zap.Int("embedding_dim", len(emb)),
		zap.Bool("has_riasec", prof.RIASEC != nil),
		zap.Bool("has_big5", prof.Big5 != nil),
	)
	return prof, nil
}

// Close 关闭通过 WithCloser 交给它的连接，只执行一次。
func (p *ProfileProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.closer != nil {
			p.closeErr = p.closer.Close()
		}
	})
	return p.closeErr
}

// vectorFeature 取出一个向量特征。缺失返回 nil；类型无法转换返回 ValidationError。
func vectorFeature(row feastsdk.Row, ref string) ([]float64, error) {
	raw := valueOf(row[ref])
	if raw == nil {
		return nil, nil
	}
	// 部分离线管道把向量写成 JSON 字符串
	if s, ok := raw.(string); ok {
		if s == "" {
			return nil, nil
		}
		var arr []any
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return nil, core.NewValidationError(core.ModuleProfile, "feature %s: invalid json vector: %v", ref, err)
		}
		raw = arr
	}
	vec, ok := conv.ToFloat64Slice(raw)
	if !ok {
		return nil, core.NewValidationError(core.ModuleProfile, "feature %s: not a numeric vector (%T)", ref, raw)
	}
	return vec, nil
}

// valueOf 把 SDK 的 *types.Value 转为 Go 值；未设置的值返回 nil。
func valueOf(v *types.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetVal().(type) {
	case *types.Value_DoubleListVal:
		return val.DoubleListVal.GetVal()
	case *types.Value_FloatListVal:
		return val.FloatListVal.GetVal()
	case *types.Value_Int64ListVal:
		return val.Int64ListVal.GetVal()
	case *types.Value_DoubleVal:
		return []float64{val.DoubleVal}
	case *types.Value_FloatVal:
		return []float64{float64(val.FloatVal)}
	case *types.Value_StringVal:
		return val.StringVal
	case *types.Value_BytesVal:
		return string(val.BytesVal)
	default:
		return nil
	}
}

var _ core.ProfileProvider = (*ProfileProvider)(nil)
