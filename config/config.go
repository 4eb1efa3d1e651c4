// Package config 加载 careerkit 的 YAML 配置并做校验，同时维护选择策略注册表。
//
// 加载顺序：Default() 提供默认值 → YAML 覆盖 → Normalize → validator 校验。
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/feast"
	"github.com/rushteam/careerkit/feedback"
	"github.com/rushteam/careerkit/pipeline"
	"github.com/rushteam/careerkit/service"
	"github.com/rushteam/careerkit/vector"
)

const (
	CatalogFile   = "file"
	CatalogMilvus = "milvus"

	ProfilesFile  = "file"
	ProfilesFeast = "feast"

	ScorerLocal  = "local"
	ScorerRemote = "remote"

	OutcomesNone   = "none"
	OutcomesMemory = "memory"
	OutcomesRedis  = "redis"
)

// Config 是进程级配置。
type Config struct {
	EmbeddingDim int             `yaml:"embedding_dim" json:"embedding_dim" validate:"gte=1"`
	Catalog      CatalogConfig   `yaml:"catalog" json:"catalog"`
	Profiles     ProfilesConfig  `yaml:"profiles" json:"profiles"`
	Scorer       ScorerConfig    `yaml:"scorer" json:"scorer"`
	Outcomes     OutcomesConfig  `yaml:"outcomes" json:"outcomes"`
	Pipeline     pipeline.Config `yaml:"pipeline" json:"pipeline"`
	Selection    SelectionConfig `yaml:"selection" json:"selection"`
	Seen         SeenConfig      `yaml:"seen" json:"seen"`
	Logging      LoggingConfig   `yaml:"logging" json:"logging"`
}

// CatalogConfig 职业目录：本地文件（JSON 数组或 JSON Lines）或 Milvus 集合。
type CatalogConfig struct {
	Source string       `yaml:"source" json:"source" validate:"oneof=file milvus"`
	Path   string       `yaml:"path" json:"path" validate:"required_if=Source file"`
	Milvus MilvusConfig `yaml:"milvus" json:"milvus"`
}

// MilvusConfig 只在 Source 为 milvus 时校验。
type MilvusConfig struct {
	vector.DialConfig `yaml:",inline" validate:"-"`
	Collection        string        `yaml:"collection" json:"collection"`
	Fields            vector.Fields `yaml:"fields" json:"fields" validate:"-"`
}

// ProfilesConfig 画像来源。
type ProfilesConfig struct {
	Source string `yaml:"source" json:"source" validate:"oneof=file feast"`
	// Path 画像文件，Source 为 file 时必填
	Path  string      `yaml:"path" json:"path" validate:"required_if=Source file"`
	Feast FeastConfig `yaml:"feast" json:"feast"`
	// CacheTTL 大于 0 时在画像提供方外层加缓存
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl" validate:"gte=0"`
	// CacheSize 缓存条目上限，0 表示使用默认值 10000
	CacheSize int `yaml:"cache_size" json:"cache_size" validate:"gte=0"`
	// FetchTimeout 合并后的画像请求超时，0 表示使用默认值 2s
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gte=0"`
}

// FeastConfig 只在 Source 为 feast 时校验。
type FeastConfig struct {
	feast.DialConfig `yaml:",inline" validate:"-"`
	Features         feast.Features `yaml:"features" json:"features" validate:"-"`
}

// ScorerConfig 排序模型。
type ScorerConfig struct {
	Kind string `yaml:"kind" json:"kind" validate:"oneof=local remote"`
	// ModelPath 本地模型权重文件，Kind 为 local 时必填
	ModelPath string       `yaml:"model_path" json:"model_path" validate:"required_if=Kind local"`
	Remote    RemoteConfig `yaml:"remote" json:"remote"`
}

// RemoteConfig 是 REST 模型服务配置，只在 Kind 为 remote 时校验。
type RemoteConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" json:"model"`
	Version  string `yaml:"version" json:"version"`
	// Protocol 为 tfserving 或 kserve_v2
	Protocol     string                `yaml:"protocol" json:"protocol" validate:"oneof=tfserving kserve_v2"`
	Signature    string                `yaml:"signature" json:"signature"`
	InputTensor  string                `yaml:"input_tensor" json:"input_tensor"`
	OutputTensor string                `yaml:"output_tensor" json:"output_tensor"`
	Timeout      time.Duration         `yaml:"timeout" json:"timeout"`
	Auth         *service.AuthConfig   `yaml:"auth" json:"auth"`
	Breaker      service.BreakerConfig `yaml:"breaker" json:"breaker"`
}

// OutcomesConfig 曝光/点击统计存储。
type OutcomesConfig struct {
	Kind  string      `yaml:"kind" json:"kind" validate:"oneof=none memory redis"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
	// Kafka 配置了 brokers 时，新反馈事件同时投递到 Kafka
	Kafka feedback.KafkaConfig `yaml:"kafka" json:"kafka"`
}

// RedisConfig 只在 Kind 为 redis 时校验。
type RedisConfig struct {
	Addr      string        `yaml:"addr" json:"addr"`
	Password  string        `yaml:"password" json:"password"`
	DB        int           `yaml:"db" json:"db"`
	KeyPrefix string        `yaml:"key_prefix" json:"key_prefix"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl" json:"dedupe_ttl"`
}

// SelectionConfig 选择策略参数。
type SelectionConfig struct {
	Policy string `yaml:"policy" json:"policy" validate:"required"`
	// Seed 非 0 时 Bandit 策略对同一请求 ID 可复现
	Seed       uint64  `yaml:"seed" json:"seed"`
	Weight     float64 `yaml:"weight" json:"weight" validate:"gte=0,lte=1"`
	PriorAlpha float64 `yaml:"prior_alpha" json:"prior_alpha" validate:"gt=0"`
	PriorBeta  float64 `yaml:"prior_beta" json:"prior_beta" validate:"gt=0"`
	UCBC       float64 `yaml:"ucb_c" json:"ucb_c" validate:"gt=0"`
	// MaxPerGroup 大于 0 时同一职业大类最多出现的条数
	MaxPerGroup int `yaml:"max_per_group" json:"max_per_group" validate:"gte=0"`
}

// SeenConfig 记录用户看过的职业，启用后请求可以设置 exclude_seen。
type SeenConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Capacity 单个用户预期的曝光数
	Capacity          uint    `yaml:"capacity" json:"capacity"`
	FalsePositiveRate float64 `yaml:"false_positive_rate" json:"false_positive_rate" validate:"gte=0,lt=1"`
	MaxUsers          int     `yaml:"max_users" json:"max_users" validate:"gte=0"`
}

// LoggingConfig 日志输出。
type LoggingConfig struct {
	JSON  bool `yaml:"json" json:"json"`
	Debug bool `yaml:"debug" json:"debug"`
}

// Default 返回默认配置。目录路径、画像来源与模型路径没有默认值。
func Default() *Config {
	const dim = 768
	return &Config{
		EmbeddingDim: dim,
		Catalog:      CatalogConfig{Source: CatalogFile},
		Profiles:     ProfilesConfig{Source: ProfilesFile, CacheTTL: time.Minute},
		Scorer: ScorerConfig{
			Kind: ScorerLocal,
			Remote: RemoteConfig{
				Protocol: service.ProtocolTFServing,
				Timeout:  100 * time.Millisecond,
				Breaker: service.DefaultBreakerConfig(),
			},
		},
		Outcomes: OutcomesConfig{
			Kind:  OutcomesMemory,
			Redis: RedisConfig{Addr: "localhost:6379", KeyPrefix: "careerkit:"},
		},
		Pipeline: pipeline.DefaultConfig(dim),
		Seen:     SeenConfig{Capacity: 1000, FalsePositiveRate: 0.01, MaxUsers: 100000},
		Selection: SelectionConfig{
			Policy:     "deterministic",
			Weight:     0.3,
			PriorAlpha: 1,
			PriorBeta:  1,
			UCBC:       0.1,
		},
	}
}

// Load 读取 YAML 文件，覆盖默认值后校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 内容，覆盖默认值后校验。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.NewValidationError(core.ModulePipeline, "parse yaml: %v", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize 同步派生字段：编排层的 embedding 维度跟随顶层配置，策略名统一小写。
func (c *Config) Normalize() {
	c.Pipeline.EmbeddingDim = c.EmbeddingDim
	c.Selection.Policy = strings.ToLower(strings.TrimSpace(c.Selection.Policy))
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 做结构校验，再做跨字段校验；错误统一为 ValidationError。
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return core.NewValidationError(core.ModulePipeline, "invalid config: %s", describe(err))
	}
	if c.Catalog.Source == CatalogMilvus && (c.Catalog.Milvus.Address == "" || c.Catalog.Milvus.Collection == "") {
		return core.NewValidationError(core.ModulePipeline, "catalog.milvus requires address and collection")
	}
	if c.Profiles.Source == ProfilesFeast {
		f := c.Profiles.Feast
		if f.Host == "" || f.Project == "" || f.Features.Embedding == "" {
			return core.NewValidationError(core.ModulePipeline, "profiles.feast requires host, project and features.embedding")
		}
	}
	if c.Scorer.Kind == ScorerRemote && (c.Scorer.Remote.Endpoint == "" || c.Scorer.Remote.Model == "") {
		return core.NewValidationError(core.ModulePipeline, "scorer.remote requires endpoint and model")
	}
	if c.Outcomes.Kind == OutcomesRedis && c.Outcomes.Redis.Addr == "" {
		return core.NewValidationError(core.ModulePipeline, "outcomes.redis.addr is required")
	}
	if len(c.Outcomes.Kafka.Brokers) > 0 && (c.Outcomes.Kafka.Topic == "" || c.Outcomes.Kind == OutcomesNone) {
		return core.NewValidationError(core.ModulePipeline, "outcomes.kafka requires a topic and an outcome store")
	}
	if _, ok := lookupPolicy(c.Selection.Policy); !ok {
		return core.NewValidationError(core.ModulePipeline, "unsupported selection policy %q (supported: %v)",
			c.Selection.Policy, SupportedPolicies())
	}
	return nil
}

// describe 把 validator 的错误压成一行：字段路径 + 失败的规则。
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Namespace()+" ("+rule+")")
	}
	return strings.Join(parts, ", ")
}
