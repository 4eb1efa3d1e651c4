package pipeline

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rushteam/careerkit/recall"
)

// StageTimeouts 是各阶段的超时。0 表示不单独设置，只受请求 ctx 约束。
type StageTimeouts struct {
	Profile   time.Duration `yaml:"profile" json:"profile" validate:"gte=0"`
	Retrieval time.Duration `yaml:"retrieval" json:"retrieval" validate:"gte=0"`
	Ranking   time.Duration `yaml:"ranking" json:"ranking" validate:"gte=0"`
	Selection time.Duration `yaml:"selection" json:"selection" validate:"gte=0"`
}

// RetryConfig 是检索阶段的指数退避重试配置。MaxAttempts 包含首次调用。
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts" validate:"gte=1,lte=10"`
	InitialInterval time.Duration `yaml:"initial_interval" json:"initial_interval" validate:"gte=0"`
	MaxInterval     time.Duration `yaml:"max_interval" json:"max_interval" validate:"gte=0"`
	Multiplier      float64       `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
}

// backOff 根据配置构造退避策略（不含 ctx）。
func (c RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	if c.Multiplier >= 1 {
		b.Multiplier = c.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	attempts := c.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

// Config 是编排层配置。
type Config struct {
	EmbeddingDim int           `yaml:"embedding_dim" json:"embedding_dim" validate:"gte=1"`
	Retrieval    recall.Config `yaml:"retrieval" json:"retrieval"`
	Timeouts     StageTimeouts `yaml:"timeouts" json:"timeouts"`
	Retry        RetryConfig   `yaml:"retry" json:"retry"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig(embeddingDim int) Config {
	return Config{
		EmbeddingDim: embeddingDim,
		Retrieval:    recall.DefaultConfig(),
		Timeouts: StageTimeouts{
			Profile:   100 * time.Millisecond,
			Retrieval: 200 * time.Millisecond,
			Ranking:   150 * time.Millisecond,
			Selection: 50 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts:     3,
			InitialInterval: 20 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
			Multiplier:      2,
		},
	}
}
