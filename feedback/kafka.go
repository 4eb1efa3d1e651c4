// Package feedback 把曝光/点击反馈投递到 Kafka，供离线训练与 Bandit 统计回放使用。
//
// KafkaOutcomeStore 包装一个 core.OutcomeStore：先写入统计，成功且非重复时再异步投递事件，
// 投递失败只记日志与指标，不影响写入结果。
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/metrics"
	"github.com/rushteam/careerkit/pkg/logging"
)

// Producer 是 *kgo.Client 的生产者子集。
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// Event 是投递到 Kafka 的消息体。
type Event struct {
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id,omitempty"`
	Shown      bool      `json:"shown"`
	Clicked    bool      `json:"clicked"`
	Timestamp  time.Time `json:"timestamp"`
	RecordedAt time.Time `json:"recorded_at"`
}

// KafkaConfig 是生产者配置。
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" json:"brokers"`
	Topic    string   `yaml:"topic" json:"topic"`
	ClientID string   `yaml:"client_id" json:"client_id"`
	// Acks: all / leader / none，默认 leader
	Acks string `yaml:"acks" json:"acks" validate:"omitempty,oneof=all leader none"`
	// Compression: gzip / snappy / lz4 / zstd，空表示不压缩
	Compression  string        `yaml:"compression" json:"compression" validate:"omitempty,oneof=gzip snappy lz4 zstd"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	FlushTimeout time.Duration `yaml:"flush_timeout" json:"flush_timeout"`
}

// Dial 按配置创建 franz-go 客户端。只有 acks=all 时开启幂等写入。
func Dial(cfg KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, core.NewValidationError(core.ModuleStore, "kafka brokers are required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "careerkit-feedback"
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.Topic),
	}
	switch cfg.Acks {
	case "all":
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case "none":
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, kgo.RecordRetries(cfg.MaxRetries))
	}
	switch cfg.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// KafkaOutcomeStore 在写入统计后把新事件投递到 Kafka。
type KafkaOutcomeStore struct {
	next         core.OutcomeStore
	producer     Producer
	topic        string
	flushTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// NewKafkaOutcomeStore 包装 next；消息 key 为 job_id，同一职业的事件保持分区内有序。
func NewKafkaOutcomeStore(next core.OutcomeStore, producer Producer, topic string, flushTimeout time.Duration, logger *zap.Logger) (*KafkaOutcomeStore, error) {
	if next == nil || producer == nil {
		return nil, core.NewValidationError(core.ModuleStore, "kafka outcome store needs an outcome store and a producer")
	}
	if topic == "" {
		return nil, core.NewValidationError(core.ModuleStore, "kafka topic is required")
	}
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &KafkaOutcomeStore{
		next:         next,
		producer:     producer,
		topic:        topic,
		flushTimeout: flushTimeout,
		now:          time.Now,
		logger:       logging.WithFields(logger, zap.String(logging.FieldStore, next.Name()), zap.String("topic", topic)),
	}, nil
}

func (s *KafkaOutcomeStore) Name() string { return s.next.Name() + "+kafka" }

func (s *KafkaOutcomeStore) Record(ctx context.Context, o core.Outcome) (bool, error) {
	recorded, err := s.next.Record(ctx, o)
	if err != nil || !recorded {
		return recorded, err
	}
	s.publish(ctx, o)
	return true, nil
}

func (s *KafkaOutcomeStore) Stats(ctx context.Context, jobIDs []string) (map[string]core.ArmStats, error) {
	return s.next.Stats(ctx, jobIDs)
}

// Close 先等待未完成的投递，再关闭生产者与被包装的存储。
func (s *KafkaOutcomeStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	flushErr := s.producer.Flush(ctx)
	s.producer.Close()
	return errors.Join(flushErr, s.next.Close())
}

func (s *KafkaOutcomeStore) publish(ctx context.Context, o core.Outcome) {
	value, err := json.Marshal(Event{
		JobID:      o.JobID,
		UserID:     o.UserID,
		Shown:      o.Shown,
		Clicked:    o.Clicked,
		Timestamp:  o.Timestamp,
		RecordedAt: s.now().UTC(),
	})
	if err != nil {
		metrics.RecordPublish(err)
		s.logger.Error("encode outcome event", zap.Error(err))
		return
	}
	rec := &kgo.Record{Topic: s.topic, Key: []byte(o.JobID), Value: value}
	// 投递不随请求取消
	s.producer.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
		metrics.RecordPublish(err)
		if err != nil {
			s.logger.Warn("publish outcome event failed",
				zap.String("job_id", string(r.Key)),
				zap.Error(err),
			)
		}
	})
}

var _ core.OutcomeStore = (*KafkaOutcomeStore)(nil)
