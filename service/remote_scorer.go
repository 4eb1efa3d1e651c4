package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/rushteam/careerkit/core"
	"github.com/rushteam/careerkit/pkg/conv"
	"github.com/rushteam/careerkit/pkg/logging"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `yaml:"type" json:"type" validate:"omitempty,oneof=basic bearer api_key"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Token    string `yaml:"token" json:"token"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// BreakerConfig 是熔断器配置。
type BreakerConfig struct {
	// MaxRequests 半开状态允许通过的请求数
	MaxRequests uint32 `yaml:"max_requests" json:"max_requests"`
	// Interval 闭合状态下清零计数的周期，0 表示不清零
	Interval time.Duration `yaml:"interval" json:"interval"`
	// Timeout 打开状态持续多久后进入半开
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// FailureThreshold 连续失败多少次后打开
	FailureThreshold uint32 `yaml:"failure_threshold" json:"failure_threshold"`
}

// DefaultBreakerConfig 返回默认熔断配置。
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxRequests: 1, Timeout: 30 * time.Second, FailureThreshold: 5}
}

// 远程模型服务协议
const (
	ProtocolTFServing = "tfserving"
	ProtocolKServeV2  = "kserve_v2"
)

// RemoteScorer 通过 REST 协议调用远程打分模型，支持两种协议。
//
// TensorFlow Serving / KServe V1（默认）：
//
//	POST {endpoint}/v1/models/{name}[/versions/{v}]:predict
//	{"signature_name": "serving_default", "instances": [[...], [...]]}
//	→ {"predictions": [logit, ...]}  或  {"predictions": [[logit], ...]}
//
// KServe V2（Open Inference Protocol）：
//
//	POST {endpoint}/v2/models/{name}[/versions/{v}]/infer
//	{"inputs": [{"name": "input0", "shape": [n, dim], "datatype": "FP64", "data": [...]}]}
//	→ {"outputs": [{"name": "...", "shape": [n, 1], "data": [logit, ...]}]}
//
// 调用经过熔断器：连续失败达到阈值后直接返回 ScorerUnavailable，排序阶段据此降级。
// 远程模型必须输出 logit，与本地打分器一致。
type RemoteScorer struct {
	// Endpoint 服务地址，例如 "http://localhost:8501"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，为空则使用最新版本）
	ModelVersion string

	// Protocol 协议，默认 ProtocolTFServing
	Protocol string

	// SignatureName 签名名称（仅 TF Serving，默认为 "serving_default"）
	SignatureName string

	// V2InputName、V2OutputName 是 KServe V2 的输入/输出张量名；输出名为空时取第一个输出
	V2InputName  string
	V2OutputName string

	Timeout time.Duration
	Auth    *AuthConfig

	inputDim   int
	breakerCfg BreakerConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]float64]
	logger     *zap.Logger
}

// Option 是 RemoteScorer 的配置选项
type Option func(*RemoteScorer)

// WithVersion 设置模型版本
func WithVersion(version string) Option {
	return func(c *RemoteScorer) { c.ModelVersion = version }
}

// WithProtocol 设置协议：ProtocolTFServing 或 ProtocolKServeV2
func WithProtocol(protocol string) Option {
	return func(c *RemoteScorer) {
		if protocol != "" {
			c.Protocol = protocol
		}
	}
}

// WithV2Tensors 设置 KServe V2 的输入/输出张量名
func WithV2Tensors(input, output string) Option {
	return func(c *RemoteScorer) {
		if input != "" {
			c.V2InputName = input
		}
		c.V2OutputName = output
	}
}

// WithSignature 设置签名名称
func WithSignature(name string) Option {
	return func(c *RemoteScorer) { c.SignatureName = name }
}

// WithTimeout 设置单次 HTTP 调用超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *RemoteScorer) { c.Timeout = timeout }
}

// WithAuth 设置认证信息
func WithAuth(auth *AuthConfig) Option {
	return func(c *RemoteScorer) { c.Auth = auth }
}

// WithInputDim 声明模型期望的特征维度，用于调用前校验
func WithInputDim(dim int) Option {
	return func(c *RemoteScorer) { c.inputDim = dim }
}

// WithBreaker 设置熔断参数
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *RemoteScorer) { c.breakerCfg = cfg }
}

// WithHTTPClient 使用自定义 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *RemoteScorer) { c.httpClient = hc }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(c *RemoteScorer) { c.logger = logger }
}

// NewRemoteScorer 创建远程打分器。
func NewRemoteScorer(endpoint, modelName string, opts ...Option) *RemoteScorer {
	c := &RemoteScorer{
		Endpoint:      endpoint,
		ModelName:     modelName,
		Protocol:      ProtocolTFServing,
		SignatureName: "serving_default",
		V2InputName:   "input0",
		Timeout:       5 * time.Second,
		breakerCfg:    DefaultBreakerConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.Timeout}
	}
	c.logger = logging.WithFields(c.logger, zap.String(logging.FieldScorer, c.Name()))

	threshold := c.breakerCfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "scorer." + modelName,
		MaxRequests: c.breakerCfg.MaxRequests,
		Interval:    c.breakerCfg.Interval,
		Timeout:     c.breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// 调用方主动取消不计入失败
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("scorer circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

func (c *RemoteScorer) Name() string  { return "remote." + c.ModelName }
func (c *RemoteScorer) InputDim() int { return c.inputDim }

// State 返回熔断器当前状态。
func (c *RemoteScorer) State() gobreaker.State { return c.breaker.State() }

// ScoreBatch 实现 core.Scorer 接口
func (c *RemoteScorer) ScoreBatch(ctx context.Context, features [][]float64) ([]float64, error) {
	if len(features) == 0 {
		return []float64{}, nil
	}
	// 输入问题在熔断器之外判定，不计入服务失败
	want := c.inputDim
	if want <= 0 {
		want = len(features[0])
	}
	for i, x := range features {
		if len(x) != want {
			return nil, core.NewValidationError(core.ModuleService, "feature row %d: got %d columns, want %d", i, len(x), want)
		}
	}

	logits, err := c.breaker.Execute(func() ([]float64, error) {
		logits, err := c.predict(ctx, features)
		if err != nil {
			return nil, err
		}
		if len(logits) != len(features) {
			return nil, fmt.Errorf("model %s returned %d predictions for %d rows", c.ModelName, len(logits), len(features))
		}
		return logits, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, core.NewScorerUnavailable(err)
	}
	return logits, nil
}

type predictRequest struct {
	SignatureName string      `json:"signature_name,omitempty"`
	Instances     [][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions []any  `json:"predictions"`
	Error       string `json:"error,omitempty"`
}

type v2Tensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type v2InferRequest struct {
	Inputs []v2Tensor `json:"inputs"`
}

type v2InferResponse struct {
	ModelName string `json:"model_name"`
	Outputs   []struct {
		Name  string `json:"name"`
		Shape []int  `json:"shape"`
		Data  []any  `json:"data"`
	} `json:"outputs"`
	Error string `json:"error,omitempty"`
}

func (c *RemoteScorer) predict(ctx context.Context, features [][]float64) ([]float64, error) {
	if c.Protocol == ProtocolKServeV2 {
		return c.inferV2(ctx, features)
	}
	var result predictResponse
	if err := c.post(ctx, c.modelURL()+":predict", predictRequest{SignatureName: c.SignatureName, Instances: features}, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("model server error: %s", result.Error)
	}

	logits := make([]float64, len(result.Predictions))
	for i, p := range result.Predictions {
		v, ok := conv.Scalar(p)
		if !ok {
			return nil, fmt.Errorf("unexpected prediction %d: %T", i, p)
		}
		logits[i] = v
	}
	return logits, nil
}

// inferV2 把特征矩阵按行优先展平为一个 [n, dim] 的 FP64 张量。
func (c *RemoteScorer) inferV2(ctx context.Context, features [][]float64) ([]float64, error) {
	dim := len(features[0])
	data := make([]float64, 0, len(features)*dim)
	for _, x := range features {
		data = append(data, x...)
	}
	req := v2InferRequest{Inputs: []v2Tensor{{
		Name:     c.V2InputName,
		Shape:    []int{len(features), dim},
		Datatype: "FP64",
		Data:     data,
	}}}

	var result v2InferResponse
	if err := c.post(ctx, c.modelURLV2()+"/infer", req, &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("model server error: %s", result.Error)
	}
	if len(result.Outputs) == 0 {
		return nil, fmt.Errorf("kserve v2 empty outputs")
	}
	out := result.Outputs[0]
	if c.V2OutputName != "" {
		found := false
		for _, o := range result.Outputs {
			if o.Name == c.V2OutputName {
				out, found = o, true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("kserve v2 output %q not found", c.V2OutputName)
		}
	}
	logits := make([]float64, len(out.Data))
	for i, d := range out.Data {
		v, ok := conv.ToFloat64(d)
		if !ok {
			return nil, fmt.Errorf("unexpected output %d: %T", i, d)
		}
		logits[i] = v
	}
	return logits, nil
}

// post 发送 JSON 请求并解码 200 响应；非 200 视为服务端错误。
func (c *RemoteScorer) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("model server error: status=%d, body=%s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *RemoteScorer) modelURL() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
}

func (c *RemoteScorer) modelURLV2() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v2/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v2/models/%s", c.Endpoint, c.ModelName)
}

// addAuth 添加认证信息到 HTTP 请求
func (c *RemoteScorer) addAuth(req *http.Request) {
	if c.Auth == nil {
		return
	}
	switch c.Auth.Type {
	case "basic":
		req.SetBasicAuth(c.Auth.Username, c.Auth.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+c.Auth.Token)
	case "api_key":
		req.Header.Set("X-API-Key", c.Auth.APIKey)
	}
}

// Health 检查模型状态接口：TF Serving 为 GET /v1/models/{name}，KServe V2 为 GET /v2/models/{name}/ready。
func (c *RemoteScorer) Health(ctx context.Context) error {
	url := c.modelURL()
	if c.Protocol == ProtocolKServeV2 {
		url = c.modelURLV2() + "/ready"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.addAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.NewScorerUnavailable(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.NewScorerUnavailable(fmt.Errorf("health check failed: status=%d", resp.StatusCode))
	}
	return nil
}

// Close 释放空闲连接
func (c *RemoteScorer) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ core.Scorer = (*RemoteScorer)(nil)
