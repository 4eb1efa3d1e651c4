// Package logging 集中定义日志字段名和 zap logger 的构造方式。
package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 结构化日志字段名。
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldStage     = "stage"
	FieldReason    = "reason"
	FieldPolicy    = "policy"
	FieldScorer    = "scorer"
	FieldStore     = "store"
	FieldAttempt   = "attempt"
)

// New 构造 logger。json 为 false 时使用 console 编码。
func New(json bool, debug bool) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	encoding := "console"
	if json {
		encoding = "json"
	}
	if debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.Config{
		Encoding:         encoding,
		Level:            zap.NewAtomicLevelAt(level),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:   "msg",
			LevelKey:     "level",
			EncodeLevel:  zapcore.LowercaseLevelEncoder,
			TimeKey:      "time",
			EncodeTime:   zapcore.RFC3339TimeEncoder,
			CallerKey:    "caller",
			EncodeCaller: zapcore.ShortCallerEncoder,
		},
	}
	return cfg.Build()
}

// WithFields 给 logger 附加字段；logger 为 nil 时退化为 no-op。
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}

type requestIDKey struct{}

// NewRequestID 生成请求 ID。
func NewRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID 把请求 ID 放入 ctx。空白 ID 会被忽略。
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 取出请求 ID，不存在时返回空串。
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ForContext 返回带 request_id 字段的 logger（ctx 中没有时原样返回）。
func ForContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return WithFields(logger, zap.String(FieldRequestID, id))
	}
	return WithFields(logger)
}
