package core

import (
	"context"
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - Kind 决定编排层的处理策略（重试 / 降级 / 快速失败）
//   - Stage 记录错误发生的阶段，用于区分"检索超时"与"排序超时"
//   - 通过 Unwrap 保留底层原因，支持 errors.Is / errors.As
type DomainError struct {
	Kind    ErrorKind // 错误类别
	Code    string    // 错误代码（如 "NOT_FOUND", "UNAVAILABLE"）
	Message string    // 错误消息
	Module  string    // 模块名称（如 "store", "rank"）
	Stage   Stage     // 发生阶段（可选）
	Err     error     // 底层原因（可选）
}

func (e *DomainError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = string(e.Stage) + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrScorerUnavailable) 这类哨兵比较按 Kind 生效。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Stage == "" || t.Stage == e.Stage)
}

// ErrorKind 是错误分类，对应编排层的处理策略。
type ErrorKind string

const (
	KindProfileNotFound      ErrorKind = "profile_not_found"
	KindRetrievalUnavailable ErrorKind = "retrieval_unavailable"
	KindScorerUnavailable    ErrorKind = "scorer_unavailable"
	KindValidation           ErrorKind = "validation"
	KindTimeout              ErrorKind = "timeout"
	KindInternal             ErrorKind = "internal"
)

// Stage 标记 Pipeline 中的阶段。
type Stage string

const (
	StageProfile   Stage = "profile"
	StageRetrieval Stage = "retrieval"
	StageRanking   Stage = "ranking"
	StageSelection Stage = "selection"
	StageFeedback  Stage = "feedback"
)

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeTimeout       = "TIMEOUT"        // 超时
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误
)

// 模块名称常量
const (
	ModuleStore    = "store"
	ModuleProfile  = "profile"
	ModuleFeature  = "feature"
	ModuleRecall   = "recall"
	ModuleRank     = "rank"
	ModuleRerank   = "rerank"
	ModuleService  = "service"
	ModulePipeline = "pipeline"
)

// 哨兵错误，仅用于 errors.Is 比较。
var (
	ErrProfileNotFound      = &DomainError{Kind: KindProfileNotFound}
	ErrRetrievalUnavailable = &DomainError{Kind: KindRetrievalUnavailable}
	ErrScorerUnavailable    = &DomainError{Kind: KindScorerUnavailable}
	ErrValidation           = &DomainError{Kind: KindValidation}
	ErrTimeout              = &DomainError{Kind: KindTimeout}
)

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Kind:    kindForCode(code),
		Module:  module,
		Code:    code,
		Message: message,
	}
}

func kindForCode(code string) ErrorKind {
	switch code {
	case ErrorCodeInvalidInput:
		return KindValidation
	case ErrorCodeTimeout:
		return KindTimeout
	case ErrorCodeUnavailable:
		return KindRetrievalUnavailable
	default:
		return KindInternal
	}
}

// NewProfileNotFound 返回 ProfileNotFound 错误。
func NewProfileNotFound(userID string) *DomainError {
	return &DomainError{
		Kind:    KindProfileNotFound,
		Code:    ErrorCodeNotFound,
		Module:  ModuleProfile,
		Stage:   StageProfile,
		Message: fmt.Sprintf("profile not found for user %q", userID),
	}
}

// NewRetrievalUnavailable 包装 Candidate Store 的不可用错误。
func NewRetrievalUnavailable(cause error) *DomainError {
	return &DomainError{
		Kind:    KindRetrievalUnavailable,
		Code:    ErrorCodeUnavailable,
		Module:  ModuleRecall,
		Stage:   StageRetrieval,
		Message: "candidate store unavailable",
		Err:     cause,
	}
}

// NewScorerUnavailable 包装排序模型的不可用错误。
func NewScorerUnavailable(cause error) *DomainError {
	return &DomainError{
		Kind:    KindScorerUnavailable,
		Code:    ErrorCodeUnavailable,
		Module:  ModuleRank,
		Stage:   StageRanking,
		Message: "scorer unavailable",
		Err:     cause,
	}
}

// NewValidationError 返回维度/形状不匹配等契约错误，永不重试。
func NewValidationError(module, format string, args ...any) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    ErrorCodeInvalidInput,
		Module:  module,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewTimeout 返回带阶段标记的超时错误。
func NewTimeout(stage Stage, cause error) *DomainError {
	return &DomainError{
		Kind:    KindTimeout,
		Code:    ErrorCodeTimeout,
		Module:  ModulePipeline,
		Stage:   stage,
		Message: "deadline exceeded",
		Err:     cause,
	}
}

// NewInternalError 返回不属于上述类别的内部错误，编排层直接失败。
func NewInternalError(stage Stage, module, message string, cause error) *DomainError {
	return &DomainError{
		Kind:    KindInternal,
		Code:    ErrorCodeInternalError,
		Module:  module,
		Stage:   stage,
		Message: message,
		Err:     cause,
	}
}

// WrapStageError 把外部调用的错误归类：截止时间到达 → Timeout，其余交给 fallback 构造。
// 已经是 DomainError 的错误原样返回。
func WrapStageError(stage Stage, err error, fallback func(error) *DomainError) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeout(stage, err)
	}
	return fallback(err)
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return nil
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

func isKind(err error, kind ErrorKind) bool {
	de := GetDomainError(err)
	return de != nil && de.Kind == kind
}

// IsProfileNotFound 检查错误是否为 ProfileNotFound
func IsProfileNotFound(err error) bool { return isKind(err, KindProfileNotFound) }

// IsRetrievalUnavailable 检查错误是否为 RetrievalUnavailable
func IsRetrievalUnavailable(err error) bool { return isKind(err, KindRetrievalUnavailable) }

// IsScorerUnavailable 检查错误是否为 ScorerUnavailable
func IsScorerUnavailable(err error) bool { return isKind(err, KindScorerUnavailable) }

// IsValidation 检查错误是否为 ValidationError
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsTimeout 检查错误是否为 Timeout；stage 为空时匹配任意阶段。
func IsTimeout(err error, stage Stage) bool {
	de := GetDomainError(err)
	if de == nil || de.Kind != KindTimeout {
		return false
	}
	return stage == "" || de.Stage == stage
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	de := GetDomainError(err)
	return de != nil && de.Code == ErrorCodeNotFound
}
