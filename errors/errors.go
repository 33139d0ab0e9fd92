// Package errors 定义命令执行链路对外暴露的错误分类。
//
// 调用方只需要区分四类结果：
//   - ErrCodeUserError：聚合拒绝了命令（业务规则不满足），原样返回给调用方；
//   - ErrCodeConcurrency：乐观锁冲突，由调用方决定是否重新加载后重试；
//   - ErrCodeTechnical：存储、序列化、升级等技术故障；
//   - ErrCodeValidation：在访问存储之前即可发现的参数/容量错误。
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

const (
	// 命令执行分类
	ErrCodeUserError   ErrorCode = "USER_ERROR"
	ErrCodeConcurrency ErrorCode = "CONCURRENCY_ERROR"
	ErrCodeTechnical   ErrorCode = "TECHNICAL_ERROR"
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"

	// 通用错误代码
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// IError 错误接口
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	Details() map[string]any
	Stack() string

	// WithDetails 返回附加了详情的新错误
	WithDetails(details map[string]any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil && e.cause.Error() != e.message {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Stack() string   { return e.stack }

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Is 同错误码的 AppError 视为相等，否则沿 cause 链比较
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}
	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}
	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails 添加详情
func (e *AppError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}
	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// 分类哨兵，可配合 errors.Is 使用
var (
	ErrUserError   = NewError(ErrCodeUserError, "command rejected")
	ErrConcurrency = NewError(ErrCodeConcurrency, "optimistic concurrency conflict")
	ErrTechnical   = NewError(ErrCodeTechnical, "technical failure")
	ErrValidation  = NewError(ErrCodeValidation, "validation failed")
)

// IsUserError 是否为业务拒绝
func IsUserError(err error) bool { return IsErrorCode(err, ErrCodeUserError) }

// IsConcurrency 是否为乐观锁冲突
func IsConcurrency(err error) bool { return IsErrorCode(err, ErrCodeConcurrency) }

// IsTechnical 是否为技术故障
func IsTechnical(err error) bool { return IsErrorCode(err, ErrCodeTechnical) }

// IsValidation 是否为校验错误
func IsValidation(err error) bool { return IsErrorCode(err, ErrCodeValidation) }

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool { return IsErrorCode(err, ErrCodeNotFound) }

// IsErrorCode 检查错误链上最外层 AppError 的错误码
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}
	return false
}

// GetErrorCode 获取错误代码；非 AppError 返回 ErrCodeInternal
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		if !more {
			break
		}
	}
	return builder.String()
}

func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return make(map[string]any)
	}
	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}
	return copied
}
