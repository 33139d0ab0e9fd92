package errors

import (
	stdErrors "errors"
	"fmt"
)

// UserErrorPayload 聚合拒绝命令时携带的业务数据，原样返回给调用方
type UserErrorPayload struct {
	Code    string            `json:"code,omitempty"`
	Message string            `json:"error"`
	Params  map[string]string `json:"params,omitempty"`
}

func (p *UserErrorPayload) Error() string { return p.Message }

// NewUserError 以消息创建业务拒绝错误
func NewUserError(message string) IError {
	return WrapUserError(&UserErrorPayload{Message: message})
}

// NewUserErrorWithCode 创建带业务码与参数的业务拒绝错误
func NewUserErrorWithCode(code, message string, params map[string]string) IError {
	return WrapUserError(&UserErrorPayload{Code: code, Message: message, Params: params})
}

// WrapUserError 将聚合返回的任意错误包装为业务拒绝
//
// 已分类的 AppError 保持原错误码不变。
func WrapUserError(err error) IError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr
	}
	return &AppError{
		code:    ErrCodeUserError,
		message: err.Error(),
		cause:   err,
		details: make(map[string]any),
	}
}

// UserPayload 取出业务拒绝的载荷；非业务拒绝返回 nil
func UserPayload(err error) *UserErrorPayload {
	if !IsUserError(err) {
		return nil
	}
	var payload *UserErrorPayload
	if stdErrors.As(err, &payload) {
		return payload
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return &UserErrorPayload{Message: appErr.Message()}
	}
	return &UserErrorPayload{Message: err.Error()}
}

// NewTechnicalError 包装存储、序列化等技术故障
func NewTechnicalError(message string, cause error) IError {
	return &AppError{
		code:    ErrCodeTechnical,
		message: message,
		cause:   cause,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewConcurrencyError 创建乐观锁冲突错误
func NewConcurrencyError(message string, cause error) IError {
	return &AppError{
		code:    ErrCodeConcurrency,
		message: message,
		cause:   cause,
		details: make(map[string]any),
	}
}

// NewValidationError 创建校验错误
func NewValidationError(format string, args ...any) IError {
	return &AppError{
		code:    ErrCodeValidation,
		message: fmt.Sprintf(format, args...),
		details: make(map[string]any),
		stack:   captureStack(),
	}
}
