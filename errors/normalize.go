package errors

import (
	stdErrors "errors"

	"gocqrs/eventing"
)

// Normalize 将存储层返回的错误规范化为 AppError。
//
// 注意：
//   - 已经是 AppError 的错误原样返回；
//   - ConcurrencyError 映射为 ErrCodeConcurrency，BatchLimitError 映射为 ErrCodeValidation；
//   - 其余错误一律视为技术故障（ErrCodeTechnical），保留原始错误作为 cause。
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return err
	}

	var concurrencyErr *eventing.ConcurrencyError
	if stdErrors.As(err, &concurrencyErr) {
		return NewConcurrencyError("event store concurrency conflict", err)
	}

	var limitErr *eventing.BatchLimitError
	if stdErrors.As(err, &limitErr) {
		return WrapError(err, ErrCodeValidation, "backend limit exceeded")
	}

	var storeErr *eventing.StoreError
	if stdErrors.As(err, &storeErr) {
		return NewTechnicalError(storeErr.Message, err)
	}
	return NewTechnicalError("unexpected store failure", err)
}
