package eventing

import "fmt"

// 存储错误代码
const (
	ErrCodeStoreFailed        = "STORE_FAILED"
	ErrCodeSerializePayload   = "SERIALIZE_PAYLOAD_FAILED"
	ErrCodeDeserializePayload = "DESERIALIZE_PAYLOAD_FAILED"
	ErrCodeUnknownEventType   = "UNKNOWN_EVENT_TYPE"
	ErrCodeSequenceGap        = "SEQUENCE_GAP"
	ErrCodeUpcastFailed       = "UPCAST_FAILED"
)

// StoreError 存储/序列化层错误
type StoreError struct {
	Code      string
	Message   string
	Cause     error
	EventType string
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// NewStoreError 创建存储错误
func NewStoreError(code, message string, cause error) *StoreError {
	return &StoreError{Code: code, Message: message, Cause: cause}
}

// ConcurrencyError 乐观锁冲突：写入时存储中的序号已超过 ExpectedSequence
type ConcurrencyError struct {
	AggregateType    string
	AggregateID      string
	ExpectedSequence uint64
	ActualSequence   uint64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict: %s/%s expected sequence %d, actual %d",
		e.AggregateType, e.AggregateID, e.ExpectedSequence, e.ActualSequence)
}

// NewConcurrencyError 创建并发冲突错误
func NewConcurrencyError(aggregateType, aggregateID string, expected, actual uint64) *ConcurrencyError {
	return &ConcurrencyError{
		AggregateType:    aggregateType,
		AggregateID:      aggregateID,
		ExpectedSequence: expected,
		ActualSequence:   actual,
	}
}

// BatchLimitError 单次提交超出后端限制（条数或字节数）
type BatchLimitError struct {
	Limit  string
	Max    int
	Actual int
}

func (e *BatchLimitError) Error() string {
	return fmt.Sprintf("%s exceeded: max %d, got %d", e.Limit, e.Max, e.Actual)
}
