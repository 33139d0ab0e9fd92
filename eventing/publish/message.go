// Package publish 把已提交的事件分发到外部：日志、NATS JetStream、Redis Streams
//
// 每个发布器都实现 projection.IQuery，注册到编排器后随提交分发。
// 分发是至少一次语义，Message.ID 由 (aggregate_type, aggregate_id, sequence) 确定，
// 下游可据此去重。
package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"gocqrs/eventing"
)

// Message 对外分发的事件线格式
type Message struct {
	ID            string            `json:"id"`
	Source        string            `json:"source,omitempty"`
	AggregateType string            `json:"aggregate_type"`
	AggregateID   string            `json:"aggregate_id"`
	Sequence      uint64            `json:"sequence"`
	EventType     string            `json:"event_type"`
	EventVersion  string            `json:"event_version"`
	Timestamp     int64             `json:"timestamp"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// MessageID 同一事件的重复分发得到相同 ID
func MessageID(aggregateType, aggregateID string, sequence uint64) string {
	return fmt.Sprintf("%s/%s/%d", aggregateType, aggregateID, sequence)
}

// NewMessage 由信封构造消息，载荷固定以 JSON 表示
func NewMessage[E eventing.DomainEvent](env *eventing.EventEnvelope[E], source string, now time.Time) (Message, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", env.EventType(), err)
	}
	return Message{
		ID:            MessageID(env.AggregateType, env.AggregateID, env.Sequence),
		Source:        source,
		AggregateType: env.AggregateType,
		AggregateID:   env.AggregateID,
		Sequence:      env.Sequence,
		EventType:     env.EventType(),
		EventVersion:  env.EventVersion(),
		Timestamp:     now.UnixNano(),
		Payload:       payload,
		Metadata:      env.Metadata.ToMap(),
	}, nil
}

// Time 消息时间戳
func (m Message) Time() time.Time { return time.Unix(0, m.Timestamp) }

// Encode 以指定编解码器编码；nil 使用 JSON
func Encode(s eventing.Serializer, m Message) ([]byte, error) {
	if s == nil {
		s = eventing.JSONSerializer{}
	}
	return s.Marshal(m)
}

// Decode 与 Encode 对应
func Decode(s eventing.Serializer, data []byte) (Message, error) {
	if s == nil {
		s = eventing.JSONSerializer{}
	}
	var m Message
	if err := s.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}
