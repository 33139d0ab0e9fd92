package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"gocqrs/eventing"
	"gocqrs/logging"
)

// StreamClient RedisStreamsPublisher 依赖的 go-redis 命令子集
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamsConfig Redis Streams 发布配置
type RedisStreamsConfig struct {
	// StreamPrefix 每个聚合类型一个流 <prefix><aggregate_type>，默认 "events:"
	StreamPrefix string
	// MaxLen 近似裁剪长度，0 表示不裁剪
	MaxLen     int64
	Serializer eventing.Serializer
	Source     string
	Logger     logging.Logger
}

// RedisStreamsPublisher 以 XADD 追加事件
type RedisStreamsPublisher[E eventing.DomainEvent] struct {
	client StreamClient
	cfg    RedisStreamsConfig
	now    func() time.Time
}

// NewRedisStreamsPublisher 创建发布器
func NewRedisStreamsPublisher[E eventing.DomainEvent](client StreamClient, cfg RedisStreamsConfig) (*RedisStreamsPublisher[E], error) {
	if client == nil {
		return nil, stderrors.New("redis client not configured")
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "events:"
	}
	if cfg.Serializer == nil {
		cfg.Serializer = eventing.JSONSerializer{}
	}
	if cfg.Source == "" {
		cfg.Source = "publisher-" + uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("eventing.publish.redis")
	}
	return &RedisStreamsPublisher[E]{client: client, cfg: cfg, now: time.Now}, nil
}

// Stream 聚合类型对应的流名
func (p *RedisStreamsPublisher[E]) Stream(aggregateType string) string {
	return p.cfg.StreamPrefix + aggregateType
}

func (p *RedisStreamsPublisher[E]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	for i := range events {
		msg, err := NewMessage(&events[i], p.cfg.Source, p.now())
		if err != nil {
			return err
		}
		values, err := encodeStreamValues(p.cfg.Serializer, msg)
		if err != nil {
			return err
		}
		args := &redis.XAddArgs{Stream: p.Stream(msg.AggregateType), Values: values}
		if p.cfg.MaxLen > 0 {
			args.MaxLen = p.cfg.MaxLen
			args.Approx = true
		}
		id, err := p.client.XAdd(ctx, args).Result()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", msg.ID, err)
		}
		p.cfg.Logger.Debug(ctx, "event appended to stream",
			logging.String("stream", args.Stream),
			logging.String("entry_id", id),
			logging.String("message_id", msg.ID))
	}
	return nil
}

// 条目字段：id/event_type 便于过滤，data 为完整消息
func encodeStreamValues(s eventing.Serializer, msg Message) (map[string]interface{}, error) {
	data, err := Encode(s, msg)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":         msg.ID,
		"event_type": msg.EventType,
		"codec":      s.Name(),
		"data":       string(data),
	}, nil
}

// DecodeStreamEntry 解析 XREAD/XREADGROUP 读到的条目
func DecodeStreamEntry(entry redis.XMessage) (Message, error) {
	data, ok := entry.Values["data"].(string)
	if !ok {
		return Message{}, fmt.Errorf("stream entry %s has no data field", entry.ID)
	}
	codec, _ := entry.Values["codec"].(string)
	return Decode(eventing.SerializerByName(codec), []byte(data))
}
