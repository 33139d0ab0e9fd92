package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"gocqrs/eventing"
	"gocqrs/logging"
)

// JetStreamPublisher NATSPublisher 依赖的 JetStream 子集，nats.JetStreamContext 满足该接口
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// JetStreamManager EnsureStream 依赖的 JetStream 子集
type JetStreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// NATSConfig NATS 发布配置
type NATSConfig struct {
	// SubjectPrefix 主题为 <prefix><aggregate_type>.<event_type>，默认 "events."
	SubjectPrefix string
	Serializer    eventing.Serializer
	Source        string
	Logger        logging.Logger
}

// NATSPublisher 把事件发布到 JetStream，并以消息 ID 作为 Nats-Msg-Id 让服务端去重
type NATSPublisher[E eventing.DomainEvent] struct {
	js  JetStreamPublisher
	cfg NATSConfig
	now func() time.Time
}

// NewNATSPublisher 创建发布器
func NewNATSPublisher[E eventing.DomainEvent](js JetStreamPublisher, cfg NATSConfig) (*NATSPublisher[E], error) {
	if js == nil {
		return nil, stderrors.New("jetstream not configured")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "events."
	}
	if cfg.Serializer == nil {
		cfg.Serializer = eventing.JSONSerializer{}
	}
	if cfg.Source == "" {
		cfg.Source = "publisher-" + uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("eventing.publish.nats")
	}
	return &NATSPublisher[E]{js: js, cfg: cfg, now: time.Now}, nil
}

// Subject 事件的发布主题
func (p *NATSPublisher[E]) Subject(aggregateType, eventType string) string {
	return p.cfg.SubjectPrefix + aggregateType + "." + eventType
}

func (p *NATSPublisher[E]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	for i := range events {
		msg, err := NewMessage(&events[i], p.cfg.Source, p.now())
		if err != nil {
			return err
		}
		data, err := Encode(p.cfg.Serializer, msg)
		if err != nil {
			return err
		}
		subject := p.Subject(msg.AggregateType, msg.EventType)
		ack, err := p.js.Publish(subject, data, nats.MsgId(msg.ID), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("publish %s: %w", msg.ID, err)
		}
		if ack != nil && ack.Duplicate {
			p.cfg.Logger.Debug(ctx, "duplicate publish ignored by server",
				logging.String("message_id", msg.ID),
				logging.String("subject", subject))
		}
	}
	return nil
}

// EnsureStream 不存在时创建覆盖 <prefix>> 的流；事件流使用 limits 保留策略
func EnsureStream(js JetStreamManager, stream, subjectPrefix string, maxBytes int64) error {
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !stderrors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	if subjectPrefix == "" {
		subjectPrefix = "events."
	}
	sc := &nats.StreamConfig{
		Name:              stream,
		Subjects:          []string{subjectPrefix + ">"},
		Retention:         nats.LimitsPolicy,
		MaxMsgsPerSubject: -1,
		Duplicates:        2 * time.Minute,
	}
	if maxBytes > 0 {
		sc.MaxBytes = maxBytes
	}
	_, err = js.AddStream(sc)
	return err
}

// ConnectJetStream 连接 NATS 并返回 JetStream 上下文；调用方负责关闭连接
func ConnectJetStream(url string) (*nats.Conn, nats.JetStreamContext, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, js, nil
}
