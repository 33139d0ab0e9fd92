package projection

import (
	"context"

	"gocqrs/eventing"
)

// IQuery 已提交事件的下游消费者（视图投影、消息发布等）
//
// 编排器在每次提交成功后按注册顺序调用 Dispatch，每个聚合的事件按 sequence 升序到达。
type IQuery[E eventing.DomainEvent] interface {
	Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error
}

// QueryFunc 函数适配器
type QueryFunc[E eventing.DomainEvent] func(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error

func (f QueryFunc[E]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	return f(ctx, aggregateID, events)
}

// IRebuilder 可从完整事件历史重建的消费者
type IRebuilder[E eventing.DomainEvent] interface {
	Rebuild(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error
}
