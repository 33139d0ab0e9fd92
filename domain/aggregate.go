// Package domain 定义事件溯源聚合的契约
//
// 聚合由两个纯函数组成：
//   - Handle：根据命令与当前状态决定发生了什么，返回事件或业务错误，不修改状态；
//   - Apply：把一个事件折叠进状态，是状态变化的唯一途径，必须确定且不可失败。
package domain

import (
	"context"

	"gocqrs/eventing"
)

// IEventApplier 可由事件重放得到状态的聚合
type IEventApplier[E eventing.DomainEvent] interface {
	// AggregateType 聚合类型名，全系统唯一，作为事件流的分区键
	AggregateType() string

	// Apply 将事件应用到状态
	Apply(event E)
}

// IAggregate 事件溯源聚合
//
// 类型参数：C 命令集合，E 事件集合，S 处理命令时可用的外部服务。
type IAggregate[C any, E eventing.DomainEvent, S any] interface {
	IEventApplier[E]

	// Handle 处理命令并返回事件；返回的错误视为业务拒绝
	Handle(ctx context.Context, command C, services S) ([]E, error)
}

// AggregateContext 加载得到的聚合上下文
//
// Sequence 是已应用的事件数，也是下一次提交的乐观锁令牌。
type AggregateContext[A any] struct {
	AggregateType string
	AggregateID   string
	Aggregate     A
	Sequence      uint64

	// CurrentSnapshot 已读取快照的代际，没有快照时为 0
	CurrentSnapshot uint64
	// SnapshotSequence 已读取快照覆盖到的 sequence
	SnapshotSequence uint64
}

// IsNew 聚合尚无任何事件
func (c *AggregateContext[A]) IsNew() bool {
	return c.Sequence == 0
}
