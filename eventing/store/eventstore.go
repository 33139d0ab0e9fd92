package store

import (
	"context"

	"gocqrs/eventing"
)

// IEventRepository 存储适配器契约（每种后端各自实现）
//
// 事件表以 (aggregate_type, aggregate_id, sequence) 为唯一键，只追加、从不删除。
//
// 最佳实践：
//   - Commit 必须原子：一次提交的所有事件要么全部可见，要么全部不可见；
//   - 乐观锁通过唯一约束或条件写实现，冲突时返回 *eventing.ConcurrencyError；
//   - 快照只是缓存，快照写入失败不得影响事件提交。
type IEventRepository interface {
	// LoadEvents 按 sequence 升序加载聚合的全部事件
	LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]eventing.SerializedEvent, error)

	// LoadEventsAfter 加载 sequence > afterSequence 的事件（升序），用于快照之后的尾部重放
	LoadEventsAfter(ctx context.Context, aggregateType, aggregateID string, afterSequence uint64) ([]eventing.SerializedEvent, error)

	// LoadSnapshot 加载快照；不存在时返回 (nil, nil)
	LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*eventing.SerializedSnapshot, error)

	// CurrentSequence 返回聚合当前最大 sequence，不存在时为 0
	CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (uint64, error)

	// Commit 原子写入事件（sequence 为 expectedSequence+1 .. expectedSequence+len(events)）及可选快照
	//
	// 返回：
	//   - *eventing.ConcurrencyError: 其他写入者已推进了 sequence
	//   - *eventing.StoreError: 其他存储故障
	Commit(ctx context.Context, aggregateType, aggregateID string, expectedSequence uint64, events []eventing.SerializedEvent, snapshot *eventing.SerializedSnapshot) error
}

// ILimitedRepository 可选接口：后端声明自身的批量/载荷限制
type ILimitedRepository interface {
	Limits() Limits
}

// IReplayRepository 可选接口：按聚合类型流式读取全部事件，用于投影重建
type IReplayRepository interface {
	// StreamAggregateType 依次回调该类型下每个聚合的完整事件序列
	StreamAggregateType(ctx context.Context, aggregateType string, fn func(aggregateID string, events []eventing.SerializedEvent) error) error
}
