package eventsourced

import (
	"context"
	"fmt"
	"time"

	"gocqrs/domain"
	"gocqrs/errors"
	"gocqrs/eventing"
	"gocqrs/eventing/projection"
	"gocqrs/eventing/registry"
	"gocqrs/eventing/store"
	"gocqrs/logging"
)

// Framework 命令执行编排器
//
// 一次 Execute：
//  1. 加载聚合上下文（快照 + 尾部重放）
//  2. 调用 Handle 决策，错误作为业务拒绝返回，不写入任何事件
//  3. 以加载时的 sequence 为乐观锁令牌原子提交事件
//  4. 提交成功后把事件应用到内存状态，并按注册顺序分发给各个 IQuery
//
// 编排器不做自动重试；分发失败只记录日志，不影响命令结果。
type Framework[C any, E eventing.DomainEvent, S any, A domain.IAggregate[C, E, S]] struct {
	store    *EventStore[E, A]
	services S
	config   Config[E]
}

// NewFramework 创建编排器
func NewFramework[C any, E eventing.DomainEvent, S any, A domain.IAggregate[C, E, S]](
	repo store.IEventRepository,
	reg *registry.Registry[E],
	factory func() A,
	services S,
	opts ...Option[E],
) (*Framework[C, E, S, A], error) {
	es, err := NewEventStore[E, A](repo, reg, factory, opts...)
	if err != nil {
		return nil, err
	}
	return &Framework[C, E, S, A]{
		store:    es,
		services: services,
		config:   es.config,
	}, nil
}

// EventStore 底层事件存储
func (f *Framework[C, E, S, A]) EventStore() *EventStore[E, A] { return f.store }

// Execute 执行命令
func (f *Framework[C, E, S, A]) Execute(ctx context.Context, aggregateID string, command C) error {
	_, err := f.ExecuteWithResult(ctx, aggregateID, command, eventing.Metadata{})
	return err
}

// ExecuteWithMetadata 执行命令，metadata 写入本次产生的每个事件
func (f *Framework[C, E, S, A]) ExecuteWithMetadata(ctx context.Context, aggregateID string, command C, metadata eventing.Metadata) error {
	_, err := f.ExecuteWithResult(ctx, aggregateID, command, metadata)
	return err
}

// ExecuteWithResult 执行命令并返回已提交的事件
//
// 返回的错误均为 *errors.AppError：
//   - ErrCodeUserError: Handle 拒绝了命令
//   - ErrCodeConcurrency: 提交时 sequence 已被其他写入者推进
//   - ErrCodeValidation: 聚合 ID 为空或超出后端限制
//   - ErrCodeTechnical: 存储、序列化或升级失败
func (f *Framework[C, E, S, A]) ExecuteWithResult(ctx context.Context, aggregateID string, command C, metadata eventing.Metadata) ([]eventing.EventEnvelope[E], error) {
	if aggregateID == "" {
		return nil, errors.NewValidationError("aggregate id cannot be empty")
	}
	commandName := fmt.Sprintf("%T", command)
	aggregateType := f.store.AggregateType()
	start := time.Now()

	for _, hook := range f.config.Hooks {
		if err := hook.BeforeExecute(ctx, aggregateType, aggregateID, command); err != nil {
			err = errors.WrapWithLog(ctx, err, errors.ErrCodeValidation, "before execute hook failed",
				logging.String("command", commandName))
			f.trace(ctx, commandName, time.Since(start), err)
			return nil, err
		}
	}

	committed, execErr := f.execute(ctx, aggregateID, command, metadata)

	for _, hook := range f.config.Hooks {
		if hookErr := hook.AfterExecute(ctx, aggregateType, aggregateID, command, execErr); hookErr != nil {
			f.config.Logger.Warn(ctx, "after execute hook failed",
				logging.Error(hookErr),
				logging.String("command", commandName))
		}
	}
	f.trace(ctx, commandName, time.Since(start), execErr)
	if execErr != nil {
		return nil, execErr
	}

	f.dispatch(ctx, aggregateID, committed)
	return committed, nil
}

func (f *Framework[C, E, S, A]) execute(ctx context.Context, aggregateID string, command C, metadata eventing.Metadata) ([]eventing.EventEnvelope[E], error) {
	actx, err := f.store.Load(ctx, aggregateID)
	if err != nil {
		return nil, errors.Normalize(err)
	}

	events, err := actx.Aggregate.Handle(ctx, command, f.services)
	if err != nil {
		f.config.Logger.Debug(ctx, "command rejected",
			logging.String("aggregate_id", aggregateID),
			logging.String("command", fmt.Sprintf("%T", command)),
			logging.Error(err))
		return nil, errors.WrapUserError(err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	committed, err := f.store.Commit(ctx, actx, events, metadata)
	if err != nil {
		return nil, errors.Normalize(err)
	}

	f.config.Logger.Info(ctx, "events committed",
		logging.String("aggregate_type", actx.AggregateType),
		logging.String("aggregate_id", aggregateID),
		logging.Uint64("sequence", actx.Sequence),
		logging.Int("event_count", len(committed)))
	return committed, nil
}

// dispatch 逐个调用消费者；单个消费者的错误或 panic 不影响其他消费者
func (f *Framework[C, E, S, A]) dispatch(ctx context.Context, aggregateID string, committed []eventing.EventEnvelope[E]) {
	if len(committed) == 0 {
		return
	}
	for i, q := range f.config.Queries {
		if err := f.dispatchOne(ctx, q, aggregateID, committed); err != nil {
			f.config.Logger.Warn(ctx, "query dispatch failed",
				logging.Int("query_index", i),
				logging.String("query", fmt.Sprintf("%T", q)),
				logging.String("aggregate_id", aggregateID),
				logging.Error(err))
		}
	}
}

func (f *Framework[C, E, S, A]) dispatchOne(ctx context.Context, q projection.IQuery[E], aggregateID string, committed []eventing.EventEnvelope[E]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("query panicked: %v", r)
		}
	}()
	return q.Dispatch(ctx, aggregateID, committed)
}

// Load 加载聚合上下文（只读用途，修改不会被持久化）
func (f *Framework[C, E, S, A]) Load(ctx context.Context, aggregateID string) (*domain.AggregateContext[A], error) {
	actx, err := f.store.Load(ctx, aggregateID)
	if err != nil {
		return nil, errors.Normalize(err)
	}
	return actx, nil
}

// ExecuteWithRetry 仅在并发冲突时重新加载、重新决策并重新提交，至多 maxAttempts 次
func (f *Framework[C, E, S, A]) ExecuteWithRetry(ctx context.Context, aggregateID string, command C, metadata eventing.Metadata, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err = f.ExecuteWithResult(ctx, aggregateID, command, metadata)
		if err == nil || !errors.IsConcurrency(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return err
		}
		f.config.Logger.Debug(ctx, "concurrency conflict, retrying",
			logging.String("aggregate_id", aggregateID),
			logging.Int("attempt", attempt))
	}
	return err
}

// RebuildView 用单个聚合的完整历史重建消费者
func (f *Framework[C, E, S, A]) RebuildView(ctx context.Context, aggregateID string, r projection.IRebuilder[E]) error {
	envelopes, err := f.store.LoadEvents(ctx, aggregateID)
	if err != nil {
		return errors.Normalize(err)
	}
	return r.Rebuild(ctx, aggregateID, envelopes)
}

// RebuildAll 重建该聚合类型下所有实例，存储需实现 store.IReplayRepository
func (f *Framework[C, E, S, A]) RebuildAll(ctx context.Context, r projection.IRebuilder[E]) (int, error) {
	count := 0
	err := f.store.ReplayAll(ctx, func(aggregateID string, events []eventing.EventEnvelope[E]) error {
		if err := r.Rebuild(ctx, aggregateID, events); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func (f *Framework[C, E, S, A]) trace(ctx context.Context, commandName string, elapsed time.Duration, execErr error) {
	if f.config.Tracer != nil {
		f.config.Tracer.Trace(ctx, commandName, elapsed, execErr)
	}
}
