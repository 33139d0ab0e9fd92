package projection

import (
	"context"
	"fmt"

	"gocqrs/eventing"
	"gocqrs/logging"
)

// DefaultMaxRetries 视图冲突后重新加载并重放的默认次数
const DefaultMaxRetries = 3

// ErrorHandler 视图更新最终失败时的回调
type ErrorHandler func(ctx context.Context, viewID string, err error)

// GenericQuery 把已提交事件投影到单一类型的视图
//
// 每次 Dispatch：
//  1. 按视图 ID 读取视图及其版本（不存在则用工厂创建，版本 0）
//  2. 依次调用 View.Update
//  3. 以读取时的版本为条件写回，新版本 = 旧版本 + 本次事件数
//  4. 冲突时重新读取并重放，至多 MaxRetries 次；最终失败交给 ErrorHandler
type GenericQuery[E eventing.DomainEvent, V View[E]] struct {
	repo         IViewRepository[V]
	factory      func() V
	viewID       func(aggregateID string) string
	maxRetries   int
	errorHandler ErrorHandler
	logger       logging.Logger
}

// QueryOption GenericQuery 可选配置
type QueryOption[E eventing.DomainEvent, V View[E]] func(*GenericQuery[E, V])

// WithViewID 自定义视图 ID 映射（默认使用聚合 ID）
func WithViewID[E eventing.DomainEvent, V View[E]](fn func(aggregateID string) string) QueryOption[E, V] {
	return func(q *GenericQuery[E, V]) { q.viewID = fn }
}

// WithMaxRetries 冲突重试次数，负数视为 0
func WithMaxRetries[E eventing.DomainEvent, V View[E]](n int) QueryOption[E, V] {
	return func(q *GenericQuery[E, V]) {
		if n < 0 {
			n = 0
		}
		q.maxRetries = n
	}
}

// WithErrorHandler 视图更新失败回调
func WithErrorHandler[E eventing.DomainEvent, V View[E]](h ErrorHandler) QueryOption[E, V] {
	return func(q *GenericQuery[E, V]) { q.errorHandler = h }
}

// NewGenericQuery 创建通用视图投影
func NewGenericQuery[E eventing.DomainEvent, V View[E]](repo IViewRepository[V], factory func() V, opts ...QueryOption[E, V]) *GenericQuery[E, V] {
	q := &GenericQuery[E, V]{
		repo:       repo,
		factory:    factory,
		viewID:     func(aggregateID string) string { return aggregateID },
		maxRetries: DefaultMaxRetries,
		logger:     logging.ComponentLogger("eventing.projection"),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.errorHandler == nil {
		q.errorHandler = q.logError
	}
	return q
}

// Dispatch 实现 IQuery
func (q *GenericQuery[E, V]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	if len(events) == 0 {
		return nil
	}
	viewID := q.viewID(aggregateID)

	err := q.withRetry(ctx, viewID, func() error {
		return q.applyOnce(ctx, viewID, events)
	})
	if err != nil {
		err = fmt.Errorf("update view %s: %w", viewID, err)
		q.errorHandler(ctx, viewID, err)
		return err
	}
	return nil
}

// withRetry 在视图版本冲突时重新加载并重试，最多 maxRetries 次
func (q *GenericQuery[E, V]) withRetry(ctx context.Context, viewID string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !IsViewConflict(err) {
			return err
		}
		q.logger.Debug(ctx, "view conflict, reloading",
			logging.String("view_id", viewID),
			logging.Int("attempt", attempt+1))
	}
	return err
}

func (q *GenericQuery[E, V]) applyOnce(ctx context.Context, viewID string, events []eventing.EventEnvelope[E]) error {
	view, vctx, found, err := q.repo.LoadWithContext(ctx, viewID)
	if err != nil {
		return err
	}
	if !found {
		view = q.factory()
		vctx = ViewContext{ViewID: viewID}
	}
	for i := range events {
		view.Update(&events[i])
	}
	return q.repo.UpdateView(ctx, view, vctx, vctx.Version+uint64(len(events)))
}

// Load 读取视图
func (q *GenericQuery[E, V]) Load(ctx context.Context, viewID string) (V, bool, error) {
	return q.repo.Load(ctx, viewID)
}

// Rebuild 从完整历史重建视图：以空视图重放全部事件，再以当前版本为条件覆盖，冲突时与 Dispatch 一样重试
func (q *GenericQuery[E, V]) Rebuild(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	if len(events) == 0 {
		return nil
	}
	viewID := q.viewID(aggregateID)
	return q.withRetry(ctx, viewID, func() error {
		return q.rebuildOnce(ctx, viewID, events)
	})
}

func (q *GenericQuery[E, V]) rebuildOnce(ctx context.Context, viewID string, events []eventing.EventEnvelope[E]) error {
	_, vctx, found, err := q.repo.LoadWithContext(ctx, viewID)
	if err != nil {
		return err
	}
	if !found {
		vctx = ViewContext{ViewID: viewID}
	}
	view := q.factory()
	for i := range events {
		view.Update(&events[i])
	}
	return q.repo.UpdateView(ctx, view, vctx, uint64(len(events)))
}

func (q *GenericQuery[E, V]) logError(ctx context.Context, viewID string, err error) {
	q.logger.Error(ctx, "view update failed", logging.String("view_id", viewID), logging.Error(err))
}

var (
	_ IQuery[eventing.DomainEvent]     = (*GenericQuery[eventing.DomainEvent, View[eventing.DomainEvent]])(nil)
	_ IRebuilder[eventing.DomainEvent] = (*GenericQuery[eventing.DomainEvent, View[eventing.DomainEvent]])(nil)
)
