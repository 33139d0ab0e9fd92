package eventsourced

import (
	"context"
	"fmt"

	"gocqrs/domain"
	"gocqrs/eventing"
	"gocqrs/eventing/registry"
	"gocqrs/eventing/store"
	"gocqrs/eventing/store/snapshot"
	"gocqrs/logging"
)

// EventStore 聚合事件流的加载与提交
//
// 存储适配器只处理序列化后的事件；EventStore 负责升级、解码、重放，
// 以及提交前的 sequence 分配、限制校验和快照生成。
type EventStore[E eventing.DomainEvent, A domain.IEventApplier[E]] struct {
	repo          store.IEventRepository
	registry      *registry.Registry[E]
	factory       func() A
	aggregateType string
	config        Config[E]
}

// NewEventStore 创建事件存储
func NewEventStore[E eventing.DomainEvent, A domain.IEventApplier[E]](
	repo store.IEventRepository,
	reg *registry.Registry[E],
	factory func() A,
	opts ...Option[E],
) (*EventStore[E, A], error) {
	if repo == nil {
		return nil, fmt.Errorf("event repository cannot be nil")
	}
	if reg == nil {
		return nil, fmt.Errorf("event registry cannot be nil")
	}
	if factory == nil {
		return nil, fmt.Errorf("aggregate factory cannot be nil")
	}
	aggregateType := factory().AggregateType()
	if aggregateType == "" {
		return nil, fmt.Errorf("aggregate type cannot be empty")
	}
	return &EventStore[E, A]{
		repo:          repo,
		registry:      reg,
		factory:       factory,
		aggregateType: aggregateType,
		config:        buildConfig(repo, opts),
	}, nil
}

// AggregateType 聚合类型
func (s *EventStore[E, A]) AggregateType() string { return s.aggregateType }

// Load 加载聚合上下文：快照（若启用且有效）+ 尾部事件重放
func (s *EventStore[E, A]) Load(ctx context.Context, aggregateID string) (*domain.AggregateContext[A], error) {
	actx := &domain.AggregateContext[A]{
		AggregateType: s.aggregateType,
		AggregateID:   aggregateID,
		Aggregate:     s.factory(),
	}

	if snapshot.Enabled(s.config.SnapshotStrategy) {
		if err := s.restoreSnapshot(ctx, actx); err != nil {
			return nil, err
		}
	}

	serialized, err := s.repo.LoadEventsAfter(ctx, s.aggregateType, aggregateID, actx.Sequence)
	if err != nil {
		return nil, err
	}
	for _, se := range serialized {
		if se.Sequence != actx.Sequence+1 {
			return nil, eventing.NewStoreError(eventing.ErrCodeSequenceGap,
				fmt.Sprintf("%s/%s: expected sequence %d, got %d", s.aggregateType, aggregateID, actx.Sequence+1, se.Sequence), nil)
		}
		env, err := s.decode(ctx, se)
		if err != nil {
			return nil, err
		}
		actx.Aggregate.Apply(env.Payload)
		actx.Sequence = se.Sequence
	}
	return actx, nil
}

// restoreSnapshot 快照只是缓存：无效或无法解码时丢弃，回退到完整重放
func (s *EventStore[E, A]) restoreSnapshot(ctx context.Context, actx *domain.AggregateContext[A]) error {
	snap, err := s.repo.LoadSnapshot(ctx, s.aggregateType, actx.AggregateID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	// 代际保留，下一次快照在其基础上递增
	actx.CurrentSnapshot = snap.CurrentSnapshot

	current, err := s.repo.CurrentSequence(ctx, s.aggregateType, actx.AggregateID)
	if err != nil {
		return err
	}
	if snap.LastSequence > current {
		s.config.Logger.Warn(ctx, "snapshot ahead of event log, ignored",
			logging.String("aggregate_id", actx.AggregateID),
			logging.Uint64("snapshot_sequence", snap.LastSequence),
			logging.Uint64("current_sequence", current))
		return nil
	}

	agg := s.factory()
	if err := s.config.SnapshotSerializer.Unmarshal(snap.Payload, &agg); err != nil {
		s.config.Logger.Warn(ctx, "snapshot decode failed, replaying full history",
			logging.String("aggregate_id", actx.AggregateID),
			logging.Error(err))
		return nil
	}
	actx.Aggregate = agg
	actx.Sequence = snap.LastSequence
	actx.SnapshotSequence = snap.LastSequence
	return nil
}

// LoadEvents 返回升级并解码后的完整事件历史
func (s *EventStore[E, A]) LoadEvents(ctx context.Context, aggregateID string) ([]eventing.EventEnvelope[E], error) {
	serialized, err := s.repo.LoadEvents(ctx, s.aggregateType, aggregateID)
	if err != nil {
		return nil, err
	}
	return s.decodeAll(ctx, aggregateID, serialized)
}

// decodeAll 解码从 sequence 1 开始的完整历史，序号必须连续
func (s *EventStore[E, A]) decodeAll(ctx context.Context, aggregateID string, serialized []eventing.SerializedEvent) ([]eventing.EventEnvelope[E], error) {
	out := make([]eventing.EventEnvelope[E], 0, len(serialized))
	var prev uint64
	for _, se := range serialized {
		if se.Sequence != prev+1 {
			return nil, eventing.NewStoreError(eventing.ErrCodeSequenceGap,
				fmt.Sprintf("%s/%s: expected sequence %d, got %d", s.aggregateType, aggregateID, prev+1, se.Sequence), nil)
		}
		prev = se.Sequence
		env, err := s.decode(ctx, se)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

func (s *EventStore[E, A]) decode(ctx context.Context, se eventing.SerializedEvent) (eventing.EventEnvelope[E], error) {
	upcasted, err := s.config.Upcasters.Upcast(ctx, se)
	if err != nil {
		return eventing.EventEnvelope[E]{}, err
	}
	payload, err := s.registry.Decode(upcasted.EventType, upcasted.Payload)
	if err != nil {
		return eventing.EventEnvelope[E]{}, err
	}
	return eventing.EventEnvelope[E]{
		AggregateType: upcasted.AggregateType,
		AggregateID:   upcasted.AggregateID,
		Sequence:      upcasted.Sequence,
		Payload:       payload,
		Metadata:      upcasted.Metadata,
	}, nil
}

// Commit 以 actx.Sequence 为乐观锁令牌原子提交事件
//
// 成功后事件被依次应用到 actx.Aggregate，actx.Sequence 前进到最后一个事件。
// 超出后端限制时返回 *eventing.BatchLimitError，不调用存储；
// 只因快照超限时放弃快照，事件照常提交。
func (s *EventStore[E, A]) Commit(ctx context.Context, actx *domain.AggregateContext[A], events []E, metadata eventing.Metadata) ([]eventing.EventEnvelope[E], error) {
	if len(events) == 0 {
		return nil, nil
	}

	envelopes := make([]eventing.EventEnvelope[E], 0, len(events))
	serialized := make([]eventing.SerializedEvent, 0, len(events))
	for i, evt := range events {
		seq := actx.Sequence + uint64(i) + 1
		payload, err := s.registry.Encode(evt)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, eventing.EventEnvelope[E]{
			AggregateType: s.aggregateType,
			AggregateID:   actx.AggregateID,
			Sequence:      seq,
			Payload:       evt,
			Metadata:      metadata.Clone(),
		})
		serialized = append(serialized, eventing.SerializedEvent{
			AggregateType: s.aggregateType,
			AggregateID:   actx.AggregateID,
			Sequence:      seq,
			EventType:     evt.EventType(),
			EventVersion:  evt.EventVersion(),
			Payload:       payload,
			Metadata:      metadata.Clone(),
		})
	}

	snap := s.buildSnapshot(ctx, actx, events)
	snap, err := s.checkLimits(ctx, serialized, snap)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Commit(ctx, s.aggregateType, actx.AggregateID, actx.Sequence, serialized, snap); err != nil {
		return nil, err
	}

	for _, evt := range events {
		actx.Aggregate.Apply(evt)
	}
	actx.Sequence += uint64(len(events))
	if snap != nil {
		actx.CurrentSnapshot = snap.CurrentSnapshot
		actx.SnapshotSequence = snap.LastSequence
	}
	return envelopes, nil
}

func (s *EventStore[E, A]) checkLimits(ctx context.Context, serialized []eventing.SerializedEvent, snap *eventing.SerializedSnapshot) (*eventing.SerializedSnapshot, error) {
	limits := *s.config.Limits
	if err := limits.CheckCount(len(serialized), false); err != nil {
		return nil, err
	}
	if err := limits.CheckSize(serialized, nil); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	if err := limits.CheckCount(len(serialized), true); err != nil {
		s.config.Logger.Debug(ctx, "snapshot dropped", logging.Error(err))
		return nil, nil
	}
	if err := limits.CheckSize(serialized, snap); err != nil {
		s.config.Logger.Debug(ctx, "snapshot dropped", logging.Error(err))
		return nil, nil
	}
	return snap, nil
}

// buildSnapshot 在状态副本上应用新事件并序列化；任何失败都只放弃快照
func (s *EventStore[E, A]) buildSnapshot(ctx context.Context, actx *domain.AggregateContext[A], events []E) *eventing.SerializedSnapshot {
	if !snapshot.Enabled(s.config.SnapshotStrategy) {
		return nil
	}
	serializer := s.config.SnapshotSerializer

	state, err := serializer.Marshal(actx.Aggregate)
	if err != nil {
		s.config.Logger.Warn(ctx, "snapshot encode failed", logging.Error(err))
		return nil
	}
	next := s.factory()
	if err := serializer.Unmarshal(state, &next); err != nil {
		s.config.Logger.Warn(ctx, "snapshot copy failed", logging.Error(err))
		return nil
	}
	for _, evt := range events {
		next.Apply(evt)
	}
	payload, err := serializer.Marshal(next)
	if err != nil {
		s.config.Logger.Warn(ctx, "snapshot encode failed", logging.Error(err))
		return nil
	}

	newSequence := actx.Sequence + uint64(len(events))
	decision := snapshot.Decision{
		AggregateType:        s.aggregateType,
		AggregateID:          actx.AggregateID,
		LastSnapshotSequence: actx.SnapshotSequence,
		NewSequence:          newSequence,
		StateSize:            len(payload),
	}
	if !s.config.SnapshotStrategy.ShouldSnapshot(decision) {
		return nil
	}
	return &eventing.SerializedSnapshot{
		AggregateType:   s.aggregateType,
		AggregateID:     actx.AggregateID,
		LastSequence:    newSequence,
		CurrentSnapshot: actx.CurrentSnapshot + 1,
		Payload:         payload,
	}
}

// ReplayAll 逐个聚合解码完整历史，存储需实现 store.IReplayRepository
func (s *EventStore[E, A]) ReplayAll(ctx context.Context, fn func(aggregateID string, events []eventing.EventEnvelope[E]) error) error {
	replayer, ok := s.repo.(store.IReplayRepository)
	if !ok {
		return fmt.Errorf("event repository %T does not support replay", s.repo)
	}
	return replayer.StreamAggregateType(ctx, s.aggregateType, func(aggregateID string, serialized []eventing.SerializedEvent) error {
		envelopes, err := s.decodeAll(ctx, aggregateID, serialized)
		if err != nil {
			return err
		}
		return fn(aggregateID, envelopes)
	})
}
