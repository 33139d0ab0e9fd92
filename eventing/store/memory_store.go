package store

import (
	"context"
	"sort"
	"sync"

	"gocqrs/eventing"
)

// MemoryEventRepository 内存实现，用于测试与示例
//
// 一把互斥锁保护全部状态，Commit 内部以"当前最大 sequence == expectedSequence"作为比较并交换条件。
type MemoryEventRepository struct {
	mu        sync.RWMutex
	events    map[streamKey][]eventing.SerializedEvent
	snapshots map[streamKey]eventing.SerializedSnapshot
	limits    Limits
}

// NewMemoryEventRepository 创建内存存储
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{
		events:    make(map[streamKey][]eventing.SerializedEvent),
		snapshots: make(map[streamKey]eventing.SerializedSnapshot),
	}
}

// WithLimits 模拟受限后端（例如 DynamoDB）
func (m *MemoryEventRepository) WithLimits(l Limits) *MemoryEventRepository {
	m.limits = l
	return m
}

// Limits 实现 ILimitedRepository
func (m *MemoryEventRepository) Limits() Limits { return m.limits }

func (m *MemoryEventRepository) LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]eventing.SerializedEvent, error) {
	return m.LoadEventsAfter(ctx, aggregateType, aggregateID, 0)
}

func (m *MemoryEventRepository) LoadEventsAfter(ctx context.Context, aggregateType, aggregateID string, afterSequence uint64) ([]eventing.SerializedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.events[streamKey{aggregateType, aggregateID}]
	res := make([]eventing.SerializedEvent, 0, len(stored))
	for _, e := range stored {
		if e.Sequence > afterSequence {
			res = append(res, cloneEvent(e))
		}
	}
	return res, nil
}

func (m *MemoryEventRepository) LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*eventing.SerializedSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[streamKey{aggregateType, aggregateID}]
	if !ok {
		return nil, nil
	}
	snap.Payload = append([]byte(nil), snap.Payload...)
	return &snap, nil
}

func (m *MemoryEventRepository) CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentSequenceUnsafe(streamKey{aggregateType, aggregateID}), nil
}

func (m *MemoryEventRepository) Commit(ctx context.Context, aggregateType, aggregateID string, expectedSequence uint64, events []eventing.SerializedEvent, snapshot *eventing.SerializedSnapshot) error {
	if err := ctx.Err(); err != nil {
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "commit cancelled", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := streamKey{aggregateType, aggregateID}
	current := m.currentSequenceUnsafe(key)
	if current != expectedSequence {
		return eventing.NewConcurrencyError(aggregateType, aggregateID, expectedSequence, current)
	}
	if err := ValidateBatch(aggregateType, aggregateID, expectedSequence, events); err != nil {
		return err
	}

	for _, e := range events {
		m.events[key] = append(m.events[key], cloneEvent(e))
	}

	if snapshot != nil {
		prev, exists := m.snapshots[key]
		// 快照代际不匹配时放弃快照写入，事件提交不受影响
		if (!exists && snapshot.CurrentSnapshot == 1) || (exists && prev.CurrentSnapshot+1 == snapshot.CurrentSnapshot) {
			cp := *snapshot
			cp.Payload = append([]byte(nil), snapshot.Payload...)
			m.snapshots[key] = cp
		}
	}
	return nil
}

// StreamAggregateType 实现 IReplayRepository，按聚合 ID 排序回调
func (m *MemoryEventRepository) StreamAggregateType(ctx context.Context, aggregateType string, fn func(aggregateID string, events []eventing.SerializedEvent) error) error {
	m.mu.RLock()
	ids := make([]string, 0)
	batches := make(map[string][]eventing.SerializedEvent)
	for key, evts := range m.events {
		if len(evts) == 0 || key.aggregateType != aggregateType {
			continue
		}
		id := key.aggregateID
		ids = append(ids, id)
		cp := make([]eventing.SerializedEvent, len(evts))
		for i, e := range evts {
			cp[i] = cloneEvent(e)
		}
		batches[id] = cp
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id, batches[id]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryEventRepository) currentSequenceUnsafe(key streamKey) uint64 {
	stored := m.events[key]
	if len(stored) == 0 {
		return 0
	}
	return stored[len(stored)-1].Sequence
}

// streamKey 标识一条聚合事件流
type streamKey struct {
	aggregateType string
	aggregateID   string
}

func cloneEvent(e eventing.SerializedEvent) eventing.SerializedEvent {
	e.Payload = append([]byte(nil), e.Payload...)
	e.Metadata = e.Metadata.Clone()
	return e
}

// 确认实现接口
var (
	_ IEventRepository   = (*MemoryEventRepository)(nil)
	_ ILimitedRepository = (*MemoryEventRepository)(nil)
	_ IReplayRepository  = (*MemoryEventRepository)(nil)
)
