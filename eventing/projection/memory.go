package projection

import (
	"context"
	"sync"

	"gocqrs/eventing"
)

type memoryRow struct {
	version uint64
	payload []byte
}

// MemoryViewRepository 内存视图存储
//
// 视图以序列化字节保存，读写之间不共享可变状态。
type MemoryViewRepository[V any] struct {
	mu         sync.RWMutex
	rows       map[string]memoryRow
	factory    func() V
	serializer eventing.Serializer
}

// NewMemoryViewRepository 创建内存视图存储；factory 提供反序列化目标
func NewMemoryViewRepository[V any](factory func() V) *MemoryViewRepository[V] {
	return &MemoryViewRepository[V]{
		rows:       make(map[string]memoryRow),
		factory:    factory,
		serializer: eventing.JSONSerializer{},
	}
}

func (r *MemoryViewRepository[V]) Load(ctx context.Context, viewID string) (V, bool, error) {
	v, _, found, err := r.LoadWithContext(ctx, viewID)
	return v, found, err
}

func (r *MemoryViewRepository[V]) LoadWithContext(ctx context.Context, viewID string) (V, ViewContext, bool, error) {
	r.mu.RLock()
	row, ok := r.rows[viewID]
	r.mu.RUnlock()

	var zero V
	if !ok {
		return zero, ViewContext{ViewID: viewID}, false, nil
	}
	view := r.factory()
	if err := r.serializer.Unmarshal(row.payload, &view); err != nil {
		return zero, ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeDeserializePayload, "decode view "+viewID, err)
	}
	return view, ViewContext{ViewID: viewID, Version: row.version}, true, nil
}

func (r *MemoryViewRepository[V]) UpdateView(ctx context.Context, view V, vctx ViewContext, newVersion uint64) error {
	payload, err := r.serializer.Marshal(view)
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeSerializePayload, "encode view "+vctx.ViewID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	row, exists := r.rows[vctx.ViewID]
	switch {
	case vctx.Version == 0 && exists:
		return NewViewConflictError(vctx.ViewID, vctx.Version)
	case vctx.Version != 0 && (!exists || row.version != vctx.Version):
		return NewViewConflictError(vctx.ViewID, vctx.Version)
	}
	r.rows[vctx.ViewID] = memoryRow{version: newVersion, payload: payload}
	return nil
}

// Len 已保存的视图数
func (r *MemoryViewRepository[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

var _ IViewRepository[struct{}] = (*MemoryViewRepository[struct{}])(nil)
