package projection

import (
	"context"
	"time"

	"gocqrs/cache"
	"gocqrs/eventing"
)

type cachedRow struct {
	version uint64
	payload []byte
}

// CachedViewRepository 在远端视图存储前加一层进程内读缓存
//
// 写入总是先落到底层存储；成功后刷新缓存，失败（包括版本冲突）时丢弃该条目，
// 下一次读取回源。缓存中的版本过旧时，底层的条件写入会以冲突拒绝，GenericQuery 随后重新读取。
type CachedViewRepository[V any] struct {
	inner      IViewRepository[V]
	rows       *cache.Cache[string, cachedRow]
	factory    func() V
	serializer eventing.Serializer
}

// CacheConfig 视图缓存参数
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// NewCachedViewRepository 包装视图存储
func NewCachedViewRepository[V any](inner IViewRepository[V], factory func() V, cfg CacheConfig) *CachedViewRepository[V] {
	return &CachedViewRepository[V]{
		inner:      inner,
		rows:       cache.New[string, cachedRow](cache.Config{Name: "views", MaxSize: cfg.MaxSize, TTL: cfg.TTL}),
		factory:    factory,
		serializer: eventing.JSONSerializer{},
	}
}

func (r *CachedViewRepository[V]) Load(ctx context.Context, viewID string) (V, bool, error) {
	v, _, found, err := r.LoadWithContext(ctx, viewID)
	return v, found, err
}

func (r *CachedViewRepository[V]) LoadWithContext(ctx context.Context, viewID string) (V, ViewContext, bool, error) {
	if row, ok := r.rows.Get(viewID); ok {
		view := r.factory()
		if err := r.serializer.Unmarshal(row.payload, &view); err == nil {
			return view, ViewContext{ViewID: viewID, Version: row.version}, true, nil
		}
		r.rows.Delete(viewID)
	}

	view, vctx, found, err := r.inner.LoadWithContext(ctx, viewID)
	if err != nil || !found {
		return view, vctx, found, err
	}
	r.store(viewID, view, vctx.Version)
	return view, vctx, true, nil
}

func (r *CachedViewRepository[V]) UpdateView(ctx context.Context, view V, vctx ViewContext, newVersion uint64) error {
	if err := r.inner.UpdateView(ctx, view, vctx, newVersion); err != nil {
		r.rows.Delete(vctx.ViewID)
		return err
	}
	r.store(vctx.ViewID, view, newVersion)
	return nil
}

// Stats 缓存命中统计
func (r *CachedViewRepository[V]) Stats() cache.Stats {
	return r.rows.Stats()
}

func (r *CachedViewRepository[V]) store(viewID string, view V, version uint64) {
	payload, err := r.serializer.Marshal(view)
	if err != nil {
		r.rows.Delete(viewID)
		return
	}
	r.rows.Set(viewID, cachedRow{version: version, payload: payload})
}

var _ IViewRepository[struct{}] = (*CachedViewRepository[struct{}])(nil)
