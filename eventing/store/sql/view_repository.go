package sql

import (
	"context"
	"fmt"

	"gocqrs/data/db"
	"gocqrs/data/db/dialect"
	"gocqrs/eventing"
	"gocqrs/eventing/projection"
)

// ViewRepository 基于 SQL 的视图存储，所有视图类型共用一张表，以 view_type 区分
type ViewRepository[V any] struct {
	db         db.IDatabase
	dialect    dialect.Dialect
	table      string
	viewType   string
	factory    func() V
	serializer eventing.Serializer
}

// ViewOption ViewRepository 可选配置
type ViewOption func(*viewOptions)

type viewOptions struct {
	table      string
	serializer eventing.Serializer
}

// WithViewTable 自定义视图表名
func WithViewTable(table string) ViewOption {
	return func(o *viewOptions) { o.table = table }
}

// WithViewSerializer 自定义视图序列化器（默认 JSON）
func WithViewSerializer(s eventing.Serializer) ViewOption {
	return func(o *viewOptions) { o.serializer = s }
}

// NewViewRepository 创建视图存储
func NewViewRepository[V any](database db.IDatabase, viewType string, factory func() V, opts ...ViewOption) *ViewRepository[V] {
	o := viewOptions{table: "views", serializer: eventing.JSONSerializer{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &ViewRepository[V]{
		db:         database,
		dialect:    dialect.FromDatabase(database),
		table:      o.table,
		viewType:   viewType,
		factory:    factory,
		serializer: o.serializer,
	}
}

// Migrate 创建视图表（幂等）
func (r *ViewRepository[V]) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	view_type VARCHAR(255) NOT NULL,
	view_id   VARCHAR(255) NOT NULL,
	version   BIGINT NOT NULL,
	payload   %s NOT NULL,
	PRIMARY KEY (view_type, view_id)
)`, r.table, r.dialect.BinaryType()))
	return err
}

func (r *ViewRepository[V]) Load(ctx context.Context, viewID string) (V, bool, error) {
	v, _, found, err := r.LoadWithContext(ctx, viewID)
	return v, found, err
}

func (r *ViewRepository[V]) LoadWithContext(ctx context.Context, viewID string) (V, projection.ViewContext, bool, error) {
	var (
		zero    V
		version uint64
		payload []byte
	)
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT version, payload FROM %s WHERE view_type = ? AND view_id = ?", r.table), r.viewType, viewID)
	if err := row.Scan(&version, &payload); err != nil {
		if isNoRows(err) {
			return zero, projection.ViewContext{ViewID: viewID}, false, nil
		}
		return zero, projection.ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "load view failed", err)
	}
	view := r.factory()
	if err := r.serializer.Unmarshal(payload, &view); err != nil {
		return zero, projection.ViewContext{}, false, eventing.NewStoreError(eventing.ErrCodeDeserializePayload, "decode view "+viewID, err)
	}
	return view, projection.ViewContext{ViewID: viewID, Version: version}, true, nil
}

func (r *ViewRepository[V]) UpdateView(ctx context.Context, view V, vctx projection.ViewContext, newVersion uint64) error {
	payload, err := r.serializer.Marshal(view)
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeSerializePayload, "encode view "+vctx.ViewID, err)
	}

	if vctx.Version == 0 {
		_, err := r.db.Exec(ctx, fmt.Sprintf("INSERT INTO %s (view_type, view_id, version, payload) VALUES (?, ?, ?, ?)", r.table),
			r.viewType, vctx.ViewID, newVersion, payload)
		if err != nil {
			if r.dialect.IsUniqueViolation(err) || r.dialect.IsLockContention(err) {
				return projection.NewViewConflictError(vctx.ViewID, vctx.Version)
			}
			return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "insert view failed", err)
		}
		return nil
	}

	res, err := r.db.Exec(ctx, fmt.Sprintf("UPDATE %s SET version = ?, payload = ? WHERE view_type = ? AND view_id = ? AND version = ?", r.table),
		newVersion, payload, r.viewType, vctx.ViewID, vctx.Version)
	if err != nil {
		if r.dialect.IsLockContention(err) {
			return projection.NewViewConflictError(vctx.ViewID, vctx.Version)
		}
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "update view failed", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "update view failed", err)
	}
	if affected == 0 {
		return projection.NewViewConflictError(vctx.ViewID, vctx.Version)
	}
	return nil
}

var _ projection.IViewRepository[struct{}] = (*ViewRepository[struct{}])(nil)
