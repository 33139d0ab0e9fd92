package projection

import (
	"context"
	"errors"
	"fmt"

	"gocqrs/eventing"
)

// View 读模型：按提交顺序逐条吸收事件
//
// Update 必须是纯内存操作；持久化由 IViewRepository 负责。
type View[E eventing.DomainEvent] interface {
	Update(event *eventing.EventEnvelope[E])
}

// ViewContext 读取视图时得到的乐观锁令牌
type ViewContext struct {
	ViewID string
	// Version 读取时视图已吸收的事件数，新视图为 0
	Version uint64
}

// IViewRepository 视图存储
//
// UpdateView 以 vctx.Version 为条件写入：Version 为 0 时插入新行，否则仅当存储中的版本仍等于
// vctx.Version 时更新为 newVersion；条件不满足返回 *ViewConflictError。
type IViewRepository[V any] interface {
	Load(ctx context.Context, viewID string) (V, bool, error)
	LoadWithContext(ctx context.Context, viewID string) (V, ViewContext, bool, error)
	UpdateView(ctx context.Context, view V, vctx ViewContext, newVersion uint64) error
}

// ErrViewConflict 视图乐观锁冲突
var ErrViewConflict = errors.New("view version conflict")

// ViewConflictError 视图写入时版本已被其他写入者推进
type ViewConflictError struct {
	ViewID          string
	ExpectedVersion uint64
}

func (e *ViewConflictError) Error() string {
	return fmt.Sprintf("view version conflict: %s expected version %d", e.ViewID, e.ExpectedVersion)
}

func (e *ViewConflictError) Is(target error) bool { return target == ErrViewConflict }

// NewViewConflictError 创建视图冲突错误
func NewViewConflictError(viewID string, expected uint64) *ViewConflictError {
	return &ViewConflictError{ViewID: viewID, ExpectedVersion: expected}
}

// IsViewConflict 判断是否为视图乐观锁冲突
func IsViewConflict(err error) bool {
	return errors.Is(err, ErrViewConflict)
}
