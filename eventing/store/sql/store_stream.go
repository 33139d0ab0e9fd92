package sql

import (
	"context"
	"fmt"

	"gocqrs/eventing"
)

// StreamAggregateType 逐个聚合回调其完整事件序列（按聚合 ID 排序）
//
// 先读出聚合 ID 列表并关闭游标，再逐个加载，回调中可以安全地访问同一数据库。
func (s *SQLEventStore) StreamAggregateType(ctx context.Context, aggregateType string, fn func(aggregateID string, events []eventing.SerializedEvent) error) error {
	rows, err := s.db.Query(ctx, fmt.Sprintf("SELECT DISTINCT aggregate_id FROM %s WHERE aggregate_type = ? ORDER BY aggregate_id ASC", s.eventsTable), aggregateType)
	if err != nil {
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "list aggregates failed", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "scan aggregate id failed", err)
		}
		ids = append(ids, id)
	}
	iterErr := rows.Err()
	rows.Close()
	if iterErr != nil {
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "list aggregates failed", iterErr)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		events, err := s.LoadEvents(ctx, aggregateType, id)
		if err != nil {
			return err
		}
		if err := fn(id, events); err != nil {
			return err
		}
	}
	return nil
}
