package store

import (
	"fmt"

	"gocqrs/eventing"
)

// ValidateBatch 校验一次提交内的事件：归属同一聚合、sequence 从 expected+1 连续递增
func ValidateBatch(aggregateType, aggregateID string, expectedSequence uint64, events []eventing.SerializedEvent) error {
	for i, e := range events {
		if e.AggregateType != aggregateType || e.AggregateID != aggregateID {
			return eventing.NewStoreError(eventing.ErrCodeStoreFailed,
				fmt.Sprintf("event %d belongs to %s/%s, not %s/%s", i, e.AggregateType, e.AggregateID, aggregateType, aggregateID), nil)
		}
		want := expectedSequence + uint64(i) + 1
		if e.Sequence != want {
			return eventing.NewStoreError(eventing.ErrCodeSequenceGap,
				fmt.Sprintf("event sequence not contiguous: expected %d, got %d", want, e.Sequence), nil)
		}
	}
	return nil
}
