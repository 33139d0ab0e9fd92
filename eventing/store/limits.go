package store

import (
	"gocqrs/eventing"
)

// Limits 后端对单次提交的硬性限制；0 表示不限制
type Limits struct {
	// MaxEventsPerCommit 单次提交最多事件数
	MaxEventsPerCommit int
	// MaxEventsWithSnapshot 与快照同事务提交时最多事件数
	MaxEventsWithSnapshot int
	// MaxItemBytes 单条事件记录最大字节数
	MaxItemBytes int
	// MaxCommitBytes 单次提交的总字节数
	MaxCommitBytes int
}

// Unlimited 不做限制（关系型后端默认）
func Unlimited() Limits { return Limits{} }

// DynamoDBLimits DynamoDB 事务写入的限制：25 项（含快照时 24 项事件），单项 400KB
func DynamoDBLimits() Limits {
	return Limits{
		MaxEventsPerCommit:    25,
		MaxEventsWithSnapshot: 24,
		MaxItemBytes:          400 * 1024,
		MaxCommitBytes:        1024 * 1024,
	}
}

// CheckCount 校验事件条数
func (l Limits) CheckCount(count int, withSnapshot bool) error {
	if withSnapshot && l.MaxEventsWithSnapshot > 0 && count > l.MaxEventsWithSnapshot {
		return &eventing.BatchLimitError{Limit: "events per commit with snapshot", Max: l.MaxEventsWithSnapshot, Actual: count}
	}
	if l.MaxEventsPerCommit > 0 && count > l.MaxEventsPerCommit {
		return &eventing.BatchLimitError{Limit: "events per commit", Max: l.MaxEventsPerCommit, Actual: count}
	}
	return nil
}

// CheckSize 校验单条与总字节数
func (l Limits) CheckSize(events []eventing.SerializedEvent, snapshot *eventing.SerializedSnapshot) error {
	total := 0
	for _, evt := range events {
		size := evt.Size()
		if l.MaxItemBytes > 0 && size > l.MaxItemBytes {
			return &eventing.BatchLimitError{Limit: "item size", Max: l.MaxItemBytes, Actual: size}
		}
		total += size
	}
	if snapshot != nil {
		if l.MaxItemBytes > 0 && len(snapshot.Payload) > l.MaxItemBytes {
			return &eventing.BatchLimitError{Limit: "snapshot size", Max: l.MaxItemBytes, Actual: len(snapshot.Payload)}
		}
		total += len(snapshot.Payload)
	}
	if l.MaxCommitBytes > 0 && total > l.MaxCommitBytes {
		return &eventing.BatchLimitError{Limit: "commit size", Max: l.MaxCommitBytes, Actual: total}
	}
	return nil
}
