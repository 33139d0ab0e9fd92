package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gocqrs/data/db"
	"gocqrs/eventing"
	"gocqrs/eventing/store"
	log "gocqrs/logging"
)

// Commit 在单个事务内写入事件与可选快照
//
// 事务内先校验当前最大 sequence 等于 expectedSequence，再批量插入。
// 主键冲突与锁竞争（并发写入者持有写锁、等待超时）都报告为 *eventing.ConcurrencyError，
// 调用方重新加载后重试即可；其余失败为 STORE_FAILED。
func (s *SQLEventStore) Commit(ctx context.Context, aggregateType, aggregateID string, expectedSequence uint64, events []eventing.SerializedEvent, snapshot *eventing.SerializedSnapshot) error {
	if len(events) == 0 && snapshot == nil {
		return nil
	}
	if err := store.ValidateBatch(aggregateType, aggregateID, expectedSequence, events); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		if s.dialect.IsLockContention(err) {
			return s.conflict(ctx, aggregateType, aggregateID, expectedSequence)
		}
		return eventing.NewStoreError(eventing.ErrCodeStoreFailed, "begin transaction failed", err)
	}
	defer tx.Rollback()

	abort := func(err error, msg string) error {
		_ = tx.Rollback()
		return s.classify(ctx, err, msg, aggregateType, aggregateID, expectedSequence)
	}

	current, err := s.currentSequence(ctx, tx, aggregateType, aggregateID)
	if err != nil {
		return abort(err, "query current sequence failed")
	}
	if current != expectedSequence {
		return eventing.NewConcurrencyError(aggregateType, aggregateID, expectedSequence, current)
	}

	if err := s.insertEvents(ctx, tx, events); err != nil {
		return abort(err, "insert events failed")
	}
	if snapshot != nil {
		if err := s.writeSnapshot(ctx, tx, snapshot); err != nil {
			return abort(err, "write snapshot failed")
		}
	}
	if err := tx.Commit(); err != nil {
		return abort(err, "commit transaction failed")
	}

	s.logger.Debug(ctx, "events committed",
		log.String("aggregate_type", aggregateType),
		log.String("aggregate_id", aggregateID),
		log.Uint64("expected_sequence", expectedSequence),
		log.Int("event_count", len(events)),
		log.Bool("snapshot", snapshot != nil))
	return nil
}

// classify 在事务结束后归类提交错误
func (s *SQLEventStore) classify(ctx context.Context, err error, msg, aggregateType, aggregateID string, expected uint64) error {
	if s.dialect.IsUniqueViolation(err) || s.dialect.IsLockContention(err) {
		s.logger.Debug(ctx, "commit lost to a concurrent writer",
			log.String("aggregate_id", aggregateID),
			log.Error(err))
		return s.conflict(ctx, aggregateType, aggregateID, expected)
	}
	var storeErr *eventing.StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return eventing.NewStoreError(eventing.ErrCodeStoreFailed, msg, err)
}

func (s *SQLEventStore) insertEvents(ctx context.Context, tx db.IDatabase, events []eventing.SerializedEvent) error {
	if len(events) == 0 {
		return nil
	}
	placeholders := make([]string, len(events))
	args := make([]any, 0, len(events)*7)
	for i, evt := range events {
		metadataJSON, err := json.Marshal(evt.Metadata)
		if err != nil {
			return &eventing.StoreError{Code: eventing.ErrCodeSerializePayload, Message: "serialize metadata failed", Cause: err, EventType: evt.EventType}
		}
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			evt.AggregateType, evt.AggregateID, evt.Sequence,
			evt.EventType, evt.EventVersion, evt.Payload, string(metadataJSON),
		)
	}

	batchSQL := fmt.Sprintf(
		"INSERT INTO %s (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata) VALUES %s",
		s.eventsTable,
		strings.Join(placeholders, ","),
	)
	_, err := tx.Exec(ctx, batchSQL, args...)
	return err
}

// writeSnapshot 按代际条件写入快照；代际不连续时跳过
func (s *SQLEventStore) writeSnapshot(ctx context.Context, tx db.IDatabase, snap *eventing.SerializedSnapshot) error {
	var previous uint64
	found := true
	row := tx.QueryRow(ctx, fmt.Sprintf("SELECT current_snapshot FROM %s WHERE aggregate_type = ? AND aggregate_id = ?", s.snapshotsTable),
		snap.AggregateType, snap.AggregateID)
	if err := row.Scan(&previous); err != nil {
		if !isNoRows(err) {
			return err
		}
		found = false
	}

	if snap.CurrentSnapshot != previous+1 {
		s.logger.Debug(ctx, "snapshot generation mismatch, skipped",
			log.String("aggregate_id", snap.AggregateID),
			log.Uint64("previous", previous),
			log.Uint64("proposed", snap.CurrentSnapshot))
		return nil
	}

	var err error
	if !found {
		_, err = tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (aggregate_type, aggregate_id, last_sequence, current_snapshot, payload) VALUES (?, ?, ?, ?, ?)", s.snapshotsTable),
			snap.AggregateType, snap.AggregateID, snap.LastSequence, snap.CurrentSnapshot, snap.Payload)
	} else {
		_, err = tx.Exec(ctx, fmt.Sprintf("UPDATE %s SET last_sequence = ?, current_snapshot = ?, payload = ? WHERE aggregate_type = ? AND aggregate_id = ? AND current_snapshot = ?", s.snapshotsTable),
			snap.LastSequence, snap.CurrentSnapshot, snap.Payload, snap.AggregateType, snap.AggregateID, previous)
	}
	return err
}

func (s *SQLEventStore) currentSequence(ctx context.Context, q db.IDatabase, aggregateType, aggregateID string) (uint64, error) {
	var current uint64
	row := q.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(sequence), 0) FROM %s WHERE aggregate_type = ? AND aggregate_id = ?", s.eventsTable), aggregateType, aggregateID)
	if err := row.Scan(&current); err != nil {
		return 0, err
	}
	return current, nil
}

// conflict 在事务外读取最新 sequence 组装冲突错误，调用前必须已结束事务
//
// 仅因锁竞争失败时读到的 sequence 可能仍等于 expected。
func (s *SQLEventStore) conflict(ctx context.Context, aggregateType, aggregateID string, expected uint64) error {
	actual, err := s.currentSequence(ctx, s.db, aggregateType, aggregateID)
	if err != nil {
		actual = expected + 1
	}
	return eventing.NewConcurrencyError(aggregateType, aggregateID, expected, actual)
}
