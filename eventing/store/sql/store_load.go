package sql

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gocqrs/data/db"
	"gocqrs/eventing"
)

const eventColumns = "aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata"

func (s *SQLEventStore) LoadEvents(ctx context.Context, aggregateType, aggregateID string) ([]eventing.SerializedEvent, error) {
	return s.LoadEventsAfter(ctx, aggregateType, aggregateID, 0)
}

func (s *SQLEventStore) LoadEventsAfter(ctx context.Context, aggregateType, aggregateID string, afterSequence uint64) ([]eventing.SerializedEvent, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE aggregate_type = ? AND aggregate_id = ? AND sequence > ? ORDER BY sequence ASC", eventColumns, s.eventsTable)
	rows, err := s.db.Query(ctx, query, aggregateType, aggregateID, afterSequence)
	if err != nil {
		return nil, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "load events failed", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *SQLEventStore) LoadSnapshot(ctx context.Context, aggregateType, aggregateID string) (*eventing.SerializedSnapshot, error) {
	snap := &eventing.SerializedSnapshot{AggregateType: aggregateType, AggregateID: aggregateID}
	row := s.db.QueryRow(ctx, fmt.Sprintf("SELECT last_sequence, current_snapshot, payload FROM %s WHERE aggregate_type = ? AND aggregate_id = ?", s.snapshotsTable),
		aggregateType, aggregateID)
	if err := row.Scan(&snap.LastSequence, &snap.CurrentSnapshot, &snap.Payload); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "load snapshot failed", err)
	}
	return snap, nil
}

func (s *SQLEventStore) CurrentSequence(ctx context.Context, aggregateType, aggregateID string) (uint64, error) {
	seq, err := s.currentSequence(ctx, s.db, aggregateType, aggregateID)
	if err != nil {
		return 0, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "query current sequence failed", err)
	}
	return seq, nil
}

func scanEvents(rows db.IRows) ([]eventing.SerializedEvent, error) {
	var out []eventing.SerializedEvent
	for rows.Next() {
		var (
			evt          eventing.SerializedEvent
			metadataJSON string
		)
		if err := rows.Scan(&evt.AggregateType, &evt.AggregateID, &evt.Sequence, &evt.EventType, &evt.EventVersion, &evt.Payload, &metadataJSON); err != nil {
			return nil, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "scan event failed", err)
		}
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &evt.Metadata); err != nil {
				return nil, &eventing.StoreError{Code: eventing.ErrCodeDeserializePayload, Message: "decode metadata failed", Cause: err, EventType: evt.EventType}
			}
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, eventing.NewStoreError(eventing.ErrCodeStoreFailed, "iterate events failed", err)
	}
	return out, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, stdsql.ErrNoRows)
}
