package sql

import (
	"context"
	"fmt"

	"gocqrs/data/db"
	"gocqrs/data/db/dialect"
	"gocqrs/eventing/store"
	"gocqrs/logging"
)

// SQLEventStore 基于通用 SQL 接口的事件存储（事件表 + 快照表）
type SQLEventStore struct {
	db             db.IDatabase
	dialect        dialect.Dialect
	eventsTable    string
	snapshotsTable string
	limits         store.Limits
	logger         logging.Logger
}

// Option SQLEventStore 可选配置
type Option func(*SQLEventStore)

// WithTables 自定义事件表与快照表名
func WithTables(events, snapshots string) Option {
	return func(s *SQLEventStore) {
		if events != "" {
			s.eventsTable = events
		}
		if snapshots != "" {
			s.snapshotsTable = snapshots
		}
	}
}

// WithLimits 声明后端限制
func WithLimits(l store.Limits) Option {
	return func(s *SQLEventStore) { s.limits = l }
}

// WithLogger 替换默认的组件日志
func WithLogger(l logging.Logger) Option {
	return func(s *SQLEventStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLEventStore 创建 SQL 事件存储
func NewSQLEventStore(database db.IDatabase, opts ...Option) *SQLEventStore {
	s := &SQLEventStore{
		db:             database,
		dialect:        dialect.FromDatabase(database),
		eventsTable:    "events",
		snapshotsTable: "snapshots",
		logger:         logging.ComponentLogger("eventing.store.sql"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate 创建事件表与快照表（幂等）
func (s *SQLEventStore) Migrate(ctx context.Context) error {
	blob := s.dialect.BinaryType()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	aggregate_type VARCHAR(255) NOT NULL,
	aggregate_id   VARCHAR(255) NOT NULL,
	sequence       BIGINT NOT NULL,
	event_type     VARCHAR(255) NOT NULL,
	event_version  VARCHAR(64) NOT NULL,
	payload        %s NOT NULL,
	metadata       TEXT NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id, sequence)
)`, s.eventsTable, blob),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	aggregate_type   VARCHAR(255) NOT NULL,
	aggregate_id     VARCHAR(255) NOT NULL,
	last_sequence    BIGINT NOT NULL,
	current_snapshot BIGINT NOT NULL,
	payload          %s NOT NULL,
	PRIMARY KEY (aggregate_type, aggregate_id)
)`, s.snapshotsTable, blob),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLEventStore) Limits() store.Limits { return s.limits }
func (s *SQLEventStore) GetDB() db.IDatabase  { return s.db }

var (
	_ store.IEventRepository   = (*SQLEventStore)(nil)
	_ store.ILimitedRepository = (*SQLEventStore)(nil)
	_ store.IReplayRepository  = (*SQLEventStore)(nil)
)
