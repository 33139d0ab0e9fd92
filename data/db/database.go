// Package db 提供事件存储与视图存储共用的数据库抽象
//
// SQL 适配器只依赖这里的接口，具体驱动（modernc sqlite、postgres 等）由 basic 包在启动时装配。
package db

import (
	"context"
	"database/sql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	// 查询操作
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow

	// 执行操作
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	// 事务操作
	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	// 连接管理
	Ping(ctx context.Context) error
	Close() error
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "mysql"、"sqlite"、"postgres" 等 driver/dialect 名，
// 供存储层推断方言能力（占位符、唯一键错误识别等）。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string `toml:"driver" env:"DRIVER"` // sqlite, postgres, mysql
	Database string `toml:"dsn" env:"DSN"`       // DSN 或文件路径

	// 连接池配置
	MaxOpenConns    int `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime int `toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"` // 秒

	// BusyTimeout sqlite 等待写锁的毫秒数，0 取默认值
	BusyTimeout int `toml:"busy_timeout_ms" env:"BUSY_TIMEOUT_MS"`
}
