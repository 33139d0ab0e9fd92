package main

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"gocqrs/data/db"
)

// Config 命令行配置；优先级：flag > 环境变量 (BANK_*) > 配置文件 > 默认值
type Config struct {
	LogLevel string      `toml:"log_level" env:"LOG_LEVEL"`
	Database db.DBConfig `toml:"database" envPrefix:"DB_"`

	// SnapshotEvery 每累计多少事件写一次快照，0 表示不写
	SnapshotEvery      uint64 `toml:"snapshot_every" env:"SNAPSHOT_EVERY"`
	SnapshotSerializer string `toml:"snapshot_serializer" env:"SNAPSHOT_SERIALIZER"`
	// DynamoDBLimits 按 DynamoDB 事务限制校验批量大小
	DynamoDBLimits bool `toml:"dynamodb_limits" env:"DYNAMODB_LIMITS"`
	Retries        int  `toml:"retries" env:"RETRIES"`

	NATS  NATSConfig  `toml:"nats" envPrefix:"NATS_"`
	Redis RedisConfig `toml:"redis" envPrefix:"REDIS_"`
	OTel  OTelConfig  `toml:"otel" envPrefix:"OTEL_"`
}

// OTelConfig 命令追踪导出；Endpoint 为空时不启用
type OTelConfig struct {
	Endpoint    string `toml:"endpoint" env:"ENDPOINT"`
	ServiceName string `toml:"service_name" env:"SERVICE_NAME"`
}

type NATSConfig struct {
	URL           string `toml:"url" env:"URL"`
	Stream        string `toml:"stream" env:"STREAM"`
	SubjectPrefix string `toml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type RedisConfig struct {
	Addr         string `toml:"addr" env:"ADDR"`
	Password     string `toml:"password" env:"PASSWORD"`
	DB           int    `toml:"db" env:"DB"`
	StreamPrefix string `toml:"stream_prefix" env:"STREAM_PREFIX"`
	// Views 为 true 时账户视图存放在 Redis，否则存放在数据库
	Views bool `toml:"views" env:"VIEWS"`
	// ViewCacheSize 进程内视图读缓存条目数，0 表示不缓存
	ViewCacheSize int `toml:"view_cache_size" env:"VIEW_CACHE_SIZE"`
}

// DefaultConfig 本地 sqlite 文件，不启用外部分发
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Database: db.DBConfig{
			Driver:       "sqlite",
			Database:     "bank.db",
			MaxOpenConns: 1,
		},
		SnapshotSerializer: "json",
		Retries:            3,
		NATS: NATSConfig{
			Stream:        "BANK_EVENTS",
			SubjectPrefix: "bank.",
		},
		Redis: RedisConfig{
			StreamPrefix: "bank:events:",
		},
		OTel: OTelConfig{
			ServiceName: "bank",
		},
	}
}

// LoadConfig 依次叠加配置文件与环境变量；path 为空或文件不存在时跳过文件
func LoadConfig(path string, environ map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}
	opts := env.Options{Prefix: "BANK_"}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate 校验必填项
func (c Config) Validate() error {
	if c.Database.Driver == "" {
		return fmt.Errorf("database.driver is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	return nil
}
