package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"gocqrs/data/db/basic"
	"gocqrs/domain/eventsourced"
	"gocqrs/eventing"
	"gocqrs/eventing/monitoring"
	"gocqrs/eventing/projection"
	"gocqrs/eventing/projection/redisview"
	"gocqrs/eventing/publish"
	"gocqrs/eventing/store"
	"gocqrs/eventing/store/snapshot"
	sqlstore "gocqrs/eventing/store/sql"
	"gocqrs/examples/bank"
	"gocqrs/logging"
	"gocqrs/validation"
)

// viewCacheTTL 其他进程写入的视图在本进程最多滞后这么久可见
const viewCacheTTL = 30 * time.Second

// App 装配好的账户服务
type App struct {
	cfg       Config
	logger    logging.Logger
	database  *basic.DB
	events    *sqlstore.SQLEventStore
	views     projection.IViewRepository[*bank.AccountView]
	query     *bank.AccountQuery
	framework *bank.Framework
	metrics   *monitoring.Metrics

	natsConn       *nats.Conn
	redisClient    *redis.Client
	shutdownTraces func(context.Context) error
}

// NewApp 打开数据库、建表并按配置接入外部分发
func NewApp(ctx context.Context, cfg Config, logger logging.Logger) (*App, error) {
	database, err := basic.New(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{cfg: cfg, logger: logger, database: database, metrics: monitoring.NewMetrics()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	tp, shutdown, err := setupTracing(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	a.shutdownTraces = shutdown
	var tracer eventsourced.ICommandTracer = a.metrics
	if tp != nil {
		tracer = monitoring.Tracers(a.metrics, monitoring.NewSpanTracer(tp))
	}

	repoOpts := []sqlstore.Option{sqlstore.WithLogger(a.logger.WithFields(logging.String("component", "eventing.store.sql")))}
	if cfg.DynamoDBLimits {
		repoOpts = append(repoOpts, sqlstore.WithLimits(store.DynamoDBLimits()))
	}
	a.events = sqlstore.NewSQLEventStore(a.database, repoOpts...)
	if err := a.events.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate event store: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}
	if err := a.initViews(ctx); err != nil {
		return err
	}
	a.query = bank.NewAccountQuery(a.views,
		projection.WithErrorHandler[bank.Event, *bank.AccountView](a.metrics.ErrorHandler(a.logger)))

	opts := []eventsourced.Option[bank.Event]{
		eventsourced.WithLogger[bank.Event](a.logger),
		eventsourced.WithHooks[bank.Event](validation.NewCommandHook()),
		eventsourced.WithTracer[bank.Event](tracer),
		eventsourced.WithQuery[bank.Event](
			monitoring.InstrumentQuery[bank.Event](a.query, a.metrics),
			publish.NewLoggingQuery[bank.Event](a.logger)),
	}
	if cfg.SnapshotEvery > 0 {
		opts = append(opts,
			eventsourced.WithSnapshotStrategy[bank.Event](snapshot.NewEventCountStrategy(cfg.SnapshotEvery)),
			eventsourced.WithSnapshotSerializer[bank.Event](eventing.SerializerByName(cfg.SnapshotSerializer)))
	}
	publishers, err := a.initPublishers(ctx)
	if err != nil {
		return err
	}
	for _, p := range publishers {
		opts = append(opts, eventsourced.WithQuery[bank.Event](monitoring.InstrumentQuery[bank.Event](p, a.metrics)))
	}

	a.framework, err = bank.NewFramework(a.events, bank.NewServices(nil), opts...)
	return err
}

func (a *App) initViews(ctx context.Context) error {
	if a.cfg.Redis.Views && a.redisClient != nil {
		repo, err := redisview.New(a.redisClient, "account", bank.NewAccountView, redisview.Config{Logger: a.logger})
		if err != nil {
			return err
		}
		a.views = repo
		if size := a.cfg.Redis.ViewCacheSize; size > 0 {
			a.views = projection.NewCachedViewRepository[*bank.AccountView](repo, bank.NewAccountView,
				projection.CacheConfig{MaxSize: size, TTL: viewCacheTTL})
		}
		return nil
	}
	repo := sqlstore.NewViewRepository(a.database, "account", bank.NewAccountView)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate views: %w", err)
	}
	a.views = repo
	return nil
}

func (a *App) initPublishers(ctx context.Context) ([]projection.IQuery[bank.Event], error) {
	var out []projection.IQuery[bank.Event]
	if a.cfg.NATS.URL != "" {
		conn, js, err := publish.ConnectJetStream(a.cfg.NATS.URL)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.natsConn = conn
		if err := publish.EnsureStream(js, a.cfg.NATS.Stream, a.cfg.NATS.SubjectPrefix, 0); err != nil {
			return nil, fmt.Errorf("ensure stream %s: %w", a.cfg.NATS.Stream, err)
		}
		p, err := publish.NewNATSPublisher[bank.Event](js, publish.NATSConfig{SubjectPrefix: a.cfg.NATS.SubjectPrefix, Logger: a.logger})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if a.redisClient != nil {
		if err := a.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		p, err := publish.NewRedisStreamsPublisher[bank.Event](a.redisClient, publish.RedisStreamsConfig{StreamPrefix: a.cfg.Redis.StreamPrefix, Logger: a.logger})
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Execute 冲突时按配置次数重试
func (a *App) Execute(ctx context.Context, accountID string, cmd bank.Command, metadata eventing.Metadata) error {
	return a.framework.ExecuteWithRetry(ctx, accountID, cmd, metadata, a.cfg.Retries)
}

// Account 读取账户视图
func (a *App) Account(ctx context.Context, accountID string) (*bank.AccountView, bool, error) {
	return a.query.Load(ctx, accountID)
}

// History 账户的完整事件历史
func (a *App) History(ctx context.Context, accountID string) ([]eventing.EventEnvelope[bank.Event], error) {
	return a.framework.EventStore().LoadEvents(ctx, accountID)
}

// Rebuild 从事件日志重建所有账户视图
func (a *App) Rebuild(ctx context.Context) (int, error) {
	return a.framework.RebuildAll(ctx, a.query)
}

// Close 释放连接
func (a *App) Close() error {
	snap := a.metrics.GetSnapshot()
	a.logger.Debug(context.Background(), "bank metrics",
		logging.Int64("commands", snap.CommandsExecuted),
		logging.Int64("user_rejections", snap.UserRejections),
		logging.Int64("concurrency_failures", snap.ConcurrencyFailures),
		logging.String("health", snap.Health(monitoring.DefaultHealthThresholds()).Status))
	if a.shutdownTraces != nil {
		if err := a.shutdownTraces(context.Background()); err != nil {
			a.logger.Warn(context.Background(), "flush traces failed", logging.Error(err))
		}
	}
	if a.natsConn != nil {
		a.natsConn.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	return a.database.Close()
}
