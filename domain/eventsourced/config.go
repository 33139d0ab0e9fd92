package eventsourced

import (
	"context"
	"time"

	"gocqrs/eventing"
	"gocqrs/eventing/projection"
	"gocqrs/eventing/store"
	"gocqrs/eventing/store/snapshot"
	"gocqrs/eventing/upcaster"
	"gocqrs/logging"
)

// ICommandHook 命令执行钩子，可用于审计、统计、前置校验等横切逻辑
//
// BeforeExecute 返回错误时命令不会执行；AfterExecute 的错误只记录日志。
type ICommandHook interface {
	BeforeExecute(ctx context.Context, aggregateType, aggregateID string, command any) error
	AfterExecute(ctx context.Context, aggregateType, aggregateID string, command any, execErr error) error
}

// ICommandTracer 提供命令执行过程的耗时与错误追踪
type ICommandTracer interface {
	Trace(ctx context.Context, commandName string, elapsed time.Duration, err error)
}

// Config 框架装配参数，进程启动时构建一次，之后只读
type Config[E eventing.DomainEvent] struct {
	Queries            []projection.IQuery[E]
	Upcasters          *upcaster.Chain
	SnapshotStrategy   snapshot.Strategy
	SnapshotSerializer eventing.Serializer
	// Limits 为 nil 时使用存储自身声明的限制（ILimitedRepository），否则不限制
	Limits *store.Limits
	Logger logging.Logger
	Hooks  []ICommandHook
	Tracer ICommandTracer
}

// Option 配置项
type Option[E eventing.DomainEvent] func(*Config[E])

// WithQuery 注册提交后的事件消费者，按注册顺序分发
func WithQuery[E eventing.DomainEvent](queries ...projection.IQuery[E]) Option[E] {
	return func(c *Config[E]) { c.Queries = append(c.Queries, queries...) }
}

// WithUpcasters 加载事件时使用的升级链
func WithUpcasters[E eventing.DomainEvent](ups ...upcaster.EventUpcaster) Option[E] {
	return func(c *Config[E]) { c.Upcasters = upcaster.NewChain(ups...) }
}

// WithUpcasterChain 直接指定升级链（可自定义 MaxPasses）
func WithUpcasterChain[E eventing.DomainEvent](chain *upcaster.Chain) Option[E] {
	return func(c *Config[E]) { c.Upcasters = chain }
}

// WithSnapshotStrategy 快照策略，默认从不生成快照
func WithSnapshotStrategy[E eventing.DomainEvent](s snapshot.Strategy) Option[E] {
	return func(c *Config[E]) { c.SnapshotStrategy = s }
}

// WithSnapshotSerializer 快照状态的编解码器，默认 JSON
func WithSnapshotSerializer[E eventing.DomainEvent](s eventing.Serializer) Option[E] {
	return func(c *Config[E]) { c.SnapshotSerializer = s }
}

// WithLimits 覆盖后端限制
func WithLimits[E eventing.DomainEvent](l store.Limits) Option[E] {
	return func(c *Config[E]) { c.Limits = &l }
}

// WithLogger 自定义日志
func WithLogger[E eventing.DomainEvent](l logging.Logger) Option[E] {
	return func(c *Config[E]) { c.Logger = l }
}

// WithHooks 命令执行钩子
func WithHooks[E eventing.DomainEvent](hooks ...ICommandHook) Option[E] {
	return func(c *Config[E]) { c.Hooks = append(c.Hooks, hooks...) }
}

// WithTracer 命令追踪
func WithTracer[E eventing.DomainEvent](t ICommandTracer) Option[E] {
	return func(c *Config[E]) { c.Tracer = t }
}

func buildConfig[E eventing.DomainEvent](repo store.IEventRepository, opts []Option[E]) Config[E] {
	var c Config[E]
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.SnapshotStrategy == nil {
		c.SnapshotStrategy = snapshot.Never{}
	}
	if c.SnapshotSerializer == nil {
		c.SnapshotSerializer = eventing.JSONSerializer{}
	}
	if c.Limits == nil {
		l := store.Unlimited()
		if limited, ok := repo.(store.ILimitedRepository); ok {
			l = limited.Limits()
		}
		c.Limits = &l
	}
	if c.Logger == nil {
		c.Logger = logging.ComponentLogger("domain.eventsourced")
	}
	return c
}
