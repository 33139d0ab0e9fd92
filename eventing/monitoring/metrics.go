// Package monitoring 命令执行与投影分发的进程内指标
package monitoring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gocqrs/errors"
	"gocqrs/eventing"
	"gocqrs/eventing/projection"
	"gocqrs/logging"
)

// Metrics 指标收集器，可同时作为编排器的 Tracer 与投影的 ErrorHandler 使用
type Metrics struct {
	// 命令指标
	CommandsExecuted    int64
	CommandDuration     int64 // 纳秒
	UserRejections      int64
	ConcurrencyFailures int64
	ValidationFailures  int64
	TechnicalFailures   int64

	// 投影指标
	EventsDispatched  int64
	ProjectionUpdates int64
	ProjectionErrors  int64
	ProjectionTime    int64 // 纳秒
	// ViewUpdateFailures 重试耗尽后仍失败的视图写入
	ViewUpdateFailures int64

	startTime time.Time
	mutex     sync.RWMutex
	byCommand map[string]int64
}

// NewMetrics 创建指标收集器
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now(), byCommand: make(map[string]int64)}
}

// Trace 记录一次命令执行，按错误分类计数
func (m *Metrics) Trace(ctx context.Context, commandName string, elapsed time.Duration, err error) {
	atomic.AddInt64(&m.CommandsExecuted, 1)
	atomic.AddInt64(&m.CommandDuration, int64(elapsed))

	m.mutex.Lock()
	m.byCommand[commandName]++
	m.mutex.Unlock()

	if err == nil {
		return
	}
	switch errors.GetErrorCode(err) {
	case errors.ErrCodeUserError:
		atomic.AddInt64(&m.UserRejections, 1)
	case errors.ErrCodeConcurrency:
		atomic.AddInt64(&m.ConcurrencyFailures, 1)
	case errors.ErrCodeValidation:
		atomic.AddInt64(&m.ValidationFailures, 1)
	default:
		atomic.AddInt64(&m.TechnicalFailures, 1)
	}
}

// RecordProjection 记录一次投影分发
func (m *Metrics) RecordProjection(events int, duration time.Duration, err error) {
	atomic.AddInt64(&m.ProjectionUpdates, 1)
	atomic.AddInt64(&m.EventsDispatched, int64(events))
	atomic.AddInt64(&m.ProjectionTime, int64(duration))
	if err != nil {
		atomic.AddInt64(&m.ProjectionErrors, 1)
	}
}

// ErrorHandler 返回计数并写日志的视图错误处理器，供 projection.WithErrorHandler 使用
func (m *Metrics) ErrorHandler(logger logging.Logger) projection.ErrorHandler {
	if logger == nil {
		logger = logging.ComponentLogger("eventing.monitoring")
	}
	return func(ctx context.Context, viewID string, err error) {
		atomic.AddInt64(&m.ViewUpdateFailures, 1)
		logger.Error(ctx, "view update failed",
			logging.String("view_id", viewID),
			logging.Error(err))
	}
}

// MetricsSnapshot 指标快照（用于读取）
type MetricsSnapshot struct {
	CommandsExecuted    int64
	CommandDuration     time.Duration
	UserRejections      int64
	ConcurrencyFailures int64
	ValidationFailures  int64
	TechnicalFailures   int64
	ByCommand           map[string]int64

	EventsDispatched   int64
	ProjectionUpdates  int64
	ProjectionErrors   int64
	ProjectionTime     time.Duration
	ViewUpdateFailures int64

	Uptime time.Duration
}

// GetSnapshot 获取当前指标快照
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mutex.RLock()
	byCommand := make(map[string]int64, len(m.byCommand))
	for k, v := range m.byCommand {
		byCommand[k] = v
	}
	startTime := m.startTime
	m.mutex.RUnlock()

	return MetricsSnapshot{
		CommandsExecuted:    atomic.LoadInt64(&m.CommandsExecuted),
		CommandDuration:     time.Duration(atomic.LoadInt64(&m.CommandDuration)),
		UserRejections:      atomic.LoadInt64(&m.UserRejections),
		ConcurrencyFailures: atomic.LoadInt64(&m.ConcurrencyFailures),
		ValidationFailures:  atomic.LoadInt64(&m.ValidationFailures),
		TechnicalFailures:   atomic.LoadInt64(&m.TechnicalFailures),
		ByCommand:           byCommand,

		EventsDispatched:   atomic.LoadInt64(&m.EventsDispatched),
		ProjectionUpdates:  atomic.LoadInt64(&m.ProjectionUpdates),
		ProjectionErrors:   atomic.LoadInt64(&m.ProjectionErrors),
		ProjectionTime:     time.Duration(atomic.LoadInt64(&m.ProjectionTime)),
		ViewUpdateFailures: atomic.LoadInt64(&m.ViewUpdateFailures),

		Uptime: time.Since(startTime),
	}
}

// Reset 重置所有指标
func (m *Metrics) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	atomic.StoreInt64(&m.CommandsExecuted, 0)
	atomic.StoreInt64(&m.CommandDuration, 0)
	atomic.StoreInt64(&m.UserRejections, 0)
	atomic.StoreInt64(&m.ConcurrencyFailures, 0)
	atomic.StoreInt64(&m.ValidationFailures, 0)
	atomic.StoreInt64(&m.TechnicalFailures, 0)
	atomic.StoreInt64(&m.EventsDispatched, 0)
	atomic.StoreInt64(&m.ProjectionUpdates, 0)
	atomic.StoreInt64(&m.ProjectionErrors, 0)
	atomic.StoreInt64(&m.ProjectionTime, 0)
	atomic.StoreInt64(&m.ViewUpdateFailures, 0)
	m.byCommand = make(map[string]int64)
	m.startTime = time.Now()
}

// ToMap 转为便于日志输出的 map
func (s MetricsSnapshot) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"commands_executed":    s.CommandsExecuted,
		"command_duration_ms":  s.CommandDuration.Milliseconds(),
		"user_rejections":      s.UserRejections,
		"concurrency_failures": s.ConcurrencyFailures,
		"validation_failures":  s.ValidationFailures,
		"technical_failures":   s.TechnicalFailures,
		"by_command":           s.ByCommand,
		"events_dispatched":    s.EventsDispatched,
		"projection_updates":   s.ProjectionUpdates,
		"projection_errors":    s.ProjectionErrors,
		"projection_time_ms":   s.ProjectionTime.Milliseconds(),
		"view_update_failures": s.ViewUpdateFailures,
		"uptime_seconds":       s.Uptime.Seconds(),
	}
}

// instrumentedQuery 记录分发耗时与结果
type instrumentedQuery[E eventing.DomainEvent] struct {
	inner   projection.IQuery[E]
	metrics *Metrics
}

// InstrumentQuery 包装消费者，记录每次分发
func InstrumentQuery[E eventing.DomainEvent](q projection.IQuery[E], m *Metrics) projection.IQuery[E] {
	return &instrumentedQuery[E]{inner: q, metrics: m}
}

func (q *instrumentedQuery[E]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	start := time.Now()
	err := q.inner.Dispatch(ctx, aggregateID, events)
	q.metrics.RecordProjection(len(events), time.Since(start), err)
	return err
}
