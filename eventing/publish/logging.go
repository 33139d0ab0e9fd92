package publish

import (
	"context"
	"encoding/json"

	"gocqrs/eventing"
	"gocqrs/logging"
)

// LoggingQuery 逐条记录已提交的事件，用于调试
type LoggingQuery[E eventing.DomainEvent] struct {
	logger logging.Logger
}

// NewLoggingQuery logger 为 nil 时使用组件日志
func NewLoggingQuery[E eventing.DomainEvent](logger logging.Logger) *LoggingQuery[E] {
	if logger == nil {
		logger = logging.ComponentLogger("eventing.publish")
	}
	return &LoggingQuery[E]{logger: logger}
}

func (q *LoggingQuery[E]) Dispatch(ctx context.Context, aggregateID string, events []eventing.EventEnvelope[E]) error {
	for i := range events {
		env := &events[i]
		payload, err := json.Marshal(env.Payload)
		if err != nil {
			return err
		}
		q.logger.Info(ctx, "event",
			logging.String("aggregate_type", env.AggregateType),
			logging.String("aggregate_id", aggregateID),
			logging.Uint64("sequence", env.Sequence),
			logging.String("event_type", env.EventType()),
			logging.String("payload", string(payload)))
	}
	return nil
}
