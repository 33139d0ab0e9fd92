package monitoring

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gocqrs/domain/eventsourced"
	"gocqrs/errors"
)

const tracerName = "gocqrs/eventsourced"

// SpanTracer 把每次命令执行记录为一个 span
//
// 编排器在命令结束后才回调 Trace，span 的起止时间由 elapsed 反推。
type SpanTracer struct {
	tracer trace.Tracer
	now    func() time.Time
}

// NewSpanTracer 使用给定的 TracerProvider；传 nil 时使用全局 provider
func NewSpanTracer(tp trace.TracerProvider) *SpanTracer {
	var tracer trace.Tracer
	if tp != nil {
		tracer = tp.Tracer(tracerName)
	}
	return &SpanTracer{tracer: tracer, now: time.Now}
}

func (s *SpanTracer) Trace(ctx context.Context, commandName string, elapsed time.Duration, err error) {
	tracer := s.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	end := s.now()
	_, span := tracer.Start(ctx, "command "+commandName,
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("command.name", commandName)))

	if err != nil {
		code := errors.GetErrorCode(err)
		span.SetAttributes(attribute.String("error.code", string(code)))
		// 业务拒绝是正常结果，不标记 span 失败
		if code != errors.ErrCodeUserError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// Tracers 依次调用多个 Tracer
func Tracers(tracers ...eventsourced.ICommandTracer) eventsourced.ICommandTracer {
	return multiTracer(tracers)
}

type multiTracer []eventsourced.ICommandTracer

func (m multiTracer) Trace(ctx context.Context, commandName string, elapsed time.Duration, err error) {
	for _, t := range m {
		if t != nil {
			t.Trace(ctx, commandName, elapsed, err)
		}
	}
}
