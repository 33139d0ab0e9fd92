// Package aggtest 提供聚合的 Given/When/Then 测试工具
//
// 只测试聚合本身：Given 把事件折叠进新建的聚合，When 调用 Handle，
// Then 断言产生的事件或业务错误。整个过程不经过事件存储与编排器，结果确定且无副作用。
//
//	aggtest.NewTestFramework[Command, Event, Services, *Account](NewAccount, services).
//		Given(Deposited{Amount: 200, Balance: 200}).
//		When(ctx, Deposit{Amount: 200}).
//		ThenExpectEvents(t, Deposited{Amount: 200, Balance: 400})
package aggtest

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"gocqrs/domain"
	"gocqrs/errors"
	"gocqrs/eventing"
)

// TestFramework 绑定聚合工厂与服务
type TestFramework[C any, E eventing.DomainEvent, S any, A domain.IAggregate[C, E, S]] struct {
	factory  func() A
	services S
}

// NewTestFramework 创建测试框架
func NewTestFramework[C any, E eventing.DomainEvent, S any, A domain.IAggregate[C, E, S]](factory func() A, services S) *TestFramework[C, E, S, A] {
	return &TestFramework[C, E, S, A]{factory: factory, services: services}
}

// Given 以已发生的事件作为前提
func (f *TestFramework[C, E, S, A]) Given(events ...E) *Executor[C, E, S, A] {
	return &Executor[C, E, S, A]{
		framework: f,
		events:    append([]E(nil), events...),
	}
}

// GivenNoPreviousEvents 从全新聚合开始
func (f *TestFramework[C, E, S, A]) GivenNoPreviousEvents() *Executor[C, E, S, A] {
	return f.Given()
}

// Executor 持有前提事件
type Executor[C any, E eventing.DomainEvent, S any, A domain.IAggregate[C, E, S]] struct {
	framework *TestFramework[C, E, S, A]
	events    []E
}

// And 追加前提事件
func (e *Executor[C, E, S, A]) And(events ...E) *Executor[C, E, S, A] {
	next := make([]E, 0, len(e.events)+len(events))
	next = append(next, e.events...)
	next = append(next, events...)
	return &Executor[C, E, S, A]{framework: e.framework, events: next}
}

// When 重放前提事件后处理命令
func (e *Executor[C, E, S, A]) When(ctx context.Context, command C) *Validator[E, A] {
	aggregate := e.framework.factory()
	for _, evt := range e.events {
		aggregate.Apply(evt)
	}
	events, err := aggregate.Handle(ctx, command, e.framework.services)
	return &Validator[E, A]{aggregate: aggregate, events: events, err: err}
}

// Validator 断言 Handle 的结果
type Validator[E eventing.DomainEvent, A any] struct {
	aggregate A
	events    []E
	err       error
}

// ThenExpectEvents 断言命令成功且产生的事件与 expected 结构相等
func (v *Validator[E, A]) ThenExpectEvents(t testing.TB, expected ...E) bool {
	t.Helper()
	if !assert.NoError(t, v.err, "expected success, received aggregate error") {
		return false
	}
	if len(expected) == 0 && len(v.events) == 0 {
		return true
	}
	return assert.Equal(t, expected, v.events)
}

// ThenExpectNoEvents 断言命令成功且没有产生事件
func (v *Validator[E, A]) ThenExpectNoEvents(t testing.TB) bool {
	t.Helper()
	return v.ThenExpectEvents(t)
}

// ThenExpectError 断言命令被拒绝且错误消息等于 message
func (v *Validator[E, A]) ThenExpectError(t testing.TB, message string) bool {
	t.Helper()
	if v.err == nil {
		return assert.Failf(t, "expected error", "received events: %+v", v.events)
	}
	got := v.err.Error()
	if payload := errors.UserPayload(errors.WrapUserError(v.err)); payload != nil {
		got = payload.Message
	}
	return assert.Equal(t, message, got)
}

// ThenExpectErrorIs 断言命令被拒绝且错误链中包含 target
func (v *Validator[E, A]) ThenExpectErrorIs(t testing.TB, target error) bool {
	t.Helper()
	if v.err == nil {
		return assert.Failf(t, "expected error", "received events: %+v", v.events)
	}
	return assert.True(t, stderrors.Is(v.err, target), "expected %v in error chain, got %v", target, v.err)
}

// Inspect 返回原始结果
func (v *Validator[E, A]) Inspect() ([]E, error) {
	return v.events, v.err
}

// Aggregate 返回处理命令时的聚合（已折叠前提事件）
func (v *Validator[E, A]) Aggregate() A {
	return v.aggregate
}
