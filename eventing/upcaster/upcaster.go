// Package upcaster 提供事件升级链，在反序列化之前把旧版本载荷迁移为当前形态
package upcaster

import (
	"context"
	"encoding/json"
	"fmt"

	"gocqrs/eventing"
	"gocqrs/logging"
)

// EventUpcaster 事件升级器接口
type EventUpcaster interface {
	// CanUpcast 判断该事件类型/版本是否需要由本升级器处理
	CanUpcast(eventType, eventVersion string) bool

	// Upcast 改写序列化事件的载荷与版本
	Upcast(event eventing.SerializedEvent) (eventing.SerializedEvent, error)
}

// PayloadFunc 对 JSON 对象载荷进行改写
type PayloadFunc func(payload map[string]any) (map[string]any, error)

// SemanticVersionUpcaster 匹配同一事件类型且版本低于目标版本的事件
type SemanticVersionUpcaster struct {
	eventType string
	target    SemanticVersion
	fn        PayloadFunc
}

// NewSemanticVersionUpcaster 创建语义化版本升级器；目标版本非法时返回错误
func NewSemanticVersionUpcaster(eventType, targetVersion string, fn PayloadFunc) (*SemanticVersionUpcaster, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event type cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("upcast function cannot be nil for type %s", eventType)
	}
	target, err := ParseSemanticVersion(targetVersion)
	if err != nil {
		return nil, err
	}
	return &SemanticVersionUpcaster{eventType: eventType, target: target, fn: fn}, nil
}

// MustSemanticVersionUpcaster 创建升级器（失败 panic）
func MustSemanticVersionUpcaster(eventType, targetVersion string, fn PayloadFunc) *SemanticVersionUpcaster {
	u, err := NewSemanticVersionUpcaster(eventType, targetVersion, fn)
	if err != nil {
		panic(err)
	}
	return u
}

// CanUpcast 版本无法解析的事件不做处理
func (u *SemanticVersionUpcaster) CanUpcast(eventType, eventVersion string) bool {
	if eventType != u.eventType {
		return false
	}
	current, err := ParseSemanticVersion(eventVersion)
	if err != nil {
		return false
	}
	return u.target.Supersedes(current)
}

// Upcast 改写载荷并把版本设置为目标版本
func (u *SemanticVersionUpcaster) Upcast(event eventing.SerializedEvent) (eventing.SerializedEvent, error) {
	payload, err := event.PayloadMap()
	if err != nil {
		return event, fmt.Errorf("payload of %s is not a JSON object: %w", event.EventType, err)
	}
	upgraded, err := u.fn(payload)
	if err != nil {
		return event, err
	}
	data, err := json.Marshal(upgraded)
	if err != nil {
		return event, err
	}
	event.Payload = data
	event.EventVersion = u.target.String()
	return event, nil
}

// DefaultMaxPasses 升级链的不动点保护
const DefaultMaxPasses = 32

// Chain 有序升级链
//
// 每一轮从头查找第一个匹配的升级器并应用，然后重新评估，直到没有升级器匹配。
// 超过 MaxPasses 轮仍有匹配时视为配置错误。
type Chain struct {
	upcasters []EventUpcaster
	maxPasses int
	logger    logging.Logger
}

// NewChain 创建升级链
func NewChain(upcasters ...EventUpcaster) *Chain {
	return &Chain{
		upcasters: append([]EventUpcaster(nil), upcasters...),
		maxPasses: DefaultMaxPasses,
		logger:    logging.ComponentLogger("eventing.upcaster"),
	}
}

// WithMaxPasses 返回使用新保护阈值的副本
func (c *Chain) WithMaxPasses(n int) *Chain {
	cp := *c
	if n > 0 {
		cp.maxPasses = n
	}
	return &cp
}

// Len 已注册升级器数量
func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.upcasters)
}

// Upcast 对单个事件执行升级；没有匹配时原样返回
func (c *Chain) Upcast(ctx context.Context, event eventing.SerializedEvent) (eventing.SerializedEvent, error) {
	if c.Len() == 0 {
		return event, nil
	}
	original := event.EventVersion
	for pass := 0; ; pass++ {
		u := c.match(event)
		if u == nil {
			break
		}
		if pass >= c.maxPasses {
			return event, eventing.NewStoreError(eventing.ErrCodeUpcastFailed,
				fmt.Sprintf("upcast of %s did not converge after %d passes", event.EventType, c.maxPasses), nil)
		}
		upgraded, err := u.Upcast(event)
		if err != nil {
			return event, &eventing.StoreError{
				Code:      eventing.ErrCodeUpcastFailed,
				Message:   fmt.Sprintf("upcast %s from version %s failed", event.EventType, event.EventVersion),
				Cause:     err,
				EventType: event.EventType,
			}
		}
		event = upgraded
	}
	if event.EventVersion != original {
		c.logger.Debug(ctx, "event upcasted",
			logging.String("event_type", event.EventType),
			logging.String("from_version", original),
			logging.String("to_version", event.EventVersion),
			logging.Uint64("sequence", event.Sequence))
	}
	return event, nil
}

// UpcastAll 批量升级
func (c *Chain) UpcastAll(ctx context.Context, events []eventing.SerializedEvent) ([]eventing.SerializedEvent, error) {
	if c.Len() == 0 {
		return events, nil
	}
	result := make([]eventing.SerializedEvent, 0, len(events))
	for _, evt := range events {
		upgraded, err := c.Upcast(ctx, evt)
		if err != nil {
			return nil, err
		}
		result = append(result, upgraded)
	}
	return result, nil
}

func (c *Chain) match(event eventing.SerializedEvent) EventUpcaster {
	for _, u := range c.upcasters {
		if u.CanUpcast(event.EventType, event.EventVersion) {
			return u
		}
	}
	return nil
}
