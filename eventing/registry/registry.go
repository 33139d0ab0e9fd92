// Package registry 提供事件类型注册表，用于把存储中的载荷还原为封闭事件集合中的具体变体
package registry

import (
	"fmt"
	"sort"
	"sync"

	"gocqrs/eventing"
)

type decodeFunc[E eventing.DomainEvent] func(s eventing.Serializer, data []byte) (E, error)

// Registry 事件注册表；E 为聚合的事件接口
type Registry[E eventing.DomainEvent] struct {
	decoders   map[string]decodeFunc[E]
	versions   map[string]string
	serializer eventing.Serializer
	mutex      sync.RWMutex
}

// NewRegistry 创建注册表；serializer 为 nil 时使用 JSON
func NewRegistry[E eventing.DomainEvent](serializer eventing.Serializer) *Registry[E] {
	if serializer == nil {
		serializer = eventing.JSONSerializer{}
	}
	return &Registry[E]{
		decoders:   make(map[string]decodeFunc[E]),
		versions:   make(map[string]string),
		serializer: serializer,
	}
}

// Register 注册事件变体 V，事件类型取自 V 零值的 EventType()
func Register[E eventing.DomainEvent, V eventing.DomainEvent](r *Registry[E]) error {
	var zero V
	if _, ok := any(zero).(E); !ok {
		return fmt.Errorf("event variant %T is not part of the registered event set", zero)
	}
	eventType := zero.EventType()
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty for %T", zero)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, exists := r.decoders[eventType]; exists {
		return fmt.Errorf("event type already registered: %s", eventType)
	}
	r.decoders[eventType] = func(s eventing.Serializer, data []byte) (E, error) {
		var v V
		if len(data) > 0 {
			if err := s.Unmarshal(data, &v); err != nil {
				var empty E
				return empty, err
			}
		}
		return any(v).(E), nil
	}
	r.versions[eventType] = zero.EventVersion()
	return nil
}

// MustRegister 注册事件变体（失败 panic）
func MustRegister[E eventing.DomainEvent, V eventing.DomainEvent](r *Registry[E]) {
	if err := Register[E, V](r); err != nil {
		panic(err)
	}
}

// Serializer 返回注册表使用的编解码器
func (r *Registry[E]) Serializer() eventing.Serializer { return r.serializer }

// Encode 序列化事件载荷
func (r *Registry[E]) Encode(event E) ([]byte, error) {
	data, err := r.serializer.Marshal(event)
	if err != nil {
		return nil, eventing.NewStoreError(eventing.ErrCodeSerializePayload,
			fmt.Sprintf("serialize %s failed", event.EventType()), err)
	}
	return data, nil
}

// Decode 按事件类型反序列化载荷
func (r *Registry[E]) Decode(eventType string, data []byte) (E, error) {
	r.mutex.RLock()
	decode, exists := r.decoders[eventType]
	r.mutex.RUnlock()

	if !exists {
		var empty E
		return empty, &eventing.StoreError{
			Code:      eventing.ErrCodeUnknownEventType,
			Message:   "unknown event type: " + eventType,
			EventType: eventType,
		}
	}
	evt, err := decode(r.serializer, data)
	if err != nil {
		return evt, &eventing.StoreError{
			Code:      eventing.ErrCodeDeserializePayload,
			Message:   "failed to deserialize event " + eventType,
			Cause:     err,
			EventType: eventType,
		}
	}
	return evt, nil
}

// HasEvent 检查事件类型是否已注册
func (r *Registry[E]) HasEvent(eventType string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, exists := r.decoders[eventType]
	return exists
}

// CurrentVersion 返回已注册变体的当前版本
func (r *Registry[E]) CurrentVersion(eventType string) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	v, ok := r.versions[eventType]
	return v, ok
}

// GetRegisteredTypes 获取所有已注册的事件类型（已排序）
func (r *Registry[E]) GetRegisteredTypes() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	types := make([]string, 0, len(r.decoders))
	for eventType := range r.decoders {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}
