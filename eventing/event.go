package eventing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// DomainEvent 领域事件接口
//
// 事件集合是封闭的：每个聚合定义一个事件接口，所有变体实现该接口。
// EventType 用于反序列化时定位变体，EventVersion 为语义化版本字符串，供升级链判断。
type DomainEvent interface {
	EventType() string
	EventVersion() string
}

// EventEnvelope 持久化/传输单元
//
// 对同一 (AggregateType, AggregateID)，Sequence 从 1 开始连续递增、无空洞、无重复。
type EventEnvelope[E DomainEvent] struct {
	AggregateType string   `json:"aggregate_type"`
	AggregateID   string   `json:"aggregate_id"`
	Sequence      uint64   `json:"sequence"`
	Payload       E        `json:"payload"`
	Metadata      Metadata `json:"metadata"`
}

// EventType 返回载荷的事件类型
func (e *EventEnvelope[E]) EventType() string { return e.Payload.EventType() }

// EventVersion 返回载荷的事件版本
func (e *EventEnvelope[E]) EventVersion() string { return e.Payload.EventVersion() }

// Metadata 有序的字符串映射，保留插入顺序
type Metadata struct {
	keys   []string
	values map[string]string
}

// NewMetadata 按 key, value 成对创建元数据；奇数个参数时忽略最后一个
func NewMetadata(pairs ...string) Metadata {
	var m Metadata
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// MetadataFromMap 从普通 map 创建元数据，按键排序以保证确定性
func MetadataFromMap(src map[string]string) Metadata {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var m Metadata
	for _, k := range keys {
		m.Set(k, src[k])
	}
	return m
}

// Set 设置键值；已存在的键保留原位置
func (m *Metadata) Set(key, value string) {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get 读取键值
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys 返回按插入顺序排列的键
func (m Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len 键数量
func (m Metadata) Len() int { return len(m.keys) }

// Clone 深拷贝
func (m Metadata) Clone() Metadata {
	var out Metadata
	for _, k := range m.keys {
		out.Set(k, m.values[k])
	}
	return out
}

// ToMap 转为普通 map
func (m Metadata) ToMap() map[string]string {
	out := make(map[string]string, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.values[k]
	}
	return out
}

// Equal 比较键顺序与取值
func (m Metadata) Equal(other Metadata) bool {
	if len(m.keys) != len(other.keys) {
		return false
	}
	for i, k := range m.keys {
		if other.keys[i] != k || other.values[k] != m.values[k] {
			return false
		}
	}
	return true
}

// MarshalJSON 按插入顺序输出 JSON 对象
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析 JSON 对象并保留键的出现顺序
func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = Metadata{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metadata must be a JSON object")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("metadata key must be a string")
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("metadata value for %q: %w", key, err)
		}
		m.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
