package eventing

import "encoding/json"

// SerializedEvent 存储层看到的事件形态：载荷已序列化，类型与版本以字符串保存
type SerializedEvent struct {
	AggregateType string   `json:"aggregate_type"`
	AggregateID   string   `json:"aggregate_id"`
	Sequence      uint64   `json:"sequence"`
	EventType     string   `json:"event_type"`
	EventVersion  string   `json:"event_version"`
	Payload       []byte   `json:"payload"`
	Metadata      Metadata `json:"metadata"`
}

// PayloadMap 将 JSON 载荷解析为通用 map，供升级器改写
func (e SerializedEvent) PayloadMap() (map[string]any, error) {
	out := make(map[string]any)
	if len(e.Payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(e.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Size 估算单条记录占用的字节数（载荷 + 元数据 + 键）
func (e SerializedEvent) Size() int {
	size := len(e.Payload) + len(e.AggregateType) + len(e.AggregateID) + len(e.EventType) + len(e.EventVersion) + 8
	for _, k := range e.Metadata.keys {
		size += len(k) + len(e.Metadata.values[k])
	}
	return size
}

// SerializedSnapshot 快照记录
//
// CurrentSnapshot 为代际计数器，每次写入加一，写入时以旧值作为条件。
// 快照只是缓存，可随时丢弃并通过完整重放重建。
type SerializedSnapshot struct {
	AggregateType   string `json:"aggregate_type"`
	AggregateID     string `json:"aggregate_id"`
	LastSequence    uint64 `json:"last_sequence"`
	CurrentSnapshot uint64 `json:"current_snapshot"`
	Payload         []byte `json:"payload"`
}
