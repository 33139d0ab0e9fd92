package eventing

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer 载荷编解码器
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer 默认编解码器；升级器依赖 JSON 载荷
type JSONSerializer struct{}

func (JSONSerializer) Name() string                       { return "json" }
func (JSONSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackSerializer 紧凑二进制编码，用于快照载荷与对外分发
//
// 使用 json 标签作为字段名，使两种编码的字段保持一致。
type MsgpackSerializer struct{}

func (MsgpackSerializer) Name() string { return "msgpack" }

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// SerializerByName 根据配置名称选择编解码器，未知名称返回 JSON
func SerializerByName(name string) Serializer {
	if name == "msgpack" {
		return MsgpackSerializer{}
	}
	return JSONSerializer{}
}
