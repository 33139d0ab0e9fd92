package eventing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleEvent struct {
	Amount  float64 `json:"amount"`
	Balance float64 `json:"balance"`
}

func (sampleEvent) EventType() string    { return "Sample" }
func (sampleEvent) EventVersion() string { return "1.0" }

func TestMetadata_PreservesInsertionOrder(t *testing.T) {
	md := NewMetadata("time", "t1", "actor", "alice", "ip", "10.0.0.1")
	md.Set("actor", "bob")

	assert.Equal(t, []string{"time", "actor", "ip"}, md.Keys())
	v, ok := md.Get("actor")
	require.True(t, ok)
	assert.Equal(t, "bob", v)

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Equal(t, `{"time":"t1","actor":"bob","ip":"10.0.0.1"}`, string(data))

	var decoded Metadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, md.Equal(decoded))
}

func TestMetadata_UnmarshalRejectsNonObject(t *testing.T) {
	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &md))
	require.NoError(t, json.Unmarshal([]byte(`null`), &md))
	assert.Zero(t, md.Len())
}

func TestMetadataFromMap_SortsKeys(t *testing.T) {
	md := MetadataFromMap(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, []string{"a", "b"}, md.Keys())

	clone := md.Clone()
	clone.Set("c", "3")
	assert.Equal(t, 2, md.Len())
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, clone.ToMap())
}

func TestEnvelope_DelegatesTypeAndVersion(t *testing.T) {
	env := EventEnvelope[sampleEvent]{AggregateType: "account", AggregateID: "a1", Sequence: 1, Payload: sampleEvent{Amount: 1}}
	assert.Equal(t, "Sample", env.EventType())
	assert.Equal(t, "1.0", env.EventVersion())
}

func TestSerializers_RoundTrip(t *testing.T) {
	for _, s := range []Serializer{JSONSerializer{}, MsgpackSerializer{}} {
		t.Run(s.Name(), func(t *testing.T) {
			data, err := s.Marshal(sampleEvent{Amount: 200, Balance: 400})
			require.NoError(t, err)

			var out sampleEvent
			require.NoError(t, s.Unmarshal(data, &out))
			assert.Equal(t, sampleEvent{Amount: 200, Balance: 400}, out)
		})
	}
	assert.Equal(t, "msgpack", SerializerByName("msgpack").Name())
	assert.Equal(t, "json", SerializerByName("").Name())
}

func TestSerializedEvent_PayloadMap(t *testing.T) {
	evt := SerializedEvent{Payload: []byte(`{"amount":200}`)}
	m, err := evt.PayloadMap()
	require.NoError(t, err)
	assert.Equal(t, float64(200), m["amount"])

	empty, err := SerializedEvent{}.PayloadMap()
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = SerializedEvent{Payload: []byte(`not json`)}.PayloadMap()
	assert.Error(t, err)
}
