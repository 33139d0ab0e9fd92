package upcaster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocqrs/eventing"
)

func TestParseSemanticVersion(t *testing.T) {
	cases := map[string]SemanticVersion{
		"2":       {Major: 2},
		"2.3":     {Major: 2, Minor: 3},
		"2.3.4":   {Major: 2, Minor: 3, Patch: 4},
		"2.3.4.5": {Major: 2, Minor: 3, Patch: 4},
	}
	for in, want := range cases {
		got, err := ParseSemanticVersion(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSemanticVersion("not_a_version")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseSemanticVersion("x.y") })
	assert.Equal(t, "2.3.0", MustParseSemanticVersion("2.3").String())
}

func TestSemanticVersionUpcaster_CanUpcast(t *testing.T) {
	u := MustSemanticVersionUpcaster("EventX", "2.3.4", func(p map[string]any) (map[string]any, error) { return p, nil })

	assert.True(t, u.CanUpcast("EventX", "1.12.35"))
	assert.True(t, u.CanUpcast("EventX", "2.3.3"))
	assert.False(t, u.CanUpcast("AnotherEvent", "1.12.35"))
	assert.False(t, u.CanUpcast("EventX", "2.3.4"))
	assert.False(t, u.CanUpcast("EventX", "2.3.5"))
	assert.False(t, u.CanUpcast("EventX", "2.4.0"))
	assert.False(t, u.CanUpcast("EventX", "3.0.0"))
	assert.False(t, u.CanUpcast("EventX", "garbage"))
}

func TestSemanticVersionUpcaster_InvalidConstruction(t *testing.T) {
	_, err := NewSemanticVersionUpcaster("EventX", "not_a_version", func(p map[string]any) (map[string]any, error) { return p, nil })
	assert.Error(t, err)
	_, err = NewSemanticVersionUpcaster("", "1.0", func(p map[string]any) (map[string]any, error) { return p, nil })
	assert.Error(t, err)
	_, err = NewSemanticVersionUpcaster("EventX", "1.0", nil)
	assert.Error(t, err)
}

func TestSemanticVersionUpcaster_Upcast(t *testing.T) {
	u := MustSemanticVersionUpcaster("EventX", "2.3.4", func(p map[string]any) (map[string]any, error) {
		p["country"] = "USA"
		return p, nil
	})
	evt := eventing.SerializedEvent{
		EventType:    "EventX",
		EventVersion: "1.0",
		Sequence:     3,
		Payload:      []byte(`{"zip code":98103,"state":"Washington"}`),
	}
	out, err := u.Upcast(evt)
	require.NoError(t, err)
	assert.Equal(t, "2.3.4", out.EventVersion)
	assert.Equal(t, uint64(3), out.Sequence)
	assert.JSONEq(t, `{"zip code":98103,"state":"Washington","country":"USA"}`, string(out.Payload))
}

func TestChain_ChainedUpgrades(t *testing.T) {
	toV2 := MustSemanticVersionUpcaster("Deposited", "2.0", func(p map[string]any) (map[string]any, error) {
		p["currency"] = "USD"
		return p, nil
	})
	toV3 := MustSemanticVersionUpcaster("Deposited", "3.0", func(p map[string]any) (map[string]any, error) {
		p["amount_cents"] = p["amount"].(float64) * 100
		return p, nil
	})
	chain := NewChain(toV3, toV2)

	evt := eventing.SerializedEvent{EventType: "Deposited", EventVersion: "1.0", Payload: []byte(`{"amount":2}`)}
	out, err := chain.Upcast(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", out.EventVersion)
	assert.JSONEq(t, `{"amount":2,"amount_cents":200}`, string(out.Payload))

	// 已是最新版本：原样返回
	current := eventing.SerializedEvent{EventType: "Deposited", EventVersion: "3.0", Payload: []byte(`{"amount":1}`)}
	same, err := chain.Upcast(context.Background(), current)
	require.NoError(t, err)
	assert.Equal(t, current, same)
}

type loopingUpcaster struct{}

func (loopingUpcaster) CanUpcast(string, string) bool { return true }
func (loopingUpcaster) Upcast(e eventing.SerializedEvent) (eventing.SerializedEvent, error) {
	return e, nil
}

func TestChain_FixedPointGuard(t *testing.T) {
	chain := NewChain(loopingUpcaster{}).WithMaxPasses(4)
	_, err := chain.Upcast(context.Background(), eventing.SerializedEvent{EventType: "Any", EventVersion: "1"})
	var storeErr *eventing.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, eventing.ErrCodeUpcastFailed, storeErr.Code)
}

func TestChain_TransformFailure(t *testing.T) {
	boom := errors.New("boom")
	chain := NewChain(MustSemanticVersionUpcaster("E", "2", func(map[string]any) (map[string]any, error) { return nil, boom }))

	_, err := chain.UpcastAll(context.Background(), []eventing.SerializedEvent{{EventType: "E", EventVersion: "1", Payload: []byte(`{}`)}})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, err = chain.Upcast(context.Background(), eventing.SerializedEvent{EventType: "E", EventVersion: "1", Payload: []byte(`[]`)})
	assert.Error(t, err, "non-object payload cannot be upcast")
}

func TestChain_EmptyIsNoop(t *testing.T) {
	var chain *Chain
	events := []eventing.SerializedEvent{{EventType: "E", EventVersion: "1"}}
	out, err := chain.UpcastAll(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, events, out)
}
