package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregateContext_IsNew(t *testing.T) {
	ctx := &AggregateContext[int]{AggregateType: "Counter", AggregateID: "c1"}
	assert.True(t, ctx.IsNew())
	ctx.Sequence = 1
	assert.False(t, ctx.IsNew())
}
