package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNever(t *testing.T) {
	assert.False(t, Never{}.ShouldSnapshot(Decision{NewSequence: 1000}))
	assert.False(t, Enabled(Never{}))
	assert.False(t, Enabled(nil))
}

func TestEventCountStrategy(t *testing.T) {
	s := NewEventCountStrategy(3)
	assert.True(t, Enabled(s))
	assert.False(t, s.ShouldSnapshot(Decision{LastSnapshotSequence: 0, NewSequence: 2}))
	assert.True(t, s.ShouldSnapshot(Decision{LastSnapshotSequence: 0, NewSequence: 3}))
	// 一次提交跨过阈值同样触发
	assert.True(t, s.ShouldSnapshot(Decision{LastSnapshotSequence: 3, NewSequence: 7}))
	assert.False(t, s.ShouldSnapshot(Decision{LastSnapshotSequence: 6, NewSequence: 7}))

	assert.Equal(t, uint64(100), NewEventCountStrategy(0).Frequency)
}

func TestStateSizeStrategy(t *testing.T) {
	s := &StateSizeStrategy{MaxSizeBytes: 1024}
	assert.True(t, s.ShouldSnapshot(Decision{NewSequence: 1, StateSize: 2048}))
	assert.False(t, s.ShouldSnapshot(Decision{NewSequence: 1, StateSize: 10}))
	assert.False(t, s.ShouldSnapshot(Decision{LastSnapshotSequence: 1, NewSequence: 1, StateSize: 2048}))
}

func TestCompositeStrategy(t *testing.T) {
	count := NewEventCountStrategy(2)
	size := &StateSizeStrategy{MaxSizeBytes: 100}
	d := Decision{NewSequence: 2, StateSize: 10}

	assert.True(t, NewCompositeStrategy(CompositeModeAny, count, size).ShouldSnapshot(d))
	assert.False(t, NewCompositeStrategy(CompositeModeAll, count, size).ShouldSnapshot(d))
	assert.False(t, NewCompositeStrategy(CompositeModeAny).ShouldSnapshot(d))
	assert.Equal(t, "Composite(all:EventCountStrategy,StateSizeStrategy)", NewCompositeStrategy(CompositeModeAll, count, size).Name())
}
