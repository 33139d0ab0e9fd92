package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocqrs/eventing"
)

func makeEvents(aggType, aggID string, from uint64, n int) []eventing.SerializedEvent {
	out := make([]eventing.SerializedEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, eventing.SerializedEvent{
			AggregateType: aggType,
			AggregateID:   aggID,
			Sequence:      from + uint64(i),
			EventType:     "Happened",
			EventVersion:  "1.0",
			Payload:       []byte(`{"n":1}`),
			Metadata:      eventing.NewMetadata("k", "v"),
		})
	}
	return out
}

func TestMemoryEventRepository_CommitAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	require.NoError(t, repo.Commit(ctx, "Account", "a1", 0, makeEvents("Account", "a1", 1, 3), nil))
	require.NoError(t, repo.Commit(ctx, "Account", "a1", 3, makeEvents("Account", "a1", 4, 2), nil))

	events, err := repo.LoadEvents(ctx, "Account", "a1")
	require.NoError(t, err)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Sequence)
	}

	tail, err := repo.LoadEventsAfter(ctx, "Account", "a1", 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, uint64(4), tail[0].Sequence)

	seq, err := repo.CurrentSequence(ctx, "Account", "a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), seq)

	other, err := repo.LoadEvents(ctx, "Account", "a2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryEventRepository_ConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()
	require.NoError(t, repo.Commit(ctx, "Account", "a1", 0, makeEvents("Account", "a1", 1, 1), nil))

	err := repo.Commit(ctx, "Account", "a1", 0, makeEvents("Account", "a1", 1, 1), nil)
	var conflict *eventing.ConcurrencyError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, uint64(0), conflict.ExpectedSequence)
	assert.Equal(t, uint64(1), conflict.ActualSequence)

	events, _ := repo.LoadEvents(ctx, "Account", "a1")
	assert.Len(t, events, 1)
}

func TestMemoryEventRepository_ConcurrentWritersExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	const writers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicted := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Commit(ctx, "Account", "a1", 0, makeEvents("Account", "a1", 1, 2), nil)
			mu.Lock()
			defer mu.Unlock()
			var conflict *eventing.ConcurrencyError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &conflict):
				conflicted++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicted)
	events, _ := repo.LoadEvents(ctx, "Account", "a1")
	assert.Len(t, events, 2)
}

func TestMemoryEventRepository_RejectsSequenceGap(t *testing.T) {
	repo := NewMemoryEventRepository()
	err := repo.Commit(context.Background(), "Account", "a1", 0, makeEvents("Account", "a1", 2, 1), nil)
	var storeErr *eventing.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, eventing.ErrCodeSequenceGap, storeErr.Code)
}

func TestMemoryEventRepository_SnapshotGeneration(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	snap := &eventing.SerializedSnapshot{AggregateType: "Account", AggregateID: "a1", LastSequence: 2, CurrentSnapshot: 1, Payload: []byte(`{"b":2}`)}
	require.NoError(t, repo.Commit(ctx, "Account", "a1", 0, makeEvents("Account", "a1", 1, 2), snap))

	loaded, err := repo.LoadSnapshot(ctx, "Account", "a1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(2), loaded.LastSequence)
	assert.Equal(t, uint64(1), loaded.CurrentSnapshot)

	// 代际不连续：事件照常提交，快照保持原样
	stale := &eventing.SerializedSnapshot{AggregateType: "Account", AggregateID: "a1", LastSequence: 3, CurrentSnapshot: 1, Payload: []byte(`{"b":3}`)}
	require.NoError(t, repo.Commit(ctx, "Account", "a1", 2, makeEvents("Account", "a1", 3, 1), stale))
	loaded, _ = repo.LoadSnapshot(ctx, "Account", "a1")
	assert.Equal(t, uint64(2), loaded.LastSequence)

	next := &eventing.SerializedSnapshot{AggregateType: "Account", AggregateID: "a1", LastSequence: 4, CurrentSnapshot: 2, Payload: []byte(`{"b":4}`)}
	require.NoError(t, repo.Commit(ctx, "Account", "a1", 3, makeEvents("Account", "a1", 4, 1), next))
	loaded, _ = repo.LoadSnapshot(ctx, "Account", "a1")
	assert.Equal(t, uint64(4), loaded.LastSequence)
	assert.Equal(t, uint64(2), loaded.CurrentSnapshot)

	none, err := repo.LoadSnapshot(ctx, "Account", "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMemoryEventRepository_StreamAggregateType(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()
	require.NoError(t, repo.Commit(ctx, "Account", "b", 0, makeEvents("Account", "b", 1, 1), nil))
	require.NoError(t, repo.Commit(ctx, "Account", "a", 0, makeEvents("Account", "a", 1, 2), nil))
	require.NoError(t, repo.Commit(ctx, "Order", "o", 0, makeEvents("Order", "o", 1, 1), nil))

	var seen []string
	err := repo.StreamAggregateType(ctx, "Account", func(id string, events []eventing.SerializedEvent) error {
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestLimits(t *testing.T) {
	l := DynamoDBLimits()
	assert.NoError(t, l.CheckCount(25, false))
	assert.Error(t, l.CheckCount(26, false))
	assert.NoError(t, l.CheckCount(24, true))

	err := l.CheckCount(25, true)
	var limitErr *eventing.BatchLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 24, limitErr.Max)

	big := makeEvents("Account", "a1", 1, 1)
	big[0].Payload = make([]byte, 401*1024)
	assert.Error(t, l.CheckSize(big, nil))

	assert.NoError(t, Unlimited().CheckCount(10000, true))
	assert.NoError(t, Unlimited().CheckSize(big, nil))
}

func TestMemoryEventRepository_ColonInIdentifiersKeepsStreamsApart(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryEventRepository()

	require.NoError(t, repo.Commit(ctx, "a:b", "c", 0, makeEvents("a:b", "c", 1, 2), nil))
	require.NoError(t, repo.Commit(ctx, "a", "b:c", 0, makeEvents("a", "b:c", 1, 1), nil))

	first, err := repo.LoadEvents(ctx, "a:b", "c")
	require.NoError(t, err)
	assert.Len(t, first, 2)
	second, err := repo.LoadEvents(ctx, "a", "b:c")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "b:c", second[0].AggregateID)

	var streamed []string
	require.NoError(t, repo.StreamAggregateType(ctx, "a", func(id string, events []eventing.SerializedEvent) error {
		streamed = append(streamed, id)
		return nil
	}))
	assert.Equal(t, []string{"b:c"}, streamed)
}
