package projection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	*MemoryViewRepository[*counterView]
	loads int
}

func (r *countingRepo) LoadWithContext(ctx context.Context, viewID string) (*counterView, ViewContext, bool, error) {
	r.loads++
	return r.MemoryViewRepository.LoadWithContext(ctx, viewID)
}

func TestCachedViewRepository_ServesRepeatedReads(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{MemoryViewRepository: NewMemoryViewRepository(newCounterView)}
	repo := NewCachedViewRepository[*counterView](inner, newCounterView, CacheConfig{MaxSize: 10})
	q := NewGenericQuery[counterEvent, *counterView](repo, newCounterView)

	require.NoError(t, q.Dispatch(ctx, "c-1", envelopes("c-1", 1, 2, 3)))
	loadsAfterWrite := inner.loads

	for i := 0; i < 3; i++ {
		view, found, err := q.Load(ctx, "c-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 5, view.Total)
	}
	assert.Equal(t, loadsAfterWrite, inner.loads, "writes refresh the cache so reads never reach the backing store")
	assert.Equal(t, int64(3), repo.Stats().Hits)
}

func TestCachedViewRepository_ReturnsIndependentCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewCachedViewRepository[*counterView](NewMemoryViewRepository(newCounterView), newCounterView, CacheConfig{})
	require.NoError(t, repo.UpdateView(ctx, &counterView{Total: 7}, ViewContext{ViewID: "c-1"}, 1))

	first, _, err := repo.Load(ctx, "c-1")
	require.NoError(t, err)
	first.Total = 1000

	second, vctx, found, err := repo.LoadWithContext(ctx, "c-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 7, second.Total)
	assert.Equal(t, uint64(1), vctx.Version)
}

func TestCachedViewRepository_StaleEntryConflictsAndRecovers(t *testing.T) {
	ctx := context.Background()
	shared := NewMemoryViewRepository(newCounterView)
	repo := NewCachedViewRepository[*counterView](shared, newCounterView, CacheConfig{})
	q := NewGenericQuery[counterEvent, *counterView](repo, newCounterView)

	require.NoError(t, q.Dispatch(ctx, "c-1", envelopes("c-1", 1, 1)))

	// 另一个进程直接写底层存储，缓存中的版本变旧
	other := NewGenericQuery[counterEvent, *counterView](shared, newCounterView)
	require.NoError(t, other.Dispatch(ctx, "c-1", envelopes("c-1", 2, 10)))

	require.NoError(t, q.Dispatch(ctx, "c-1", envelopes("c-1", 3, 100)))

	view, vctx, found, err := shared.LoadWithContext(ctx, "c-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 111, view.Total)
	assert.Equal(t, uint64(3), vctx.Version)
}

func TestCachedViewRepository_MissingViewNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingRepo{MemoryViewRepository: NewMemoryViewRepository(newCounterView)}
	repo := NewCachedViewRepository[*counterView](inner, newCounterView, CacheConfig{})

	_, found, err := repo.Load(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)
	_, _, _ = repo.Load(ctx, "absent")
	assert.Equal(t, 2, inner.loads)
}
