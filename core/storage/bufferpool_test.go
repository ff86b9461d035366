package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// newScenarioPool builds a pool_size=3, page_size=4 pool, matching the
// dimensions spec.md §8's end-to-end scenarios (S1-S6) are stated against.
func newScenarioPool(t *testing.T) *BufferPool {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.db")
	dm, err := NewDiskManager(path, 4, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewBufferPool(3, 4, dm, nil, zap.NewNop(), nil)
}

// TestS1BasicFetchUnpin is spec.md §8 scenario S1.
func TestS1BasicFetchUnpin(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)

	_, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	_, _, ok = pool.NewPage(ctx)
	require.True(t, ok)
	_, _, ok = pool.NewPage(ctx)
	require.True(t, ok)

	_, _, ok = pool.NewPage(ctx)
	assert.False(t, ok, "pool should be exhausted with all three frames pinned")

	require.True(t, pool.UnpinPage(ctx, p0, false))

	frame, p3, ok := pool.NewPage(ctx)
	require.True(t, ok)
	assert.NotEqual(t, p0, p3)
	assert.Equal(t, 1, frame.PinCount())
}

// TestS2DirtyWriteBack is spec.md §8 scenario S2.
func TestS2DirtyWriteBack(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)

	frame0, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	copy(frame0.Data(), []byte("AAAA"))
	require.True(t, pool.UnpinPage(ctx, p0, true))

	_, p1, ok := pool.NewPage(ctx)
	require.True(t, ok)
	_, p2, ok := pool.NewPage(ctx)
	require.True(t, ok)
	require.True(t, pool.UnpinPage(ctx, p1, false))
	require.True(t, pool.UnpinPage(ctx, p2, false))

	// The second-chance sweep clears all three ref bits in one full
	// rotation starting at frame 0, then comes back to frame 0 first, so
	// p0 is evicted; see clock_test.go's TestSecondChanceOrder for the
	// general trace this specializes.
	frame3, _, ok := pool.NewPage(ctx)
	require.True(t, ok)
	_ = frame3

	got := make([]byte, 4)
	require.NoError(t, pool.disk.ReadPage(p0, got))
	assert.Equal(t, []byte("AAAA"), got)
}

// TestS3FetchCoalescing is spec.md §8 scenario S3.
func TestS3FetchCoalescing(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)

	_, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	require.True(t, pool.UnpinPage(ctx, p0, false))

	f1, ok := pool.FetchPage(ctx, p0)
	require.True(t, ok)
	f2, ok := pool.FetchPage(ctx, p0)
	require.True(t, ok)
	assert.Same(t, f1, f2)
	assert.Equal(t, 2, f1.PinCount())

	require.True(t, pool.UnpinPage(ctx, p0, false))
	assert.Equal(t, 1, f1.PinCount())
	require.True(t, pool.UnpinPage(ctx, p0, false))
	assert.Equal(t, 0, f1.PinCount())
}

// TestS4DeleteThenNewReuses is spec.md §8 scenario S4.
func TestS4DeleteThenNewReuses(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)

	_, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	require.True(t, pool.UnpinPage(ctx, p0, false))
	require.True(t, pool.DeletePage(p0))

	_, p1, ok := pool.NewPage(ctx)
	require.True(t, ok)
	// The free list is FIFO: the deleted page's frame goes to its back,
	// so p1 lands in the next free frame, not necessarily p0's.
	assert.NotEqual(t, p0, p1, "AllocatePage always returns a fresh id, never the deleted one")
}

func TestFetchNonexistentReturnsFalseWhenExhausted(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)
	for i := 0; i < 3; i++ {
		_, _, ok := pool.NewPage(ctx)
		require.True(t, ok)
	}
	_, ok := pool.FetchPage(ctx, PageID(999))
	assert.False(t, ok)
}

func TestUnpinUnknownPageFails(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)
	assert.False(t, pool.UnpinPage(ctx, PageID(42), false))
}

func TestUnpinUnderflowFails(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)
	_, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	require.True(t, pool.UnpinPage(ctx, p0, false))
	assert.False(t, pool.UnpinPage(ctx, p0, false))
}

func TestFlushUnknownPageFails(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)
	assert.False(t, pool.FlushPage(ctx, PageID(7)))
}

func TestDeletePinnedPageFails(t *testing.T) {
	ctx := context.Background()
	pool := newScenarioPool(t)
	_, p0, ok := pool.NewPage(ctx)
	require.True(t, ok)
	assert.False(t, pool.DeletePage(p0))
}

// TestInvariantsUnderConcurrentLoad checks spec.md §8 properties 1-3
// hold after a burst of concurrent fetch/unpin traffic completes.
func TestInvariantsUnderConcurrentLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pages.db")
	dm, err := NewDiskManager(path, 64, zap.NewNop())
	require.NoError(t, err)
	defer dm.Close()
	pool := NewBufferPool(8, 64, dm, nil, zap.NewNop(), nil)

	var ids []PageID
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, pid, ok := pool.NewPage(gctx)
			if !ok {
				return nil // pool exhaustion under load is expected, not an error
			}
			mu.Lock()
			ids = append(ids, pid)
			mu.Unlock()
			pool.UnpinPage(gctx, pid, false)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	pool.mu.Lock()
	defer pool.mu.Unlock()
	for pid, idx := range pool.pageTable {
		assert.Equal(t, pid, pool.frames[idx].PageID())
	}
	liveCount := 0
	for _, f := range pool.frames {
		if f.PageID() != InvalidPageID {
			liveCount++
		}
		assert.GreaterOrEqual(t, f.PinCount(), 0)
	}
	assert.Equal(t, len(pool.pageTable), liveCount)
	assert.Equal(t, pool.PoolSize()-len(pool.freeList), liveCount)
	assert.Equal(t, pool.replacer.Size(), liveCount-countPinned(pool))
}

func countPinned(pool *BufferPool) int {
	n := 0
	for _, f := range pool.frames {
		if f.PageID() != InvalidPageID && f.PinCount() > 0 {
			n++
		}
	}
	return n
}
