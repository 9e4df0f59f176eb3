package alloc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/arenacache/arena"
)

func TestAllocator_FirstFitAndAlignment(t *testing.T) {
	t.Parallel()

	a := New(Options{})
	require.NoError(t, a.AddMemory(1, 1024, 0x1000))

	h1, err := a.Allocate(10, 0)
	require.NoError(t, err)
	h2, err := a.Allocate(64, 64)
	require.NoError(t, err)

	r1, err := a.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, Allocation{Memory: 1, Offset: 0, Size: 10, Mapped: 0x1000}, r1)

	r2, err := a.Get(h2)
	require.NoError(t, err)
	assert.Equal(t, uint64(64), r2.Offset, "aligned past the first allocation")
	assert.Equal(t, uintptr(0x1000+64), r2.Mapped)

	// The padding [10, 64) stays free and serves a small request.
	h3, err := a.Allocate(8, 8)
	require.NoError(t, err)
	r3, _ := a.Get(h3)
	assert.Equal(t, uint64(16), r3.Offset)
	assert.Equal(t, uint64(82), a.Used())
	assert.Equal(t, 3, a.Len())
}

func TestAllocator_FreeCoalesces(t *testing.T) {
	t.Parallel()

	a := New(Options{})
	require.NoError(t, a.AddMemory(7, 300, 0))

	var hs []Handle
	for range 3 {
		h, err := a.Allocate(100, 0)
		require.NoError(t, err)
		hs = append(hs, h)
	}
	assert.Equal(t, 0, a.FreeRanges(7))
	_, err := a.Allocate(1, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)

	// Free outer ranges first, then the middle joins all three.
	require.NoError(t, a.Free(hs[0]))
	require.NoError(t, a.Free(hs[2]))
	assert.Equal(t, 2, a.FreeRanges(7))
	require.NoError(t, a.Free(hs[1]))
	assert.Equal(t, 1, a.FreeRanges(7))
	assert.Equal(t, uint64(0), a.Used())

	h, err := a.Allocate(300, 0)
	require.NoError(t, err, "whole block must be reusable after coalescing")
	r, _ := a.Get(h)
	assert.Equal(t, uint64(0), r.Offset)
}

func TestAllocator_MultipleBlocks(t *testing.T) {
	t.Parallel()

	a := New(Options{})
	require.NoError(t, a.AddMemory(1, 64, 0))
	require.NoError(t, a.AddMemory(2, 256, 0))
	require.Error(t, a.AddMemory(2, 16, 0))
	require.ErrorIs(t, a.AddMemory(3, 0, 0), ErrInvalidSize)

	h, err := a.Allocate(128, 0)
	require.NoError(t, err)
	r, _ := a.Get(h)
	assert.Equal(t, MemoryID(2), r.Memory)
	assert.Equal(t, -1, a.FreeRanges(9))
}

func TestAllocator_InvalidRequests(t *testing.T) {
	t.Parallel()

	a := New(Options{})
	require.NoError(t, a.AddMemory(1, 64, 0))
	_, err := a.Allocate(0, 0)
	require.ErrorIs(t, err, ErrInvalidSize)
	_, err = a.Allocate(8, 3)
	require.ErrorIs(t, err, ErrInvalidSize)

	h, err := a.Allocate(8, 0)
	require.NoError(t, err)
	require.NoError(t, a.Free(h))
	require.ErrorIs(t, a.Free(h), arena.ErrInvalidHandle, "double free of a vacant slot")
}

func TestAllocator_SharedBudget(t *testing.T) {
	t.Parallel()

	budget := semaphore.NewWeighted(100)
	a := New(Options{Budget: budget})
	b := New(Options{Budget: budget})
	require.NoError(t, a.AddMemory(1, 1024, 0))
	require.NoError(t, b.AddMemory(1, 1024, 0))

	ha, err := a.Allocate(60, 0)
	require.NoError(t, err)
	_, err = b.Allocate(60, 0)
	require.ErrorIs(t, err, ErrBudgetExceeded)
	hb, err := b.Allocate(40, 0)
	require.NoError(t, err)

	// A waiting request proceeds once budget is returned.
	var g errgroup.Group
	g.Go(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := b.AllocateContext(ctx, 50, 0)
		return err
	})
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Free(ha))
	require.NoError(t, g.Wait())
	require.NoError(t, b.Free(hb))
}

func TestAllocator_BudgetReturnedOnOutOfMemory(t *testing.T) {
	t.Parallel()

	budget := semaphore.NewWeighted(64)
	a := New(Options{Budget: budget})
	require.NoError(t, a.AddMemory(1, 32, 0))

	_, err := a.Allocate(48, 0)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.True(t, budget.TryAcquire(64), "failed placement must release its budget")
}

func TestAllocator_AllocateContextCancelled(t *testing.T) {
	t.Parallel()

	a := New(Options{Budget: semaphore.NewWeighted(8)})
	require.NoError(t, a.AddMemory(1, 64, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.AllocateContext(ctx, 16, 0)
	require.True(t, errors.Is(err, context.Canceled), "err = %v", err)
}
