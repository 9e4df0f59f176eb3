// Package alloc keeps the bookkeeping for GPU memory sub-allocation.
//
// Device memory is registered as blocks; Allocate carves aligned ranges out
// of them first-fit and returns a handle to an Allocation record. Records
// live in an arena.FreeList so that a handle's index stays equal to its
// record position for the whole lifetime of the device allocation.
//
// An optional byte budget (a semaphore.Weighted) can be shared between
// allocators to cap the memory handed out across all of them.
package alloc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/IvanBrykalov/arenacache/arena"
	"github.com/IvanBrykalov/arenacache/internal/util"
)

var (
	// ErrOutOfMemory is returned when no registered block has a free range
	// large enough for the request.
	ErrOutOfMemory = errors.New("alloc: out of device memory")

	// ErrBudgetExceeded is returned when the shared budget cannot cover the
	// request without waiting.
	ErrBudgetExceeded = errors.New("alloc: budget exceeded")

	// ErrInvalidSize is returned for zero sizes and non power of two
	// alignments.
	ErrInvalidSize = errors.New("alloc: invalid size or alignment")
)

// MemoryID identifies a device memory block.
type MemoryID uint64

// Allocation is one sub-allocated range of device memory.
type Allocation struct {
	Memory MemoryID
	Offset uint64
	Size   uint64
	// Mapped is the host address of Offset, or 0 if the block is not mapped.
	Mapped uintptr
}

// Handle refers to a live Allocation. Handles are not generation checked:
// free each one exactly once.
type Handle = arena.Handle[Allocation]

// Options configures an Allocator.
type Options struct {
	// Budget caps the bytes handed out. It may be shared by several
	// allocators. nil means unlimited.
	Budget *semaphore.Weighted
	Logger *slog.Logger
}

type span struct {
	offset, size uint64
}

type block struct {
	id     MemoryID
	size   uint64
	mapped uintptr
	free   []span // sorted by offset, never adjacent
}

// Allocator sub-allocates registered device memory blocks.
// It is safe for concurrent use.
type Allocator struct {
	mu      sync.Mutex
	blocks  []*block
	records *arena.FreeList[Allocation]
	used    uint64

	budget *semaphore.Weighted
	log    *slog.Logger
}

// New returns an allocator with no memory registered.
func New(opt Options) *Allocator {
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	return &Allocator{
		records: arena.NewFreeList[Allocation](0),
		budget:  opt.Budget,
		log:     opt.Logger.With("component", "alloc"),
	}
}

// AddMemory registers a device block of size bytes. mapped is its host
// address, or 0.
func (a *Allocator) AddMemory(id MemoryID, size uint64, mapped uintptr) error {
	if size == 0 {
		return fmt.Errorf("add memory %d: %w", id, ErrInvalidSize)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.blocks {
		if b.id == id {
			return fmt.Errorf("add memory %d: already registered", id)
		}
	}
	a.blocks = append(a.blocks, &block{
		id:     id,
		size:   size,
		mapped: mapped,
		free:   []span{{0, size}},
	})
	return nil
}

// Allocate reserves size bytes aligned to align (a power of two; 0 means 1).
// It fails fast with ErrBudgetExceeded when the budget is exhausted.
func (a *Allocator) Allocate(size, align uint64) (Handle, error) {
	if err := validate(size, align); err != nil {
		return Handle{}, err
	}
	if a.budget != nil && !a.budget.TryAcquire(int64(size)) {
		return Handle{}, fmt.Errorf("allocate %d bytes: %w", size, ErrBudgetExceeded)
	}
	return a.place(size, align)
}

// AllocateContext is Allocate but waits for budget until ctx is done.
func (a *Allocator) AllocateContext(ctx context.Context, size, align uint64) (Handle, error) {
	if err := validate(size, align); err != nil {
		return Handle{}, err
	}
	if a.budget != nil {
		if err := a.budget.Acquire(ctx, int64(size)); err != nil {
			return Handle{}, fmt.Errorf("allocate %d bytes: %w", size, err)
		}
	}
	return a.place(size, align)
}

func validate(size, align uint64) error {
	if size == 0 || size > 1<<62 || (align != 0 && !util.IsPowerOfTwo(align)) {
		return fmt.Errorf("size %d align %d: %w", size, align, ErrInvalidSize)
	}
	return nil
}

// place runs first-fit over every block. The budget for size is already
// held and is returned on failure.
func (a *Allocator) place(size, align uint64) (Handle, error) {
	align = max(align, 1)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.blocks {
		off, ok := b.take(size, align)
		if !ok {
			continue
		}
		rec := Allocation{Memory: b.id, Offset: off, Size: size}
		if b.mapped != 0 {
			rec.Mapped = b.mapped + uintptr(off)
		}
		a.used += size
		return a.records.Insert(rec), nil
	}
	if a.budget != nil {
		a.budget.Release(int64(size))
	}
	a.log.Warn("out of memory", "size", size, "align", align, "used", a.used)
	return Handle{}, fmt.Errorf("allocate %d bytes: %w", size, ErrOutOfMemory)
}

// Get returns the allocation record for h.
func (a *Allocator) Get(h Handle) (Allocation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records.Get(h)
}

// Free returns h's range to its block, merging it with free neighbours.
func (a *Allocator) Free(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, err := a.records.Remove(h)
	if err != nil {
		return fmt.Errorf("free: %w", err)
	}
	for _, b := range a.blocks {
		if b.id == rec.Memory {
			b.give(span{rec.Offset, rec.Size})
			break
		}
	}
	a.used -= rec.Size
	if a.budget != nil {
		a.budget.Release(int64(rec.Size))
	}
	return nil
}

// Len returns the number of live allocations.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records.Len()
}

// Used returns the bytes handed out, excluding alignment padding.
func (a *Allocator) Used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// FreeRanges returns the number of free ranges in block id, or -1 if the
// block is unknown. A fully coalesced empty block has exactly one.
func (a *Allocator) FreeRanges(id MemoryID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, b := range a.blocks {
		if b.id == id {
			return len(b.free)
		}
	}
	return -1
}

// take carves the first free range that fits an aligned request.
// Alignment padding in front of the result stays free.
func (b *block) take(size, align uint64) (uint64, bool) {
	for i, s := range b.free {
		start := (s.offset + align - 1) &^ (align - 1)
		end := s.offset + s.size
		if start < s.offset || start+size > end {
			continue
		}
		var keep []span
		if start > s.offset {
			keep = append(keep, span{s.offset, start - s.offset})
		}
		if tail := end - (start + size); tail > 0 {
			keep = append(keep, span{start + size, tail})
		}
		b.free = slices.Replace(b.free, i, i+1, keep...)
		return start, true
	}
	return 0, false
}

// give inserts s in offset order and merges it with adjacent ranges.
func (b *block) give(s span) {
	i, _ := slices.BinarySearchFunc(b.free, s.offset, func(x span, off uint64) int {
		switch {
		case x.offset < off:
			return -1
		case x.offset > off:
			return 1
		}
		return 0
	})
	b.free = slices.Insert(b.free, i, s)
	if i+1 < len(b.free) && b.free[i].offset+b.free[i].size == b.free[i+1].offset {
		b.free[i].size += b.free[i+1].size
		b.free = slices.Delete(b.free, i+1, i+2)
	}
	if i > 0 && b.free[i-1].offset+b.free[i-1].size == b.free[i].offset {
		b.free[i-1].size += b.free[i].size
		b.free = slices.Delete(b.free, i, i+1)
	}
}
