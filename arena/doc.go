// Package arena provides generational slot maps: containers that own their
// values and hand out small, copyable handles instead of pointers.
//
// A Handle is an (index, generation) pair. Removing a value bumps the
// generation stored at its index, so every copy of the old handle fails
// validation from then on instead of silently resolving to whatever reuses
// the slot:
//
//	var meshes arena.Dense[Mesh]
//	h := meshes.Insert(m)
//	_, _ = meshes.Remove(h)
//	_, err := meshes.Get(h) // errors.Is(err, arena.ErrStaleHandle)
//
// Variants:
//
//   - Dense: swap-remove packed storage; fastest iteration, rows move.
//   - Sparse: paged storage with holes; stable value addresses (Ptr).
//   - FreeList: no generation checks; the caller owns handle discipline.
//   - Sorted: dense storage kept ordered by a comparison function.
//   - Unique: set semantics over any of the above.
//   - Locked: a mutex wrapper surfacing ErrPoisonedLock.
//
// None of the containers except Locked are safe for concurrent use.
package arena
