package arena

import "fmt"

// Handle identifies a logical slot in an arena. It is an (index, generation)
// pair; the type parameter only ties a handle to the value type it was issued
// for and has no runtime cost.
//
// Handles are comparable and can be used as map keys. Holding a handle says
// nothing about whether the referenced value is still alive: every access
// re-validates the generation against the arena.
type Handle[T any] struct {
	index      uint32
	generation uint32
}

// NewHandle returns a handle for index with generation 0.
func NewHandle[T any](index uint32) Handle[T] {
	return Handle[T]{index: index}
}

// NewHandleWithGeneration returns a handle for index at the given generation.
func NewHandleWithGeneration[T any](index, generation uint32) Handle[T] {
	return Handle[T]{index: index, generation: generation}
}

// FromPacked rebuilds a handle from its 64-bit packed form
// (generation in the high 32 bits, index in the low 32 bits).
// Use it only to reconstruct a handle previously produced by Packed.
func FromPacked[T any](packed uint64) Handle[T] {
	return Handle[T]{index: uint32(packed), generation: uint32(packed >> 32)}
}

// ID returns the slot index.
func (h Handle[T]) ID() uint32 { return h.index }

// Generation returns the slot generation the handle was issued at.
func (h Handle[T]) Generation() uint32 { return h.generation }

// Packed encodes the handle as generation<<32 | index.
// The layout is relied upon by ECS component keys; do not change it.
func (h Handle[T]) Packed() uint64 {
	return uint64(h.generation)<<32 | uint64(h.index)
}

// String implements fmt.Stringer.
func (h Handle[T]) String() string {
	return fmt.Sprintf("%d@%d", h.index, h.generation)
}

// Cast reinterprets the handle for another value type. The index and
// generation are preserved; the result is only meaningful against an arena
// that actually stores U.
func Cast[U, T any](h Handle[T]) Handle[U] {
	return Handle[U]{index: h.index, generation: h.generation}
}
