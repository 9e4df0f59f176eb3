package asset

import (
	"fmt"

	"github.com/IvanBrykalov/arenacache/arena"
)

// MeshHandle refers to a Mesh in a Library, packed as generation<<32 | index.
// The zero value is index 0 at generation 0.
type MeshHandle uint64

// GeometryHandle refers to a Geometry in a Library, packed the same way.
type GeometryHandle uint64

func (h MeshHandle) ID() uint32         { return uint32(h) }
func (h MeshHandle) Generation() uint32 { return uint32(h >> 32) }
func (h MeshHandle) String() string     { return fmt.Sprintf("mesh(%d@%d)", h.ID(), h.Generation()) }

func (h GeometryHandle) ID() uint32         { return uint32(h) }
func (h GeometryHandle) Generation() uint32 { return uint32(h >> 32) }
func (h GeometryHandle) String() string {
	return fmt.Sprintf("geometry(%d@%d)", h.ID(), h.Generation())
}

func meshHandle(h arena.Handle[Mesh]) MeshHandle { return MeshHandle(h.Packed()) }

func (h MeshHandle) handle() arena.Handle[Mesh] { return arena.FromPacked[Mesh](uint64(h)) }

func geometryHandle(h arena.Handle[Geometry]) GeometryHandle { return GeometryHandle(h.Packed()) }

func (h GeometryHandle) handle() arena.Handle[Geometry] {
	return arena.FromPacked[Geometry](uint64(h))
}
