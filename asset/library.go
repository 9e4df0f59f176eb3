// Package asset stores engine asset metadata behind packed 64-bit handles.
package asset

import (
	"errors"
	"fmt"
	"iter"

	"github.com/IvanBrykalov/arenacache/arena"
)

// ErrInUse is returned when removing a geometry that a mesh still uses.
var ErrInUse = errors.New("asset: geometry in use")

// Mesh names a drawable made of one geometry stream.
type Mesh struct {
	Name     string
	Geometry GeometryHandle
}

// Library holds geometry in a dense arena and meshes in a unique arena, so
// equal meshes are stored once. It is not safe for concurrent use.
type Library struct {
	geometry *arena.Dense[Geometry]
	meshes   *arena.Unique[Mesh]
	users    map[GeometryHandle]int
}

func NewLibrary() *Library {
	return &Library{
		geometry: arena.NewDense[Geometry](0),
		meshes:   arena.NewUnique[Mesh](nil),
		users:    make(map[GeometryHandle]int),
	}
}

// AddGeometry stores g.
func (l *Library) AddGeometry(g Geometry) GeometryHandle {
	return geometryHandle(l.geometry.Insert(g))
}

// Geometry returns the geometry behind h.
func (l *Library) Geometry(h GeometryHandle) (Geometry, error) {
	return l.geometry.Get(h.handle())
}

// RemoveGeometry deletes h unless a mesh refers to it.
func (l *Library) RemoveGeometry(h GeometryHandle) error {
	if n := l.users[h]; n > 0 {
		return fmt.Errorf("remove %s: %d mesh(es): %w", h, n, ErrInUse)
	}
	_, err := l.geometry.Remove(h.handle())
	return err
}

// AddMesh stores m. Its geometry must be live. Adding a mesh equal to a
// stored one returns the stored handle with arena.ErrDuplicateValue.
func (l *Library) AddMesh(m Mesh) (MeshHandle, error) {
	if !l.geometry.Contains(m.Geometry.handle()) {
		return 0, fmt.Errorf("add mesh %q: %w", m.Name, &arena.HandleError{
			Op:         "geometry",
			Index:      m.Geometry.ID(),
			Generation: m.Geometry.Generation(),
			Err:        arena.ErrStaleHandle,
		})
	}
	h, err := l.meshes.Insert(m)
	if err != nil {
		return meshHandle(h), err
	}
	l.users[m.Geometry]++
	return meshHandle(h), nil
}

// Mesh returns the mesh behind h.
func (l *Library) Mesh(h MeshHandle) (Mesh, error) {
	return l.meshes.Get(h.handle())
}

// FindMesh returns the handle of a stored mesh equal to m.
func (l *Library) FindMesh(m Mesh) (MeshHandle, bool) {
	h, ok := l.meshes.HandleOf(m)
	return meshHandle(h), ok
}

// RemoveMesh deletes h and releases its geometry reference.
func (l *Library) RemoveMesh(h MeshHandle) error {
	m, err := l.meshes.Remove(h.handle())
	if err != nil {
		return err
	}
	if l.users[m.Geometry]--; l.users[m.Geometry] == 0 {
		delete(l.users, m.Geometry)
	}
	return nil
}

// MeshGeometry resolves a mesh straight to its geometry.
func (l *Library) MeshGeometry(h MeshHandle) (Geometry, error) {
	m, err := l.Mesh(h)
	if err != nil {
		return Geometry{}, err
	}
	return l.Geometry(m.Geometry)
}

// Meshes yields every stored mesh.
func (l *Library) Meshes() iter.Seq2[MeshHandle, Mesh] {
	return func(yield func(MeshHandle, Mesh) bool) {
		for h, m := range l.meshes.All() {
			if !yield(meshHandle(h), m) {
				return
			}
		}
	}
}

// Len returns the number of geometries and meshes.
func (l *Library) Len() (geometries, meshes int) {
	return l.geometry.Len(), l.meshes.Len()
}
