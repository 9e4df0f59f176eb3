package asset

// Format is the element format of a geometry stream.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatU16
	FormatU32
	FormatU64
	FormatF32
	FormatF64
	FormatF32x2
	FormatF32x3
	FormatF32x4
	FormatF64x2
	FormatF64x3
	FormatF64x4
)

// Size returns the size of one element in bytes; 0 for FormatUnknown.
func (f Format) Size() uint64 {
	switch f {
	case FormatU16:
		return 2
	case FormatU32, FormatF32:
		return 4
	case FormatU64, FormatF64, FormatF32x2:
		return 8
	case FormatF32x3:
		return 12
	case FormatF32x4, FormatF64x2:
		return 16
	case FormatF64x3:
		return 24
	case FormatF64x4:
		return 32
	default:
		return 0
	}
}

// LocationKind tells where geometry bytes come from.
type LocationKind uint8

const (
	LocationURL LocationKind = iota
	LocationFile
	LocationBlob
)

// Location points at the bytes backing a geometry. Path is used for URL
// and File locations, Blob for in-memory data.
type Location struct {
	Kind LocationKind
	Path string
	Blob []byte
}

// Geometry is the metadata needed to load one vertex or index stream.
type Geometry struct {
	Location Location
	Format   Format
	Offset   uint64
	// Stride between elements in bytes; 0 means tightly packed.
	Stride uint64
	Count  uint64
}

// ByteLen returns the number of bytes the stream spans from Offset.
func (g Geometry) ByteLen() uint64 {
	if g.Count == 0 {
		return 0
	}
	elem := g.Format.Size()
	stride := g.Stride
	if stride == 0 {
		stride = elem
	}
	return stride*(g.Count-1) + elem
}
