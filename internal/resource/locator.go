package resource

import "fmt"

// Location selects the file that physically holds a resource: the container
// itself or one of the generation's three shared sibling containers.
type Location int8

const (
	Local Location = -1
)

// MaxShared is the number of shared sibling containers a generation defines.
const MaxShared = 3

// Shared returns the location of the i-th shared sibling container.
func Shared(i int) Location {
	return Location(i)
}

// IsLocal reports whether the resource lives in the container itself.
func (l Location) IsLocal() bool {
	return l == Local
}

func (l Location) String() string {
	if l == Local {
		return "local"
	}
	return fmt.Sprintf("shared[%d]", int8(l))
}

// Locator references a resource payload. It is resolved to bytes only when a
// consumer asks for them.
type Locator struct {
	Location Location
	// Offset is absolute for pointer-addressed layouts and relative to the
	// resource section for section-addressed layouts.
	Offset           int64
	Codec            Codec
	CompressedSize   int64
	DecompressedSize int64
}

const (
	pointerLocationShift = 30
	pointerOffsetMask    = 1<<pointerLocationShift - 1
)

// FromPointer decodes a raw data pointer whose top two bits select the file
// (0 = the container, 1..3 = shared containers) and whose low bits are the
// file offset. Such payloads are stored uncompressed.
func FromPointer(pointer uint32, size uint32) Locator {
	loc := Local
	if sel := pointer >> pointerLocationShift; sel != 0 {
		loc = Shared(int(sel) - 1)
	}
	return Locator{
		Location:         loc,
		Offset:           int64(pointer & pointerOffsetMask),
		Codec:            Uncompressed,
		CompressedSize:   int64(size),
		DecompressedSize: int64(size),
	}
}

// ToPointer is the inverse of FromPointer.
func (l Locator) ToPointer() uint32 {
	var sel uint32
	if !l.Location.IsLocal() {
		sel = uint32(l.Location) + 1
	}
	return sel<<pointerLocationShift | uint32(l.Offset)&pointerOffsetMask
}
