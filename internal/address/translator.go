// Package address converts pointers stored inside cache containers into
// file offsets and back.
//
// Every translator is a delta: offset = pointer - magic. The magic is derived
// once from header fields (or, for self-relative regions, from a per-tag
// lookup) and never changes afterwards, so translators are safe for
// concurrent use.
package address

import "fmt"

// Translator converts between stored pointers and file offsets.
type Translator interface {
	ToOffset(pointer int64) int64
	ToPointer(offset int64) int64
}

// Magic is a constant-delta translator.
type Magic int64

// FromPointer derives the magic from a stored pointer whose file offset is known.
func FromPointer(pointer, knownOffset int64) Magic {
	return Magic(pointer - knownOffset)
}

// FromOffset returns a translator for values stored relative to a base file offset.
func FromOffset(base int64) Magic {
	return Magic(-base)
}

func (m Magic) ToOffset(pointer int64) int64 {
	return pointer - int64(m)
}

func (m Magic) ToPointer(offset int64) int64 {
	return offset + int64(m)
}

func (m Magic) String() string {
	return fmt.Sprintf("magic(%#x)", int64(m))
}

// ExpandBase is added to shifted 32-bit pointers in layouts that store
// addresses in compressed form.
const ExpandBase = 0x50000000

// Expanded wraps a translator for layouts that store 32-bit pointers
// shifted right by two. Stored values are expanded before translation.
type Expanded struct {
	Inner Translator
}

func (e Expanded) ToOffset(pointer int64) int64 {
	return e.Inner.ToOffset(Expand(uint32(pointer)))
}

func (e Expanded) ToPointer(offset int64) int64 {
	return int64(Compress(e.Inner.ToPointer(offset)))
}

// Expand widens a stored compressed pointer into a virtual address.
func Expand(pointer uint32) int64 {
	return int64(pointer)<<2 + ExpandBase
}

// Compress narrows a virtual address into its stored 32-bit form.
func Compress(address int64) uint32 {
	return uint32((address - ExpandBase) >> 2)
}

// NewLocal returns a translator for a region whose pointers are relative to
// its own load address, such as a structure BSP.
func NewLocal(address, fileOffset int64) Magic {
	return FromPointer(address, fileOffset)
}
