package cachefile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jchantrell/mapcache/internal/format"
)

// field is one named header value. Where it lives depends on the layout.
type field uint8

const (
	fieldFileSize field = iota
	fieldCompressedSize
	fieldIndexAddress
	fieldIndexSize
	fieldMetadataSize
	fieldScenarioName
	fieldChunkCompressed

	fieldStringCount
	fieldStringSize
	fieldStringIndexOffset
	fieldStringOffset

	fieldFileTableCount
	fieldFileTableOffset
	fieldFileTableSize
	fieldFileTableIndexOffset

	fieldIndexPointer
	fieldVirtualBase
	fieldSectionTable
	fieldSectionOffsets

	fieldNamespaceCount
	fieldNamespaceTableOffset
)

var fieldNames = map[field]string{
	fieldFileSize:             "file size",
	fieldCompressedSize:       "compressed size",
	fieldIndexAddress:         "index address",
	fieldIndexSize:            "index size",
	fieldMetadataSize:         "metadata size",
	fieldScenarioName:         "scenario name",
	fieldChunkCompressed:      "chunk compressed",
	fieldStringCount:          "string count",
	fieldStringSize:           "string size",
	fieldStringIndexOffset:    "string index offset",
	fieldStringOffset:         "string offset",
	fieldFileTableCount:       "file table count",
	fieldFileTableOffset:      "file table offset",
	fieldFileTableSize:        "file table size",
	fieldFileTableIndexOffset: "file table index offset",
	fieldIndexPointer:         "index pointer",
	fieldVirtualBase:          "virtual base address",
	fieldSectionTable:         "section table",
	fieldSectionOffsets:       "section offsets",
	fieldNamespaceCount:       "namespace count",
	fieldNamespaceTableOffset: "namespace table offset",
}

func (f field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return fmt.Sprintf("field(%d)", uint8(f))
}

// widthPointer sizes a field by the layout's stored address width.
const widthPointer = -1

// span places a field at offset for layouts in [min, max). A zero max is unbounded.
type span struct {
	min, max format.Layout
	offset   int64
}

func (s span) contains(l format.Layout) bool {
	return l >= s.min && (s.max == 0 || l < s.max)
}

type fieldSpec struct {
	field field
	width int
	spans []span
}

// fieldMap lists every header field a generation may carry.
type fieldMap struct {
	size   int64
	fields []fieldSpec
}

// all returns a span covering every layout from min onwards.
func all(min format.Layout, offset int64) []span {
	return []span{{min: min, offset: offset}}
}

var gen1Fields = fieldMap{
	size: 0x800,
	fields: []fieldSpec{
		{fieldFileSize, 4, all(format.Halo1Xbox, 0x08)},
		{fieldCompressedSize, 4, []span{{format.Halo1Xbox, format.Halo1PC, 0x0C}}},
		{fieldIndexAddress, 4, all(format.Halo1Xbox, 0x10)},
		{fieldMetadataSize, 4, all(format.Halo1Xbox, 0x14)},
		{fieldScenarioName, 32, all(format.Halo1Xbox, 0x20)},
		{fieldChunkCompressed, 4, []span{{format.MccHalo1, format.Halo2Beta, 0x2C0}}},
	},
}

// gen2Spans splits a field between the original Xbox header and the
// Vista-era header, which shifted the string and file tables by 12 bytes
// and moved the scenario name past them.
func gen2Spans(xbox, vista int64) []span {
	return []span{
		{format.Halo2Beta, format.Halo2Vista, xbox},
		{format.Halo2Vista, format.Halo3Alpha, vista},
	}
}

var gen2Fields = fieldMap{
	size: 0x800,
	fields: []fieldSpec{
		{fieldFileSize, 4, all(format.Halo2Beta, 0x08)},
		{fieldIndexAddress, 4, all(format.Halo2Beta, 0x10)},
		{fieldIndexSize, 4, all(format.Halo2Beta, 0x14)},
		{fieldMetadataSize, 4, all(format.Halo2Beta, 0x18)},
		{fieldScenarioName, 32, gen2Spans(0x100, 0x1A4)},
		{fieldStringCount, 4, gen2Spans(0x160, 0x16C)},
		{fieldStringSize, 4, gen2Spans(0x164, 0x170)},
		{fieldStringIndexOffset, 4, gen2Spans(0x168, 0x174)},
		{fieldStringOffset, 4, gen2Spans(0x16C, 0x178)},
		{fieldFileTableCount, 4, gen2Spans(0x2C0, 0x2CC)},
		{fieldFileTableOffset, 4, gen2Spans(0x2C4, 0x2D0)},
		{fieldFileTableSize, 4, gen2Spans(0x2C8, 0x2D4)},
		{fieldFileTableIndexOffset, 4, gen2Spans(0x2CC, 0x2D8)},
	},
}

// gen3Strings places the string table fields, which Reach moved 16 bytes on.
func gen3Strings(halo3 int64) []span {
	return []span{
		{format.Halo3Alpha, format.HaloReachBeta, halo3},
		{format.HaloReachBeta, 0, halo3 + 0x10},
	}
}

var gen3Fields = fieldMap{
	size: 0x3000,
	fields: []fieldSpec{
		{fieldFileSize, 4, all(format.Halo3Alpha, 0x08)},
		{fieldIndexPointer, widthPointer, all(format.Halo3Alpha, 0x10)},
		{fieldStringCount, 4, gen3Strings(0x190)},
		{fieldStringSize, 4, gen3Strings(0x194)},
		{fieldStringIndexOffset, 4, gen3Strings(0x198)},
		{fieldStringOffset, 4, gen3Strings(0x19C)},
		{fieldScenarioName, 256, all(format.Halo3Alpha, 0x1C0)},
		{fieldFileTableCount, 4, all(format.Halo3Alpha, 0x2C0)},
		{fieldFileTableOffset, 4, all(format.Halo3Alpha, 0x2C4)},
		{fieldFileTableSize, 4, all(format.Halo3Alpha, 0x2C8)},
		{fieldFileTableIndexOffset, 4, all(format.Halo3Alpha, 0x2CC)},
		{fieldVirtualBase, widthPointer, all(format.Halo3Alpha, 0x2D0)},
		{fieldSectionTable, sectionCount * 8, all(format.Halo3Alpha, 0x2E0)},
		{fieldSectionOffsets, sectionCount * 4, all(format.Halo3Alpha, 0x300)},
		{fieldNamespaceCount, 4, all(format.Halo4Beta, 0x310)},
		{fieldNamespaceTableOffset, 4, all(format.Halo4Beta, 0x314)},
	},
}

func fieldsFor(gen format.Generation) (fieldMap, error) {
	switch gen {
	case format.Gen1:
		return gen1Fields, nil
	case format.Gen2:
		return gen2Fields, nil
	case format.Gen3, format.Gen4:
		return gen3Fields, nil
	default:
		return fieldMap{}, fmt.Errorf("%w: generation %s", ErrUnsupportedContainer, gen)
	}
}

type location struct {
	offset int64
	width  int
}

// header is a container header with its field map resolved for one layout.
type header struct {
	order binary.ByteOrder
	raw   []byte
	loc   map[field]location
}

// readHeader reads the header region and resolves where each field lives
// for the descriptor's layout.
func readHeader(r io.ReaderAt, desc *format.Descriptor, order binary.ByteOrder) (*header, error) {
	fm, err := fieldsFor(desc.Generation())
	if err != nil {
		return nil, err
	}

	h := &header{
		order: order,
		raw:   make([]byte, fm.size),
		loc:   make(map[field]location, len(fm.fields)),
	}
	if n, err := r.ReadAt(h.raw, 0); n != len(h.raw) {
		return nil, truncated("header", err)
	}

	for _, spec := range fm.fields {
		for _, s := range spec.spans {
			if !s.contains(desc.Layout) {
				continue
			}
			width := spec.width
			if width == widthPointer {
				width = 4
				if desc.Is64Bit() {
					width = 8
				}
			}
			if s.offset+int64(width) > fm.size {
				return nil, fmt.Errorf("field %s at %#x overruns the header", spec.field, s.offset)
			}
			h.loc[spec.field] = location{offset: s.offset, width: width}
			break
		}
	}
	return h, nil
}

func (h *header) has(f field) bool {
	_, ok := h.loc[f]
	return ok
}

// value returns the raw bytes of a field, or nil when the layout lacks it.
func (h *header) value(f field) []byte {
	l, ok := h.loc[f]
	if !ok {
		return nil
	}
	return h.raw[l.offset : l.offset+int64(l.width)]
}

// uint returns an integer field, or 0 when the layout lacks it.
func (h *header) uint(f field) uint64 {
	b := h.value(f)
	switch len(b) {
	case 4:
		return uint64(h.order.Uint32(b))
	case 8:
		return h.order.Uint64(b)
	default:
		return 0
	}
}

func (h *header) int(f field) int64 {
	return int64(h.uint(f))
}

func (h *header) text(f field) string {
	b := h.value(f)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// uint32s decodes an array field of 32-bit values.
func (h *header) uint32s(f field) []uint32 {
	b := h.value(f)
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = h.order.Uint32(b[i*4:])
	}
	return out
}
