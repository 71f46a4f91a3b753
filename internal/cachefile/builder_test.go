package cachefile

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/mapcache/internal/address"
	"github.com/jchantrell/mapcache/internal/chunk"
	"github.com/jchantrell/mapcache/internal/format"
	"github.com/jchantrell/mapcache/internal/tags"
)

// image is a growable container image written in one byte order.
type image struct {
	buf   []byte
	order binary.ByteOrder
}

func newImage(order binary.ByteOrder, size int) *image {
	return &image{buf: make([]byte, size), order: order}
}

// alloc appends n zero bytes at the next 4-byte boundary and returns their offset.
func (im *image) alloc(n int) int64 {
	for len(im.buf)%4 != 0 {
		im.buf = append(im.buf, 0)
	}
	off := int64(len(im.buf))
	im.buf = append(im.buf, make([]byte, n)...)
	return off
}

func (im *image) blob(b []byte) int64 {
	off := im.alloc(len(b))
	copy(im.buf[off:], b)
	return off
}

func (im *image) cstring(s string) int64 {
	off := im.alloc(len(s) + 1)
	copy(im.buf[off:], s)
	return off
}

func (im *image) str(off int64, s string) { copy(im.buf[off:], s) }
func (im *image) u16(off int64, v uint16) { im.order.PutUint16(im.buf[off:], v) }
func (im *image) u32(off int64, v uint32) { im.order.PutUint32(im.buf[off:], v) }
func (im *image) u64(off int64, v uint64) { im.order.PutUint64(im.buf[off:], v) }
func (im *image) size() int64 { return int64(len(im.buf)) }
func (im *image) pointer(off int64, v int64, wide bool) {
	if wide {
		im.u64(off, uint64(v))
		return
	}
	im.u32(off, uint32(v))
}

var testValidBuild = regexp.MustCompile(`^[A-Za-z0-9. :]{10,32}$`)

// stamp writes the magic, version and build string where identification looks for them.
func stamp(im *image, version int32, build string) {
	im.u32(0, format.LittleMagic)
	im.u32(4, uint32(version))

	var off int64
	switch version {
	case 5, 6, 7, 609:
		off = 64
	case 8:
		off = 288
	case 9:
		off = 284
	case 10, 11, 12:
		off = 288
	case 13:
		off = 344
		if testValidBuild.MatchString(build) {
			off = 288
		}
	default:
		off = 288
		if _, err := time.Parse("Jan 2 2006 15:04:05", build); err == nil {
			off = 352
		}
	}
	im.str(off, build)
}

// offsetTable appends an offset table and returns the index offset, blob
// offset and blob size. A non-nil key encrypts the blob.
func (im *image) offsetTable(t *testing.T, values []string, key *tags.Key) (int64, int64, int64) {
	t.Helper()
	var blob []byte
	offsets := make([]int32, len(values))
	for i, v := range values {
		offsets[i] = int32(len(blob))
		blob = append(blob, v...)
		blob = append(blob, 0)
	}
	if key != nil {
		require.NoError(t, key.Encrypt(blob))
	}
	index := im.alloc(4 * len(values))
	for i, off := range offsets {
		im.u32(index+int64(i)*4, uint32(off))
	}
	return index, im.blob(blob), int64(len(blob))
}

// fixtureTag is one tag written by the builders. patch may append data the
// payload points at once the payload's own offset is known.
type fixtureTag struct {
	class    string
	name     string
	payload  []byte
	external bool
	null     bool
	patch    func(im *image, self int64, ptr func(int64) int64)
}

func tagID(i int) uint32 {
	return 0xE1740000 + uint32(i)
}

const testScenario = "levels\\test\\beaver\\beaver"

// gen1Base is the virtual address the tag array is loaded at.
const gen1Base = 0x40440000

func buildGen1(version int32, build string, fixtures []fixtureTag) *image {
	im := newImage(binary.LittleEndian, 0x800)
	stamp(im, version, build)
	im.str(0x20, testScenario)

	index := im.alloc(gen1IndexSize)
	magic := int64(gen1Base) - (index + gen1IndexSize)
	ptr := func(off int64) int64 { return off + magic }

	array := im.alloc(len(fixtures) * gen1EntrySize)
	scenarioID := uint32(0xFFFFFFFF)
	for i, f := range fixtures {
		rec := array + int64(i*gen1EntrySize)
		if f.null {
			im.u32(rec, uint32(tags.NoClass))
			continue
		}
		class := tags.MustParseClass(f.class)
		im.u32(rec, uint32(class))
		im.u32(rec+4, uint32(tags.NoClass))
		im.u32(rec+8, uint32(tags.NoClass))
		im.u32(rec+12, tagID(i))
		im.u32(rec+16, uint32(ptr(im.cstring(f.name))))
		if f.external {
			im.u32(rec+20, 0x1234)
			im.u32(rec+24, gen1FlagExternal)
		} else {
			self := im.blob(f.payload)
			im.u32(rec+20, uint32(ptr(self)))
			if f.patch != nil {
				f.patch(im, self, ptr)
			}
		}
		if class == tags.Scenario {
			scenarioID = tagID(i)
		}
	}

	im.u32(index, uint32(ptr(array)))
	im.u32(index+4, scenarioID)
	im.u32(index+12, uint32(len(fixtures)))
	im.u32(index+36, indexMagic)

	im.u32(0x08, uint32(im.size()))
	im.u32(0x10, uint32(index))
	im.u32(0x14, uint32(im.size()-index))
	return im
}

// chunkify stores everything past the header as alternating compressed and
// raw chunks behind a chunk table.
func chunkify(t *testing.T, logical []byte, chunkSize int) []byte {
	t.Helper()
	var stored [][]byte
	var sizes []int32
	for i, n := 0, chunk.HeaderSize; n < len(logical); i, n = i+1, n+chunkSize {
		data := logical[n:min(n+chunkSize, len(logical))]
		if i%2 == 1 {
			stored = append(stored, data)
			sizes = append(sizes, -int32(len(data)))
			continue
		}
		var buf bytes.Buffer
		buf.Write([]byte{0x78, 0xDA})
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		stored = append(stored, buf.Bytes())
		sizes = append(sizes, int32(buf.Len()))
	}

	var file bytes.Buffer
	file.Write(logical[:chunk.HeaderSize])
	offset := uint32(chunk.HeaderSize + 4 + 8*len(stored))
	require.NoError(t, binary.Write(&file, binary.LittleEndian, int32(len(stored))))
	for i := range stored {
		require.NoError(t, binary.Write(&file, binary.LittleEndian, sizes[i]))
		require.NoError(t, binary.Write(&file, binary.LittleEndian, offset))
		offset += uint32(len(stored[i]))
	}
	for _, s := range stored {
		file.Write(s)
	}
	return file.Bytes()
}

const (
	gen2IndexMagic = 0x10000
	gen2MetaBase   = 0x80061000
)

type gen2Fixture struct {
	layout  format.Layout
	build   string
	strings []string
	tags    []fixtureTag
}

func buildGen2(t *testing.T, fx gen2Fixture) *image {
	t.Helper()
	vista := fx.layout >= format.Halo2Vista
	im := newImage(binary.LittleEndian, 0x800)
	stamp(im, 8, fx.build)
	if vista {
		im.str(0x1A4, testScenario)
	} else {
		im.str(0x100, testScenario)
	}

	index := im.alloc(gen2IndexSize)
	iptr := func(off int64) int64 { return off + gen2IndexMagic }

	var classes []tags.ClassCode
	seen := map[tags.ClassCode]bool{}
	for _, f := range fx.tags {
		if f.null {
			continue
		}
		c := tags.MustParseClass(f.class)
		if !seen[c] {
			seen[c] = true
			classes = append(classes, c)
		}
	}
	classTable := im.alloc(len(classes) * gen2ClassEntrySize)
	for i, c := range classes {
		rec := classTable + int64(i*gen2ClassEntrySize)
		im.u32(rec, uint32(c))
		im.u32(rec+4, uint32(tags.MustParseClass("obje")))
		im.u32(rec+8, uint32(tags.NoClass))
	}

	array := im.alloc(len(fx.tags) * gen2TagEntrySize)
	metaStart := im.size()
	mptr := func(off int64) int64 { return off - metaStart + gen2MetaBase }

	var scenarioID, globalsID uint32 = 0xFFFFFFFF, 0xFFFFFFFF
	for i, f := range fx.tags {
		rec := array + int64(i*gen2TagEntrySize)
		if f.null {
			im.u32(rec, uint32(tags.NoClass))
			im.u32(rec+4, 0xFFFFFFFF)
			continue
		}
		class := tags.MustParseClass(f.class)
		self := im.blob(f.payload)
		im.u32(rec, uint32(class))
		im.u32(rec+4, tagID(i))
		im.u32(rec+8, uint32(mptr(self)))
		im.u32(rec+12, uint32(len(f.payload)))
		if f.patch != nil {
			f.patch(im, self, mptr)
		}
		switch class {
		case tags.Scenario:
			scenarioID = tagID(i)
		case tags.Globals:
			globalsID = tagID(i)
		}
	}

	im.u32(index, uint32(iptr(classTable)))
	im.u32(index+4, uint32(len(classes)))
	im.u32(index+8, uint32(iptr(array)))
	im.u32(index+12, scenarioID)
	im.u32(index+16, globalsID)
	im.u32(index+24, uint32(len(fx.tags)))
	im.u32(index+28, indexMagic)

	names := make([]string, len(fx.tags))
	for i, f := range fx.tags {
		names[i] = f.name
	}
	nameIndex, nameBlob, nameSize := im.offsetTable(t, names, nil)
	strIndex, strBlob, strSize := im.offsetTable(t, fx.strings, nil)

	shift := int64(0)
	if vista {
		shift = 12
	}
	im.u32(0x160+shift, uint32(len(fx.strings)))
	im.u32(0x164+shift, uint32(strSize))
	im.u32(0x168+shift, uint32(strIndex))
	im.u32(0x16C+shift, uint32(strBlob))
	im.u32(0x2C0+shift, uint32(len(names)))
	im.u32(0x2C4+shift, uint32(nameBlob))
	im.u32(0x2C8+shift, uint32(nameSize))
	im.u32(0x2CC+shift, uint32(nameIndex))

	im.u32(0x08, uint32(im.size()))
	im.u32(0x10, uint32(index))
	im.u32(0x14, uint32(metaStart-index))
	return im
}

// gen3TagAddress is the section table address of the tag section.
const gen3TagAddress = 0x10

type gen3Fixture struct {
	layout    format.Layout
	build     string
	version   int32
	strings   []string
	nsCounts  []int
	tags      []fixtureTag
	resources []byte
	// corruptMarker writes a bad tag index marker.
	corruptMarker bool
}

// buildGen3 writes a sectioned container: header, tag section, debug
// section and resource section in that order. Tag data pointers are
// offset+base, stored compressed when the layout expands pointers.
func buildGen3(t *testing.T, fx gen3Fixture) *image {
	t.Helper()
	desc, ok := format.Lookup(fx.layout)
	require.True(t, ok)
	wide := desc.Is64Bit()
	expanded := expandsPointers(desc)

	im := newImage(desc.ByteOrder(), 0x3000)
	stamp(im, fx.version, fx.build)
	im.str(0x1C0, testScenario)

	base := int64(0x80000000)
	if expanded {
		base = address.ExpandBase
	}
	ptr := func(off int64) int64 { return off + base }
	stored := func(off int64) uint32 {
		if expanded {
			return address.Compress(ptr(off))
		}
		return uint32(ptr(off))
	}

	tagSection := im.alloc(0)
	index := im.alloc(gen3IndexSize)

	var groups []tags.ClassCode
	groupOf := map[tags.ClassCode]int{}
	for _, f := range fx.tags {
		if f.null {
			continue
		}
		c := tags.MustParseClass(f.class)
		if _, ok := groupOf[c]; !ok {
			groupOf[c] = len(groups)
			groups = append(groups, c)
		}
	}
	groupTable := im.alloc(len(groups) * gen3GroupSize)
	for i, c := range groups {
		rec := groupTable + int64(i*gen3GroupSize)
		im.u32(rec, uint32(c))
		im.u32(rec+4, uint32(tags.NoClass))
		im.u32(rec+8, uint32(tags.NoClass))
	}

	array := im.alloc(len(fx.tags) * gen3TagSize)
	var globals []tags.Global
	for i, f := range fx.tags {
		rec := array + int64(i*gen3TagSize)
		if f.null {
			im.u16(rec, 0xFFFF)
			continue
		}
		c := tags.MustParseClass(f.class)
		im.u16(rec, uint16(groupOf[c]))
		im.u16(rec+2, uint16(tagID(i)>>16))
		self := im.blob(f.payload)
		im.u32(rec+4, stored(self))
		if f.patch != nil {
			f.patch(im, self, ptr)
		}
		if c.IsSystem() {
			globals = append(globals, tags.Global{Class: c, ID: tagID(i)})
		}
	}
	globalTable := im.alloc(len(globals) * gen3GlobalSize)
	for i, g := range globals {
		rec := globalTable + int64(i*gen3GlobalSize)
		im.u32(rec, uint32(g.Class))
		im.u32(rec+4, g.ID)
	}

	im.u32(index, uint32(len(groups)))
	im.u32(index+4, stored(groupTable))
	im.u32(index+8, uint32(len(fx.tags)))
	im.u32(index+12, stored(array))
	im.u32(index+16, uint32(len(globals)))
	im.u32(index+20, stored(globalTable))
	if fx.corruptMarker {
		im.u32(index+36, 0x64656164)
	} else {
		im.u32(index+36, indexMagic)
	}
	tagSize := im.size() - tagSection

	var nameKey, stringKey *tags.Key
	if encrypted[fx.layout] {
		nameKey, stringKey = tags.FileNameKey, tags.StringKey
	}

	debug := im.alloc(0)
	names := make([]string, len(fx.tags))
	for i, f := range fx.tags {
		names[i] = f.name
	}
	nameIndex, nameBlob, nameSize := im.offsetTable(t, names, nameKey)
	strIndex, strBlob, strSize := im.offsetTable(t, fx.strings, stringKey)
	var nsTable int64
	if len(fx.nsCounts) > 0 {
		nsTable = im.alloc(4 * len(fx.nsCounts))
		for i, n := range fx.nsCounts {
			im.u32(nsTable+int64(i)*4, uint32(n))
		}
	}

	resources := im.blob(fx.resources)

	strings := int64(0x190)
	if fx.layout >= format.HaloReachBeta {
		strings = 0x1A0
	}
	im.u32(strings, uint32(len(fx.strings)))
	im.u32(strings+4, uint32(strSize))
	im.u32(strings+8, uint32(strIndex-debug))
	im.u32(strings+12, uint32(strBlob-debug))
	im.u32(0x2C0, uint32(len(names)))
	im.u32(0x2C4, uint32(nameBlob-debug))
	im.u32(0x2C8, uint32(nameSize))
	im.u32(0x2CC, uint32(nameIndex-debug))
	if len(fx.nsCounts) > 0 {
		im.u32(0x310, uint32(len(fx.nsCounts)))
		im.u32(0x314, uint32(nsTable-debug))
	}

	im.pointer(0x10, ptr(index), wide)
	im.pointer(0x2D0, base+gen3TagAddress+tagSection, wide)
	im.u32(0x2E0+SectionTag*8, gen3TagAddress)
	im.u32(0x2E0+SectionTag*8+4, uint32(tagSize))
	im.u32(0x300+SectionDebug*4, uint32(debug))
	im.u32(0x300+SectionResource*4, uint32(resources))
	im.u32(0x300+SectionTag*4, uint32(tagSection))
	im.u32(0x08, uint32(im.size()))
	return im
}

// writeMap writes data to dir/name and returns the path.
func writeMap(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func deflateBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func pattern(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7) ^ seed
	}
	return out
}
