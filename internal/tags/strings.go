package tags

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/jchantrell/mapcache/internal/format"
)

// idBits is the width of a string id below its length byte.
const idBits = 24

const idMask = 1<<idBits - 1

// StringTable holds a container's interned strings.
type StringTable struct {
	values []string
	ns     *NamespaceMap
}

// NewStringTable wraps values. A nil map resolves ids by their low bits.
func NewStringTable(values []string, ns *NamespaceMap) *StringTable {
	return &StringTable{values: values, ns: ns}
}

func (t *StringTable) Len() int {
	return len(t.values)
}

// All returns the strings in internal index order.
func (t *StringTable) All() []string {
	return t.values
}

// Namespaces returns the namespace map, or nil.
func (t *StringTable) Namespaces() *NamespaceMap {
	return t.ns
}

// Index translates a string id into an index into All.
func (t *StringTable) Index(id uint32) (int, bool) {
	if t.ns != nil {
		return t.ns.IDToIndex(id)
	}
	i := int(id & idMask)
	return i, i < len(t.values)
}

// ID translates an index into All back into a string id.
func (t *StringTable) ID(index int) (uint32, bool) {
	if index < 0 || index >= len(t.values) {
		return 0, false
	}
	if t.ns != nil {
		return t.ns.IndexToID(index)
	}
	return uint32(index), true
}

// Get resolves a string id to its text.
func (t *StringTable) Get(id uint32) (string, bool) {
	i, ok := t.Index(id)
	if !ok {
		return "", false
	}
	return t.values[i], true
}

// NamespaceMap translates namespaced string ids to internal indices and back.
type NamespaceMap struct {
	indexBits uint
	byID      []format.Namespace // ascending id
	byStart   []format.Namespace // ascending start
	total     int
}

// NewNamespaceMap builds a map over a string table of total entries.
func NewNamespaceMap(table *format.NamespaceTable, total int) *NamespaceMap {
	return newNamespaceMap(table.IndexBits, table.Namespaces, total)
}

// FromCounts builds a map from per-namespace string counts as stored in a
// container header. Namespace i starts where namespace i-1 ends.
func FromCounts(indexBits uint, counts []int) *NamespaceMap {
	records := make([]format.Namespace, len(counts))
	start := 0
	for i, c := range counts {
		records[i] = format.Namespace{ID: i, Min: 0, Start: start}
		start += c
	}
	return newNamespaceMap(indexBits, records, start)
}

func newNamespaceMap(indexBits uint, records []format.Namespace, total int) *NamespaceMap {
	m := &NamespaceMap{
		indexBits: indexBits,
		byID:      append([]format.Namespace(nil), records...),
		byStart:   append([]format.Namespace(nil), records...),
		total:     total,
	}
	sort.SliceStable(m.byID, func(a, b int) bool { return m.byID[a].ID < m.byID[b].ID })
	sort.SliceStable(m.byStart, func(a, b int) bool { return m.byStart[a].Start < m.byStart[b].Start })
	return m
}

func (m *NamespaceMap) split(id uint32) (namespace, local int) {
	id &= idMask
	return int(id >> m.indexBits), int(id & (1<<m.indexBits - 1))
}

// lookup finds the record for namespace, walking down to the nearest lower
// namespace that exists.
func (m *NamespaceMap) lookup(namespace int) (format.Namespace, bool) {
	i := sort.Search(len(m.byID), func(i int) bool { return m.byID[i].ID > namespace })
	if i == 0 {
		return format.Namespace{}, false
	}
	return m.byID[i-1], true
}

// IDToIndex returns the internal index of a string id.
func (m *NamespaceMap) IDToIndex(id uint32) (int, bool) {
	namespace, local := m.split(id)
	rec, ok := m.lookup(namespace)
	if !ok {
		return 0, false
	}
	// an id outside its namespace's range must not reach the next namespace
	if local < rec.Min || local-rec.Min >= m.Count(rec.ID) {
		return 0, false
	}
	return local - rec.Min + rec.Start, true
}

// IndexToID returns the string id of an internal index.
func (m *NamespaceMap) IndexToID(index int) (uint32, bool) {
	if index < 0 || index >= m.total {
		return 0, false
	}
	i := sort.Search(len(m.byStart), func(i int) bool { return m.byStart[i].Start > index })
	if i == 0 {
		return 0, false
	}
	rec := m.byStart[i-1]
	local := index - rec.Start + rec.Min
	if local >= 1<<m.indexBits {
		return 0, false
	}
	return uint32(rec.ID)<<m.indexBits | uint32(local), true
}

// Count returns the number of strings in a namespace, or 0 if it is absent.
func (m *NamespaceMap) Count(namespace int) int {
	for i, rec := range m.byStart {
		if rec.ID != namespace {
			continue
		}
		end := m.total
		if i+1 < len(m.byStart) {
			end = m.byStart[i+1].Start
		}
		return max(0, min(end, m.total)-rec.Start)
	}
	return 0
}

// Namespaces returns the records in ascending id order.
func (m *NamespaceMap) Namespaces() []format.Namespace {
	return m.byID
}

// ReadOffsetTable reads count int32 offsets at indexOffset and slices the
// nul-terminated strings they point to out of the size-byte blob at
// blobOffset. A non-nil key decrypts the blob first. Out-of-range offsets
// yield empty strings.
func ReadOffsetTable(r io.ReaderAt, order binary.ByteOrder, indexOffset int64, count int, blobOffset int64, size int, key *Key) ([]string, error) {
	if count < 0 || size < 0 {
		return nil, fmt.Errorf("invalid offset table: %d entries, %d bytes", count, size)
	}

	blob := make([]byte, size)
	if n, err := r.ReadAt(blob, blobOffset); n != size {
		return nil, fmt.Errorf("reading %d byte blob at %#x: %w", size, blobOffset, err)
	}
	if key != nil {
		if err := key.Decrypt(blob); err != nil {
			return nil, err
		}
	}

	raw := make([]byte, count*4)
	if n, err := r.ReadAt(raw, indexOffset); n != len(raw) {
		return nil, fmt.Errorf("reading %d offsets at %#x: %w", count, indexOffset, err)
	}

	out := make([]string, count)
	for i := range out {
		off := int32(order.Uint32(raw[i*4:]))
		if off < 0 || int(off) >= size {
			continue
		}
		s := blob[off:]
		if end := bytes.IndexByte(s, 0); end >= 0 {
			s = s[:end]
		}
		out[i] = string(s)
	}
	return out, nil
}
