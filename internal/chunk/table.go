// Package chunk presents a chunk-compressed container as one contiguous
// logical stream. The first HeaderSize bytes are stored raw; after them a
// chunk table lists every chunk's stored size and file offset.
package chunk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/flate"
)

const (
	// HeaderSize is the length of the raw prefix that precedes the chunk table.
	HeaderSize = 0x800

	// markerSize is the length of the marker in front of each deflate chunk.
	markerSize = 2

	maxChunks = 1 << 20
)

var ErrBadTable = errors.New("mapcache: malformed chunk table")

// chunk describes one run of logical bytes and where it is stored.
type chunk struct {
	start      int64 // logical offset
	length     int64 // logical length
	offset     int64 // file offset of the stored bytes
	stored     int64 // stored length including any marker
	compressed bool
}

// Table maps logical offsets onto stored chunks. It is immutable once built.
type Table struct {
	chunks []chunk
	size   int64
}

// Size is the total logical length including the raw header.
func (t *Table) Size() int64 {
	return t.size
}

// Len returns the number of chunks after the raw header.
func (t *Table) Len() int {
	return len(t.chunks) - 1
}

type tableEntry struct {
	Size   int32
	Offset uint32
}

// ReadTable parses the chunk table of src. Compressed chunk lengths are not
// stored, so each compressed chunk is inflated once to measure it.
func ReadTable(src io.ReaderAt) (*Table, error) {
	var countBuf [4]byte
	if _, err := src.ReadAt(countBuf[:], HeaderSize); err != nil {
		return nil, fmt.Errorf("reading chunk count: %w", err)
	}
	count := int32(binary.LittleEndian.Uint32(countBuf[:]))
	if count < 0 || count > maxChunks {
		return nil, fmt.Errorf("%w: %d chunks", ErrBadTable, count)
	}

	entries := make([]tableEntry, count)
	rs := io.NewSectionReader(src, HeaderSize+4, int64(count)*8)
	if err := binary.Read(rs, binary.LittleEndian, entries); err != nil {
		return nil, fmt.Errorf("reading chunk table (count=%d): %w", count, err)
	}

	t := &Table{chunks: make([]chunk, 0, count+1)}
	t.chunks = append(t.chunks, chunk{start: 0, length: HeaderSize, offset: 0, stored: HeaderSize})
	pos := int64(HeaderSize)

	for i, e := range entries {
		c := chunk{start: pos, offset: int64(e.Offset)}
		switch {
		case e.Size > 0:
			if e.Size < markerSize {
				return nil, fmt.Errorf("%w: chunk %d stores %d bytes", ErrBadTable, i, e.Size)
			}
			c.stored = int64(e.Size)
			c.compressed = true
			n, err := measure(src, c)
			if err != nil {
				return nil, fmt.Errorf("measuring chunk %d: %w", i, err)
			}
			c.length = n
		case e.Size < 0:
			c.stored = -int64(e.Size)
			c.length = c.stored
		default:
			// empty chunk
		}
		t.chunks = append(t.chunks, c)
		pos += c.length
	}
	t.size = pos
	return t, nil
}

func measure(src io.ReaderAt, c chunk) (int64, error) {
	fr := flate.NewReader(io.NewSectionReader(src, c.offset+markerSize, c.stored-markerSize))
	defer fr.Close()
	return io.Copy(io.Discard, fr)
}

// find returns the index of the chunk containing logical offset off.
func (t *Table) find(off int64) int {
	return sort.Search(len(t.chunks), func(i int) bool {
		return t.chunks[i].start+t.chunks[i].length > off
	})
}

// materialize returns the logical bytes of chunk i.
func (t *Table) materialize(src io.ReaderAt, i int) ([]byte, error) {
	c := t.chunks[i]
	out := make([]byte, c.length)
	if !c.compressed {
		if n, err := src.ReadAt(out, c.offset); n != len(out) {
			return nil, fmt.Errorf("reading chunk %d: %w", i-1, err)
		}
		return out, nil
	}

	fr := flate.NewReader(io.NewSectionReader(src, c.offset+markerSize, c.stored-markerSize))
	defer fr.Close()
	if _, err := io.ReadFull(fr, out); err != nil {
		return nil, fmt.Errorf("inflating chunk %d: %w", i-1, err)
	}
	return out, nil
}
