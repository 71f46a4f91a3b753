package tags

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jchantrell/mapcache/internal/address"
)

// Source bundles what every positional read needs: the container bytes, the
// container byte order and the translator for pointers stored in tag data.
type Source struct {
	R          io.ReaderAt
	Order      binary.ByteOrder
	Translator address.Translator
	// Wide is set when stored pointers are 64 bits.
	Wide bool
}

// At returns a reader positioned at a file offset.
func (s *Source) At(offset int64) *Reader {
	return &Reader{src: s, pos: offset}
}

// Reader reads container data at a cursor. It is not safe for concurrent use;
// create one per goroutine with Source.At.
type Reader struct {
	src *Source
	pos int64
}

func (r *Reader) Offset() int64 {
	return r.pos
}

func (r *Reader) Order() binary.ByteOrder {
	return r.src.Order
}

func (r *Reader) Translator() address.Translator {
	return r.src.Translator
}

// Seek moves the cursor to an absolute file offset.
func (r *Reader) Seek(offset int64) {
	r.pos = offset
}

// SeekPointer moves the cursor to the file offset of a stored pointer.
func (r *Reader) SeekPointer(pointer int64) {
	r.pos = r.src.Translator.ToOffset(pointer)
}

func (r *Reader) Skip(n int64) {
	r.pos += n
}

// At returns an independent reader over the same source.
func (r *Reader) At(offset int64) *Reader {
	return r.src.At(offset)
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.R.ReadAt(p, r.pos)
	r.pos += int64(n)
	if n == len(p) {
		return n, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (r *Reader) fill(n int) ([]byte, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return nil, fmt.Errorf("reading %d bytes at %#x: %w", n, r.pos, err)
	}
	return buf[:n], nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return r.src.Order.Uint16(b), nil
}

func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return r.src.Order.Uint32(b), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return r.src.Order.Uint64(b), nil
}

// ReadClass reads a class code.
func (r *Reader) ReadClass() (ClassCode, error) {
	v, err := r.ReadUint32()
	return ClassCode(v), err
}

// ReadPointer reads a stored pointer at the source's pointer width.
func (r *Reader) ReadPointer() (int64, error) {
	if r.src.Wide {
		v, err := r.ReadUint64()
		return int64(v), err
	}
	v, err := r.ReadUint32()
	return int64(v), err
}

// ReadCString reads a nul-terminated string of at most max bytes. The cursor
// ends after the terminator, or after max bytes when there is none.
func (r *Reader) ReadCString(max int) (string, error) {
	buf := make([]byte, max)
	n, err := r.src.R.ReadAt(buf, r.pos)
	if n == 0 && err != nil {
		return "", fmt.Errorf("reading string at %#x: %w", r.pos, err)
	}
	buf = buf[:n]
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		r.pos += int64(i) + 1
		return string(buf[:i]), nil
	}
	r.pos += int64(n)
	return string(buf), nil
}

// Block is a counted array stored in tag data as a count and a pointer.
type Block struct {
	Count   int
	Pointer int64
	Offset  int64
}

// ReadBlock reads a {count, pointer} pair and resolves the pointer to a file offset.
func (r *Reader) ReadBlock() (Block, error) {
	count, err := r.ReadInt32()
	if err != nil {
		return Block{}, err
	}
	pointer, err := r.ReadPointer()
	if err != nil {
		return Block{}, err
	}
	if count < 0 {
		return Block{}, fmt.Errorf("negative block count %d", count)
	}
	b := Block{Count: int(count), Pointer: pointer}
	if count > 0 {
		b.Offset = r.src.Translator.ToOffset(pointer)
	}
	return b, nil
}

// Struct reads a fixed-size value with encoding/binary in container byte order.
func (r *Reader) Struct(v any) error {
	return binary.Read(r, r.src.Order, v)
}
