package chunk

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Stream is a seekable reader over the logical bytes of a chunked container.
// ReadAt is safe for concurrent use; Read and Seek share a cursor and are not.
type Stream struct {
	src   io.ReaderAt
	table *Table

	mu     sync.Mutex
	last   int
	cached []byte

	pos int64
}

// NewStream returns a stream over src using a previously read table.
func NewStream(src io.ReaderAt, table *Table) *Stream {
	return &Stream{src: src, table: table, last: -1}
}

func (s *Stream) Size() int64 {
	return s.table.size
}

func (s *Stream) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("chunk: negative offset %d", off)
	}
	if off >= s.table.size {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && off < s.table.size {
		i := s.table.find(off)
		if i >= len(s.table.chunks) {
			break
		}
		c := s.table.chunks[i]
		if c.length == 0 {
			// find never lands on an empty chunk, but guard the loop anyway
			return n, errors.New("chunk: empty chunk at read position")
		}

		data, err := s.chunkData(i)
		if err != nil {
			return n, err
		}

		copied := copy(p[n:], data[off-c.start:])
		n += copied
		off += int64(copied)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// chunkData returns the logical bytes of chunk i, keeping the most recent
// chunk so sequential reads inflate each chunk once.
func (s *Stream) chunkData(i int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last == i {
		return s.cached, nil
	}

	data, err := s.table.materialize(s.src, i)
	if err != nil {
		return nil, err
	}
	s.last = i
	s.cached = data
	return data, nil
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.ReadAt(p, s.pos)
	s.pos += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = s.pos + offset
	case io.SeekEnd:
		abs = s.table.size + offset
	default:
		return 0, fmt.Errorf("chunk: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("chunk: negative position %d", abs)
	}
	s.pos = abs
	return abs, nil
}
