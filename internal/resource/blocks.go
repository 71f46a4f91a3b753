package resource

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Block headers in the UnknownDeflate scheme are variable-length integers.
// The first byte holds the continuation bit (0x80), a flag bit (0x40) and the
// low six bits of the length; each following byte holds a continuation bit
// and seven more bits. A flagged block is followed by two bytes that are not
// part of the payload.
const (
	blockContinue  = 0x80
	blockFlag      = 0x40
	blockFirstMask = 0x3F
	blockNextMask  = 0x7F
	blockFlagSkip  = 2
)

var errBlockHeader = errors.New("malformed block header")

// blockReader yields the concatenated payloads of a sub-block stream.
type blockReader struct {
	r         *bufio.Reader
	remaining int64
}

func newBlockReader(r io.Reader) *blockReader {
	return &blockReader{r: bufio.NewReader(r)}
}

func (b *blockReader) Read(p []byte) (int, error) {
	for b.remaining == 0 {
		length, flagged, err := readBlockHeader(b.r)
		if err != nil {
			return 0, err
		}
		if flagged {
			if _, err := b.r.Discard(blockFlagSkip); err != nil {
				return 0, unexpected(err)
			}
		}
		b.remaining = length
	}

	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	if err == io.EOF && b.remaining > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

// readBlockHeader decodes one block header. io.EOF is returned only when the
// stream ends cleanly before a header starts.
func readBlockHeader(r io.ByteReader) (length int64, flagged bool, err error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}

	value := uint64(c & blockFirstMask)
	flagged = c&blockFlag != 0
	shift := uint(6)

	for c&blockContinue != 0 {
		if shift > 62 {
			return 0, false, fmt.Errorf("%w: length overflows", errBlockHeader)
		}
		c, err = r.ReadByte()
		if err != nil {
			return 0, false, unexpected(err)
		}
		value |= uint64(c&blockNextMask) << shift
		shift += 7
	}

	if value > 1<<62 {
		return 0, false, fmt.Errorf("%w: length %d", errBlockHeader, value)
	}
	return int64(value), flagged, nil
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
