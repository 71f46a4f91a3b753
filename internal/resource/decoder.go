package resource

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// skipChunk bounds the scratch buffer used to discard decompressed bytes.
const skipChunk = 512 << 10

// Decoder turns stored resource payloads into bytes. A Decoder is safe for
// concurrent use; block codec contexts are pooled across calls.
type Decoder struct {
	blocks *contextPool
}

// NewDecoder returns a decoder that uses codec for Oodle payloads. A nil codec
// selects GoozCodec.
func NewDecoder(codec BlockCodec) *Decoder {
	if codec == nil {
		codec = GoozCodec{}
	}
	return &Decoder{blocks: newContextPool(codec)}
}

// Request describes one payload read. Src must be positioned at the first
// stored byte of the payload.
type Request struct {
	Codec            Codec
	CompressedSize   int64
	DecompressedSize int64
	// Skip is the number of decompressed bytes to drop before output starts.
	Skip int64
	// MaxLength caps the output length.
	MaxLength int64
}

// want is the number of output bytes the request can produce.
func (r Request) want() int64 {
	n := r.DecompressedSize - r.Skip
	if r.MaxLength < n {
		n = r.MaxLength
	}
	if n < 0 {
		return 0
	}
	return n
}

// Decode reads the payload described by req from src.
func (d *Decoder) Decode(src io.Reader, req Request) ([]byte, error) {
	if req.Skip < 0 || req.MaxLength < 0 {
		return nil, fmt.Errorf("negative skip %d or length %d", req.Skip, req.MaxLength)
	}
	if req.CompressedSize < 0 || req.DecompressedSize < 0 {
		return nil, fmt.Errorf("negative payload size %d (decompressed %d)", req.CompressedSize, req.DecompressedSize)
	}

	if req.Codec == Uncompressed || req.CompressedSize == req.DecompressedSize {
		return decodeRaw(src, req)
	}

	switch req.Codec {
	case Deflate:
		fr := flate.NewReader(io.LimitReader(src, req.CompressedSize))
		defer fr.Close()
		return decodeStream(fr, req)
	case UnknownDeflate:
		fr := flate.NewReader(io.LimitReader(src, req.CompressedSize))
		defer fr.Close()
		return decodeStream(newBlockReader(fr), req)
	case Oodle:
		return d.decodeBlock(src, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, req.Codec)
	}
}

func decodeRaw(src io.Reader, req Request) ([]byte, error) {
	n := req.want()
	if n == 0 {
		return []byte{}, nil
	}

	if req.Skip > 0 {
		if s, ok := src.(io.Seeker); ok {
			if _, err := s.Seek(req.Skip, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("skipping %d bytes: %w", req.Skip, err)
			}
		} else if _, err := io.CopyN(io.Discard, src, req.Skip); err != nil {
			return nil, fmt.Errorf("skipping %d bytes: %w", req.Skip, err)
		}
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("reading raw payload: %w", err)
	}
	return buf, nil
}

func decodeStream(r io.Reader, req Request) ([]byte, error) {
	n := req.want()
	if n == 0 {
		return []byte{}, nil
	}

	if err := discard(r, req.Skip); err != nil {
		return nil, fmt.Errorf("skipping %d decompressed bytes: %w", req.Skip, err)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("decompressing %s payload: %w", req.Codec, err)
	}
	return buf, nil
}

// discard drops n bytes from r through a bounded scratch buffer.
func discard(r io.Reader, n int64) error {
	if n == 0 {
		return nil
	}
	scratch := make([]byte, min(n, skipChunk))
	for n > 0 {
		chunk := min(n, int64(len(scratch)))
		if _, err := io.ReadFull(r, scratch[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// decodeBlock decompresses a whole Oodle block into scratch and copies out
// the requested range. The codec has no streaming mode.
func (d *Decoder) decodeBlock(src io.Reader, req Request) ([]byte, error) {
	n := req.want()
	if n == 0 {
		return []byte{}, nil
	}

	compressed := make([]byte, req.CompressedSize)
	if _, err := io.ReadFull(src, compressed); err != nil {
		return nil, fmt.Errorf("reading oodle payload: %w", err)
	}

	ctx, release, err := d.blocks.get()
	if err != nil {
		return nil, err
	}
	defer release()

	scratch := make([]byte, req.DecompressedSize)
	written, err := ctx.Decompress(compressed, scratch)
	if err != nil {
		return nil, err
	}
	if int64(written) < req.Skip+n {
		return nil, fmt.Errorf("oodle block produced %d of %d bytes: %w", written, req.DecompressedSize, io.ErrUnexpectedEOF)
	}

	out := make([]byte, n)
	copy(out, scratch[req.Skip:req.Skip+n])
	return out, nil
}

// IsUnsupported reports whether err means a payload cannot be decoded at all.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedCodec)
}
