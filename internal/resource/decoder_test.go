package resource

import (
	"bytes"
	"errors"
	"io"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payload(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7 + i/251)
	}
	return out
}

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// appendBlockHeader encodes a sub-block header the way UnknownDeflate streams store them.
func appendBlockHeader(dst []byte, length int, flagged bool) []byte {
	first := byte(length & blockFirstMask)
	if flagged {
		first |= blockFlag
	}
	length >>= 6
	if length > 0 {
		first |= blockContinue
	}
	dst = append(dst, first)
	for length > 0 {
		c := byte(length & blockNextMask)
		length >>= 7
		if length > 0 {
			c |= blockContinue
		}
		dst = append(dst, c)
	}
	return dst
}

func TestDecodeRaw(t *testing.T) {
	t.Parallel()

	data := payload(1000)

	tests := []struct {
		name      string
		skip, max int64
		want      []byte
	}{
		{"whole", 0, 1000, data},
		{"skip", 100, 1000, data[100:]},
		{"capped", 10, 20, data[10:30]},
		{"past end", 1000, 10, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := NewDecoder(nil)
			got, err := d.Decode(bytes.NewReader(data), Request{
				Codec:            Uncompressed,
				CompressedSize:   1000,
				DecompressedSize: 1000,
				Skip:             tt.skip,
				MaxLength:        tt.max,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRawWithoutSeeker(t *testing.T) {
	t.Parallel()

	data := payload(64)
	got, err := NewDecoder(nil).Decode(io.MultiReader(bytes.NewReader(data)), Request{
		Codec:            Uncompressed,
		CompressedSize:   64,
		DecompressedSize: 64,
		Skip:             32,
		MaxLength:        8,
	})
	require.NoError(t, err)
	assert.Equal(t, data[32:40], got)
}

func TestDecodeDeflate(t *testing.T) {
	t.Parallel()

	data := payload(2*skipChunk + 4096)
	stored := deflate(t, data)

	d := NewDecoder(nil)
	for _, skip := range []int64{0, 1, skipChunk - 1, skipChunk + 17, int64(len(data)) - 10} {
		got, err := d.Decode(bytes.NewReader(stored), Request{
			Codec:            Deflate,
			CompressedSize:   int64(len(stored)),
			DecompressedSize: int64(len(data)),
			Skip:             skip,
			MaxLength:        100,
		})
		require.NoError(t, err)
		end := min(skip+100, int64(len(data)))
		assert.Equal(t, data[skip:end], got, "skip %d", skip)
	}
}

func TestDecodeDeflateTruncated(t *testing.T) {
	t.Parallel()

	data := payload(4096)
	stored := deflate(t, data)

	_, err := NewDecoder(nil).Decode(bytes.NewReader(stored[:len(stored)/2]), Request{
		Codec:            Deflate,
		CompressedSize:   int64(len(stored)),
		DecompressedSize: int64(len(data)),
		MaxLength:        int64(len(data)),
	})
	require.Error(t, err)
}

func TestDecodeUnknownDeflate(t *testing.T) {
	t.Parallel()

	first := payload(50)
	second := payload(300)
	third := payload(9000)

	var framed []byte
	framed = appendBlockHeader(framed, len(first), false)
	framed = append(framed, first...)
	framed = appendBlockHeader(framed, len(second), true)
	framed = append(framed, 0xEE, 0xEE)
	framed = append(framed, second...)
	framed = appendBlockHeader(framed, 0, false)
	framed = appendBlockHeader(framed, len(third), false)
	framed = append(framed, third...)

	want := append(append(append([]byte{}, first...), second...), third...)
	stored := deflate(t, framed)

	d := NewDecoder(nil)
	got, err := d.Decode(bytes.NewReader(stored), Request{
		Codec:            UnknownDeflate,
		CompressedSize:   int64(len(stored)),
		DecompressedSize: int64(len(want)),
		MaxLength:        int64(len(want)),
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = d.Decode(bytes.NewReader(stored), Request{
		Codec:            UnknownDeflate,
		CompressedSize:   int64(len(stored)),
		DecompressedSize: int64(len(want)),
		Skip:             40,
		MaxLength:        30,
	})
	require.NoError(t, err)
	assert.Equal(t, want[40:70], got)
}

func TestReadBlockHeader(t *testing.T) {
	t.Parallel()

	for _, length := range []int{0, 1, 63, 64, 8191, 8192, 1 << 20} {
		for _, flagged := range []bool{false, true} {
			enc := appendBlockHeader(nil, length, flagged)
			got, gotFlag, err := readBlockHeader(bytes.NewReader(enc))
			require.NoError(t, err)
			assert.Equal(t, int64(length), got)
			assert.Equal(t, flagged, gotFlag)
		}
	}

	_, _, err := readBlockHeader(bytes.NewReader([]byte{0x80}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = readBlockHeader(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

// xorCodec stands in for a vendor block codec: every byte is XORed with 0x5A.
type xorCodec struct {
	created atomic.Int32
	fail    bool
}

func (c *xorCodec) NewContext() (BlockContext, error) {
	c.created.Add(1)
	return &xorContext{fail: c.fail}, nil
}

type xorContext struct {
	fail bool
}

func (x *xorContext) Reset() error { return nil }

func (x *xorContext) Decompress(src, dst []byte) (int, error) {
	if x.fail {
		return 0, errors.New("corrupt block")
	}
	n := copy(dst, src)
	for i := range dst[:n] {
		dst[i] ^= 0x5A
	}
	return n, nil
}

func (x *xorContext) Close() error { return nil }

func TestDecodeOodle(t *testing.T) {
	t.Parallel()

	data := payload(4096)
	stored := make([]byte, len(data)+1)
	for i, b := range data {
		stored[i] = b ^ 0x5A
	}

	codec := &xorCodec{}
	d := NewDecoder(codec)

	for i := 0; i < 4; i++ {
		got, err := d.Decode(bytes.NewReader(stored), Request{
			Codec:            Oodle,
			CompressedSize:   int64(len(stored)),
			DecompressedSize: int64(len(data)),
			Skip:             1000,
			MaxLength:        24,
		})
		require.NoError(t, err)
		assert.Equal(t, data[1000:1024], got)
	}
	assert.GreaterOrEqual(t, codec.created.Load(), int32(1))
}

func TestDecodeOodleFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		codec   Codec
		req     Request
		message string
	}{
		{"corrupt block", Oodle, Request{CompressedSize: 10, DecompressedSize: 20, MaxLength: 20}, "corrupt block"},
		{"negative compressed size", Oodle, Request{CompressedSize: -1, DecompressedSize: 16, MaxLength: 16}, "negative payload size"},
		{"negative decompressed size", Oodle, Request{CompressedSize: 10, DecompressedSize: -16, MaxLength: 16}, "negative payload size"},
		{"negative raw size", Uncompressed, Request{CompressedSize: -4, DecompressedSize: -4, MaxLength: 4}, "negative payload size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := NewDecoder(&xorCodec{fail: true})
			req := tt.req
			req.Codec = tt.codec
			var got []byte
			var err error
			require.NotPanics(t, func() {
				got, err = d.Decode(bytes.NewReader(make([]byte, 10)), req)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Nil(t, got)
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	t.Parallel()

	_, err := NewDecoder(nil).Decode(bytes.NewReader(make([]byte, 10)), Request{
		Codec:            Codec(9),
		CompressedSize:   10,
		DecompressedSize: 20,
		MaxLength:        20,
	})
	require.ErrorIs(t, err, ErrUnsupportedCodec)
	assert.True(t, IsUnsupported(err))

	_, err = ParseCodec("lzma")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestLocatorPointer(t *testing.T) {
	t.Parallel()

	loc := FromPointer(0x80001234, 64)
	assert.Equal(t, Shared(1), loc.Location)
	assert.Equal(t, int64(0x1234), loc.Offset)
	assert.Equal(t, uint32(0x80001234), loc.ToPointer())

	local := FromPointer(0x00401000, 8)
	assert.True(t, local.Location.IsLocal())
	assert.Equal(t, uint32(0x00401000), local.ToPointer())
	assert.Equal(t, "local", local.Location.String())
}
