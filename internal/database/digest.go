package database

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// digestBytes is how much of a container's start is hashed. It covers the
// largest header and the tag index of most files.
const digestBytes = 64 << 10

// HeaderDigest identifies a container by a BLAKE3 hash of its leading bytes
// and its size. Copies of the same file share a digest.
func HeaderDigest(r io.ReaderAt, size int64) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, min(size, digestBytes))); err != nil {
		return "", fmt.Errorf("hashing header: %w", err)
	}
	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], uint64(size))
	h.Write(tail[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}
