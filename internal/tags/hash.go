package tags

import (
	"encoding/binary"
	"strings"
)

// murmurHash64A is the 64-bit MurmurHash2 variant.
func murmurHash64A(data []byte, seed uint64) uint64 {
	const (
		m = 0xc6a4a7935bd1e995
		r = 47
	)

	h := seed ^ (uint64(len(data)) * m)

	remainder := len(data) & 7
	aligned := len(data) - remainder

	for i := 0; i < aligned; i += 8 {
		k := binary.LittleEndian.Uint64(data[i : i+8])

		k *= m
		k ^= k >> r
		k *= m

		h ^= k
		h *= m
	}

	switch remainder {
	case 7:
		h ^= uint64(data[aligned+6]) << 48
		fallthrough
	case 6:
		h ^= uint64(data[aligned+5]) << 40
		fallthrough
	case 5:
		h ^= uint64(data[aligned+4]) << 32
		fallthrough
	case 4:
		h ^= uint64(data[aligned+3]) << 24
		fallthrough
	case 3:
		h ^= uint64(data[aligned+2]) << 16
		fallthrough
	case 2:
		h ^= uint64(data[aligned+1]) << 8
		fallthrough
	case 1:
		h ^= uint64(data[aligned])
		h *= m
	}

	h ^= h >> r
	h *= m
	h ^= h >> r

	return h
}

// normalizePath folds case and separators so "Levels/A" and "levels\a" match.
func normalizePath(path string) string {
	return strings.ToLower(strings.ReplaceAll(path, "/", `\`))
}

// PathHash keys a tag by its normalized path, seeded with its class so the
// same path under two classes hashes apart.
func PathHash(path string, class ClassCode) uint64 {
	return murmurHash64A([]byte(normalizePath(path)), uint64(class))
}
