package tags

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Key is an AES-128-CBC key and IV pair derived from a 16-byte phrase.
type Key struct {
	key [aes.BlockSize]byte
	iv  [aes.BlockSize]byte
}

const (
	keyMask = 0xA5
	ivMask  = 0x3C
)

// NewKey derives a key from phrase: key = phrase ^ 0xA5, iv = key ^ 0x3C.
func NewKey(phrase string) (*Key, error) {
	if len(phrase) != aes.BlockSize {
		return nil, fmt.Errorf("key phrase must be %d bytes, got %d", aes.BlockSize, len(phrase))
	}
	k := &Key{}
	for i := range k.key {
		k.key[i] = phrase[i] ^ keyMask
		k.iv[i] = k.key[i] ^ ivMask
	}
	return k, nil
}

func mustKey(phrase string) *Key {
	k, err := NewKey(phrase)
	if err != nil {
		panic(err)
	}
	return k
}

var (
	// FileNameKey decrypts tag name blobs in encrypted layouts.
	FileNameKey = mustKey("LetsAllPlayNice!")
	// StringKey decrypts string blobs in encrypted layouts.
	StringKey = mustKey("ILikeSafeStrings")
)

// Decrypt decrypts buf in place. A trailing partial block is left as stored.
func (k *Key) Decrypt(buf []byte) error {
	n := len(buf) &^ (aes.BlockSize - 1)
	if n == 0 {
		return nil
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	cipher.NewCBCDecrypter(block, k.iv[:]).CryptBlocks(buf[:n], buf[:n])
	return nil
}

// Encrypt is the inverse of Decrypt.
func (k *Key) Encrypt(buf []byte) error {
	n := len(buf) &^ (aes.BlockSize - 1)
	if n == 0 {
		return nil
	}
	block, err := aes.NewCipher(k.key[:])
	if err != nil {
		return fmt.Errorf("creating cipher: %w", err)
	}
	cipher.NewCBCEncrypter(block, k.iv[:]).CryptBlocks(buf[:n], buf[:n])
	return nil
}
