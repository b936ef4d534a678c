package crypto

import (
	"crypto/aes"
	"errors"
	"fmt"
	"unicode/utf8"

	"gossips/internal/domain"
	"gossips/internal/util/memzero"
)

// KeySize is the fitted key length, AES-128.
const KeySize = 16

// ErrInvalidPlaintext is returned by Encode for text that is not valid UTF-8.
var ErrInvalidPlaintext = errors.New("plaintext is not valid UTF-8")

// FixedKey is a passphrase fitted to the cipher key size.
type FixedKey [KeySize]byte

// FitKey maps a passphrase to exactly KeySize bytes: its UTF-8 bytes are
// truncated when longer and zero-padded when shorter.
func FitKey(passphrase string) FixedKey {
	var k FixedKey
	copy(k[:], passphrase)
	return k
}

// Encode encrypts plaintext under the fitted passphrase and renders the
// result as standard base64. The output is deterministic.
func Encode(plaintext, passphrase string) (string, error) {
	if !utf8.ValidString(plaintext) {
		return "", ErrInvalidPlaintext
	}
	key := FitKey(passphrase)
	defer memzero.Zero(key[:])

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	buf := pad([]byte(plaintext), bs)
	for i := 0; i < len(buf); i += bs {
		block.Encrypt(buf[i:i+bs], buf[i:i+bs])
	}
	return B64(buf), nil
}

// Decode is the inverse of Encode. Any failure, including a passphrase that
// differs from the one used to encode, is reported as domain.ErrDecode.
func Decode(ciphertext, passphrase string) (string, error) {
	raw, err := UnB64(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if len(raw) == 0 || len(raw)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: length %d is not a multiple of %d", domain.ErrDecode, len(raw), aes.BlockSize)
	}

	key := FitKey(passphrase)
	defer memzero.Zero(key[:])

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	for i := 0; i < len(raw); i += bs {
		block.Decrypt(raw[i:i+bs], raw[i:i+bs])
	}
	plain, ok := unpad(raw, bs)
	if !ok {
		return "", fmt.Errorf("%w: bad padding", domain.ErrDecode)
	}
	// A wrong key that happens to leave valid padding almost never leaves
	// valid UTF-8 as well.
	if !utf8.Valid(plain) {
		return "", fmt.Errorf("%w: plaintext is not text", domain.ErrDecode)
	}
	return string(plain), nil
}

// pad appends PKCS#7 padding; a full block is added when b is aligned.
func pad(b []byte, bs int) []byte {
	n := bs - len(b)%bs
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte, bs int) ([]byte, bool) {
	n := int(b[len(b)-1])
	if n == 0 || n > bs || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
