package crypto

import "golang.org/x/crypto/argon2"

const (
	KEKBytes  = 32
	SaltBytes = 16
)

// DeriveKEK derives a key-encryption key from a local password and salt using
// Argon2id. It protects caches at rest and never touches message traffic.
func DeriveKEK(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 1, 1<<16, 4, KEKBytes)
}
