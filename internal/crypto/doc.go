// Package crypto exposes the primitives used by gossips.
//
// Contents
//
//   - Secure-mode message codec (FitKey, Encode, Decode)
//   - Argon2id key-encryption-key derivation for local caches (DeriveKEK)
//   - Standard base64 text rendering (B64)
//
// # Known weaknesses
//
// The message codec reproduces the format peers already exchange: the
// passphrase is truncated or zero-padded to 16 bytes with no salt or
// stretching, and AES-128 runs in ECB mode with PKCS#7 padding and no IV.
// Identical plaintexts under one passphrase yield identical ciphertexts, and
// passphrases sharing their first 16 bytes collide. These properties are kept
// bit-for-bit for interoperability; do not copy this construction into new
// designs.
package crypto
