// Package store holds the local passphrase caches.
//
// A passphrase typed for a room lives only on the device that typed it and
// only while secure mode is negotiated or active. Three implementations of
// domain.PassphraseStore are provided:
//   - MemoryStore keeps entries in process memory.
//   - FileStore seals the whole cache into one scrypt + ChaCha20-Poly1305
//     envelope on disk, rewritten atomically on every change.
//   - BadgerStore keeps entries in an encrypted BadgerDB whose key is
//     derived from a local password with Argon2id.
//
// All methods are safe for concurrent use.
package store
