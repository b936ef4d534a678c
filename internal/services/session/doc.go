// Package session runs an active secure-mode session.
//
// Outgoing text is encoded with the room passphrase and appended to the
// room's secure log; incoming entries are decoded once each. A decode failure
// is the only evidence of mismatched passphrases: it raises the wrong-key
// flag, and after a grace period both peers terminate. Termination
// broadcasts a fire-once flag and wipes the secure log.
//
// A Lifecycle is not safe for concurrent use; it is driven by the peer
// event loop.
package session
