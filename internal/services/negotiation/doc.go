// Package negotiation runs the secure-mode handshake for one room.
//
// The initiator creates a pending SecureRequest; the responder accepts or
// declines it; both sides then enter the shared passphrase, and the
// responder raises the rendezvous flag which the initiator consumes before
// both switch to encrypted messaging. Every signal is a store mutation, so
// handlers accept duplicate, reordered and coalesced notifications.
//
// A Machine is not safe for concurrent use. The owning peer calls it from a
// single event loop and routes timer callbacks back through Post.
package negotiation
