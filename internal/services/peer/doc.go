// Package peer is the runtime of one chat participant.
//
// A Peer owns the negotiation machine, the secure session and the plain
// feed of a single room and drives all three from one event loop.
// Store subscriptions, timers and API calls are turned into closures on
// that loop, so protocol handlers never run concurrently. A subscription
// that ends with a channel error is re-established after a delay; handlers
// tolerate the replayed state.
package peer
